package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/process"
	"github.com/sideassist/sideassist/internal/tracker"
	"github.com/sideassist/sideassist/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the game's container, whether it runs and its download progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}
		app := settings.App
		app.AppPath = config.ExpandHome(app.AppPath)
		sup := process.NewLocal(app.BundleID, app.AppPath, app.LegacyExecutables)
		return printStatus(cmd, settings, config.NewLocator(app), sup)
	},
}

func printStatus(cmd *cobra.Command, settings *config.Settings, loc config.Locator, sup process.Supervisor) error {
	out := cmd.OutOrStdout()

	running := "no"
	if sup.IsRunning(cmd.Context()) {
		running = "yes"
	}
	fmt.Fprintf(out, "Bundle ID:   %s\n", settings.App.BundleID)
	fmt.Fprintf(out, "Running:     %s\n", running)

	layout, err := config.ResolveLayout(loc, settings.Paths)
	if err != nil {
		fmt.Fprintf(out, "Container:   not found\n")
		return nil
	}
	fmt.Fprintf(out, "Container:   %s\n", layout.Root)

	sig, err := tracker.JSONSignal{Path: layout.SignalFile}.Read()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Progress:    unreadable (%v)\n", err)
	case sig.Total == 0:
		fmt.Fprintf(out, "Progress:    no download in progress\n")
	default:
		fmt.Fprintf(out, "Progress:    %s\n", utils.FormatProgress(sig.Downloaded, sig.Total))
	}

	if size, err := (tracker.DirSize{Path: layout.CacheDir}).Size(); err == nil {
		fmt.Fprintf(out, "Cache:       %s\n", utils.ConvertBytesToHumanReadable(size))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
