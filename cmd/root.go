package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sideassist",
	Short: "Update and download assistant for sideloaded games",
	Long: `sideassist watches a wrapped game's log for asset requests and fetches
them directly, or keeps the game's own background download moving.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("tui", false, "show the interactive dashboard")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "answer yes to every prompt and keep the app closed if it reopens")
	rootCmd.SetVersionTemplate("sideassist version {{.Version}} (built " + BuildTime + ")\n")
}

// initializeGlobalState creates the state directories, configures debug
// logging and loads settings
func initializeGlobalState() (*config.Settings, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create state directories: %w", err)
	}

	if err := utils.ConfigureDebug(config.GetLogsDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log disabled: %v\n", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	utils.Debug("sideassist %s starting, settings %s", Version, config.GetSettingsPath())
	return settings, nil
}
