package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/fetch"
	"github.com/sideassist/sideassist/internal/utils"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a game package",
	Long: `fetch downloads a distributable game package and checks that it is an
archive. An interrupted fetch resumes when run again with the same output
directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}

		outDir, _ := cmd.Flags().GetString("output")
		anyType, _ := cmd.Flags().GetBool("any-type")
		if outDir == "" {
			outDir = "."
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		report := rate.Sometimes{Interval: headlessProgressEvery}
		res, err := fetch.Package(ctx, args[0], fetch.Options{
			Dir:     outDir,
			Network: types.ConvertNetwork(settings.Network),
			AnyType: anyType,
			Console: utils.NewConsole(settings.General.ConsoleLines),
		}, func(p fetch.Progress) {
			report.Do(func() {
				fmt.Fprintf(out, "%s  %s/s\n", utils.FormatProgress(p.Done, p.Total), utils.ConvertBytesToHumanReadable(int64(p.BytesPerSec)))
			})
		})
		if err != nil {
			return err
		}

		resumed := ""
		if res.Resumed {
			resumed = " (resumed)"
		}
		fmt.Fprintf(out, "Saved %s: %s %s in %s%s\n", res.Path, utils.ConvertBytesToHumanReadable(res.Size), res.MIME, res.Duration.Round(100*time.Millisecond), resumed)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringP("output", "o", "", "directory to save the package in (default: current directory)")
	fetchCmd.Flags().Bool("any-type", false, "keep the download even if it is not an archive")
	rootCmd.AddCommand(fetchCmd)
}
