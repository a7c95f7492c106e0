package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/extdl"
	"github.com/sideassist/sideassist/internal/utils"
)

var assetsCmd = &cobra.Command{
	Use:   "assets <downloader> [-- args...]",
	Short: "Run the external asset downloader under supervision",
	Long: `assets runs an external downloader, restarting it when it exits with an
error or stops producing output. Its output is shown line by line.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		delay, _ := cmd.Flags().GetDuration("restart-delay")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		runner := extdl.NewRunner(extdl.Config{
			Path:         args[0],
			Args:         args[1:],
			Dir:          dir,
			Timings:      types.ConvertTimings(settings.Timings),
			RestartDelay: delay,
			Console:      utils.NewConsole(settings.General.ConsoleLines),
			OnLine: func(stream, line string) {
				if stream == "stderr" {
					fmt.Fprintln(cmd.ErrOrStderr(), line)
					return
				}
				fmt.Fprintln(out, line)
			},
		})

		res, err := runner.Run(ctx)
		fmt.Fprintf(out, "Downloader finished: exit code %d, %d restart(s), %d stall(s)\n", res.ExitCode, res.Restarts, res.Stalls)
		return err
	},
}

func init() {
	assetsCmd.Flags().String("dir", "", "working directory for the downloader")
	assetsCmd.Flags().Duration("restart-delay", types.RetryDelay, "pause between restarts")
	rootCmd.AddCommand(assetsCmd)
}
