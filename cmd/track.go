package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sideassist/sideassist/internal/session"
	"github.com/sideassist/sideassist/internal/utils"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Follow the game's own background download",
	Long: `track launches the game, closes it once its background download starts
and follows that download. When progress stalls it nudges the downloader by
relaunching the game silently for a moment. The game is launched again when
the download finishes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, "Background download", func(deps session.Deps) session.Session {
			return session.NewDownloadTracker(deps)
		})
	},
}

var resetProgressCmd = &cobra.Command{
	Use:   "reset-progress",
	Short: "Delete the game's download progress file",
	Long: `reset-progress removes the game's progress file so that it rebuilds its
download state on the next launch. The game must be closed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}
		isMaster, err := AcquireLock()
		if err != nil {
			return err
		}
		if !isMaster {
			return ErrAlreadyRunning
		}
		defer func() { _ = ReleaseLock() }()

		env, err := newSessionEnv(cmd, settings, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if !env.deps.Prompter.Confirm(cmd.Context(), "Reset download progress",
			"The game will download its assets again from the start. Continue?") {
			return errors.New("reset cancelled")
		}

		tr := session.NewDownloadTracker(env.deps)
		err = tr.ResetProgress(cmd.Context())
		for _, l := range env.console.Lines() {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		if err != nil {
			return err
		}
		utils.Debug("progress reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(resetProgressCmd)
}
