package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sideassist/sideassist/internal/session"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Launch the game and fetch the assets it asks for",
	Long: `update launches the wrapped game, watches its log for asset requests and
downloads each batch directly into the game's container. The game is kept
closed while files are installed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, "Game update", func(deps session.Deps) session.Session {
			if direct, _ := cmd.Flags().GetBool("direct-only"); direct {
				deps.General.DirectDownloadOnly = true
			}
			if cmd.Flags().Changed("relaunch") {
				deps.General.RelaunchAfter, _ = cmd.Flags().GetBool("relaunch")
			}
			return session.NewUpdateAssistant(deps)
		})
	},
}

func init() {
	updateCmd.Flags().Bool("direct-only", false, "only fetch files the game would install directly")
	updateCmd.Flags().Bool("relaunch", false, "relaunch the game once the update is installed (overrides the setting)")
	rootCmd.AddCommand(updateCmd)
}
