package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/history"
	"github.com/sideassist/sideassist/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := initializeGlobalState(); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		clearAll, _ := cmd.Flags().GetBool("clear")

		store, err := history.Open(filepath.Join(config.GetStateDir(), "history.db"))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		out := cmd.OutOrStdout()
		if clearAll {
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared")
			return nil
		}

		entries, err := store.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No sessions recorded yet")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tFLOW\tSTATUS\tFILES\tSIZE\tDURATION\tMESSAGE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				humanize.Time(e.StartedAt),
				e.Flow,
				e.Status,
				e.Files,
				utils.ConvertBytesToHumanReadable(e.Bytes),
				e.Duration().Round(time.Second),
				e.Message,
			)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of sessions to show")
	historyCmd.Flags().Bool("clear", false, "delete all recorded sessions")
	rootCmd.AddCommand(historyCmd)
}
