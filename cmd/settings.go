package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sideassist/sideassist/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		metadata := config.GetSettingsMetadata()
		for _, cat := range config.CategoryOrder() {
			fmt.Fprintf(w, "[%s]\n", cat)
			values := config.Values(settings, cat)
			for _, meta := range metadata[cat] {
				fmt.Fprintf(w, "  %s\t%s\t%s\n", meta.Key, formatValue(values[meta.Key]), meta.Description)
			}
		}
		return w.Flush()
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := initializeGlobalState()
		if err != nil {
			return err
		}
		if err := config.SetValue(settings, args[0], args[1]); err != nil {
			return err
		}
		if err := config.SaveSettings(settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetSettingsPath())
	},
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "(default)"
		}
		return val
	case time.Duration:
		if val == 0 {
			return "(default)"
		}
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func init() {
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
	rootCmd.AddCommand(settingsCmd)
}
