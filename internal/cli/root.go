package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "memoir",
	Short: "Memory lifecycle engine for journaling apps",
	Long: "Memoir turns journal entries into a durable, self-pruning memory set per user:\n" +
		"extraction, consolidation, and decay, backed by a single SQLite file.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(memoriesCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(decayCmd)
}
