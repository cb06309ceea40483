package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memoirlabs/memoir/internal/config"
	"github.com/memoirlabs/memoir/internal/engine"
	"github.com/memoirlabs/memoir/internal/llm"
	"github.com/memoirlabs/memoir/internal/oracle"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <user-id>",
	Short: "Run consolidation for a user now",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	llmClient, err := llm.NewClient(cfg.Oracle)
	if err != nil {
		return fmt.Errorf("configure oracle: %w", err)
	}
	eng := engine.New(db, oracle.NewLLMOracle(llmClient), cfg.Lifecycle)

	summary, err := eng.ConsolidateUser(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("consolidation: %d → %d active memories (%d merges, %d deactivated)\n",
		summary.Before, summary.After, summary.Merged, summary.Deactivated)
	for _, v := range summary.Violations {
		fmt.Printf("  plan violation: %s\n", v)
	}
	return nil
}
