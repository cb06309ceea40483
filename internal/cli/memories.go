package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memoirlabs/memoir/internal/config"
)

var memoriesCmd = &cobra.Command{
	Use:   "memories <user-id>",
	Short: "List a user's active memories",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemories,
}

func runMemories(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userID := args[0]
	memories, err := db.GetActiveMemories(userID)
	if err != nil {
		return err
	}
	if len(memories) == 0 {
		fmt.Printf("no active memories for %s\n", userID)
		return nil
	}

	for _, m := range memories {
		confirmed := " "
		if m.UserConfirmed {
			confirmed = "*"
		}
		fmt.Printf("%s %-16s %-8s conf=%.2f imp=%-2d x%-3d %s\n",
			confirmed, m.Type, m.Category, m.Confidence, m.Importance, m.MentionCount, m.Content)
	}
	fmt.Printf("\n%d active memories (* = user-confirmed)\n", len(memories))
	return nil
}
