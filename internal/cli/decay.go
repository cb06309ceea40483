package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/memoirlabs/memoir/internal/config"
	"github.com/memoirlabs/memoir/internal/engine"
	"github.com/memoirlabs/memoir/internal/oracle"
)

var decayAll bool

var decayCmd = &cobra.Command{
	Use:   "decay [user-id]",
	Short: "Run the decay pass for one user, or --all users",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDecay,
}

func init() {
	decayCmd.Flags().BoolVar(&decayAll, "all", false, "decay every user with active memories")
}

func runDecay(cmd *cobra.Command, args []string) error {
	if !decayAll && len(args) == 0 {
		return fmt.Errorf("a user id or --all is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Decay never consults the oracle.
	eng := engine.New(db, &oracle.MockOracle{}, cfg.Lifecycle)

	users := args
	if decayAll {
		users, err = db.UsersWithActiveMemories()
		if err != nil {
			return err
		}
	}

	now := time.Now()
	total := 0
	for _, u := range users {
		n, err := eng.DecayUser(u, now)
		if err != nil {
			return fmt.Errorf("decay %s: %w", u, err)
		}
		if n > 0 {
			fmt.Printf("%s: deactivated %d memories\n", u, n)
		}
		total += n
	}
	fmt.Printf("decay complete: %d users swept, %d memories deactivated\n", len(users), total)
	return nil
}
