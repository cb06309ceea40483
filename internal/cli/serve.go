package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memoirlabs/memoir/internal/cache"
	"github.com/memoirlabs/memoir/internal/config"
	"github.com/memoirlabs/memoir/internal/engine"
	"github.com/memoirlabs/memoir/internal/llm"
	"github.com/memoirlabs/memoir/internal/metrics"
	"github.com/memoirlabs/memoir/internal/oracle"
	"github.com/memoirlabs/memoir/internal/sched"
	"github.com/memoirlabs/memoir/internal/server"
	"github.com/memoirlabs/memoir/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	m := metrics.New()
	eng.SetMetrics(m)

	contextCache, err := cache.NewContextCache(db, cfg.Lifecycle.MaxContextMemories)
	if err != nil {
		return err
	}
	eng.SetInvalidator(contextCache)

	scheduler := sched.New()
	if cfg.Maintenance.Enabled {
		job := &sched.MaintenanceJob{Engine: eng, Cron: cfg.Maintenance.Schedule}
		if err := scheduler.Register(job); err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	srv := server.New(db, eng, VersionString())
	srv.SetContextCache(contextCache)
	srv.SetMetrics(m)

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "memoir serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		fmt.Fprintf(os.Stderr, "  oracle: %s (%s)\n", cfg.Oracle.Provider, cfg.Oracle.Model)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// openStore resolves the database path and opens the store.
func openStore(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
