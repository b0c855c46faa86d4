package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solvik/fetchq/config"
	"github.com/solvik/fetchq/jobs"
	"github.com/solvik/fetchq/logger"
)

// RunCmd starts the fetchq daemon
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the fetchq daemon",
	Long: `Start the fetchq daemon in foreground mode.

The daemon will:
- Run the bounded-concurrency job runner
- Enforce the upstream rate limit across all requests
- Periodically remove terminal jobs past their retention window
- Run until interrupted (Ctrl+C), draining in-flight jobs before exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		log := logger.Named("daemon")

		store, err := jobs.NewStore(cfg.Jobs.Dir, logger.Named("store"))
		if err != nil {
			return err
		}
		runner := jobs.NewRunner(store, cfg.Jobs.MaxConcurrent, cfg.Jobs.JobTimeout(), logger.Named("runner"))
		svc := jobs.NewService(store, runner)

		// Cleanup ticker removes expired terminal jobs
		stopCleanup := make(chan struct{})
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := svc.Cleanup(cfg.Jobs.Retention()); err != nil {
						log.Warnw("job cleanup failed", "error", err)
					}
				case <-stopCleanup:
					return
				}
			}
		}()

		fmt.Println("fetchq daemon started")
		fmt.Printf("  Jobs dir: %s\n", cfg.Jobs.Dir)
		fmt.Printf("  Results dir: %s\n", cfg.Output.Dir)
		fmt.Printf("  Max concurrent jobs: %d\n", cfg.Jobs.MaxConcurrent)
		fmt.Printf("  Job timeout: %v\n", cfg.Jobs.JobTimeout())
		fmt.Printf("  Rate limit: %d calls / %v\n", cfg.API.RateLimitRPM, cfg.API.RateWindow())
		fmt.Println("\nPress Ctrl+C for graceful shutdown")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nDraining in-flight jobs...")
		close(stopCleanup)
		svc.Shutdown(true)

		fmt.Println("fetchq daemon stopped")
		return nil
	},
}
