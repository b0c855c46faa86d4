package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/solvik/fetchq/config"
	"github.com/solvik/fetchq/jobs"
	"github.com/solvik/fetchq/logger"
)

// JobsCmd groups job management subcommands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage jobs",
	Long: `Inspect and manage jobs tracked by the file-backed store.

Job management commands:
  fetchq jobs ls               # List all jobs
  fetchq jobs show <id>        # Show job details
  fetchq jobs cancel <id>      # Cancel a pending or running job
  fetchq jobs cleanup          # Remove terminal jobs past retention`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// JobsLsCmd lists jobs
var JobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	Long: `List jobs, optionally filtered by status.

Status filters: pending, running, completed, failed, cancelled

Examples:
  fetchq jobs ls                    # List all jobs
  fetchq jobs ls --status running   # List only running jobs
  fetchq jobs ls --limit 50         # Show up to 50 jobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runJobsLs(statusFilter, limit)
	},
}

// JobsShowCmd shows details of one job
var JobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsShow(args[0])
	},
}

// JobsCancelCmd cancels a pending or running job
var JobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running job",
	Long: `Cancel a job that has not yet finished. Pending jobs are cancelled
immediately; running jobs only transition once the daemon observes the
updated record.

Example:
  fetchq jobs cancel 7c1e3a9f-...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return runJobsCancel(args[0], reason)
	},
}

// JobsCleanupCmd removes expired terminal jobs
var JobsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove terminal jobs past their retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsCleanup()
	},
}

func init() {
	JobsLsCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	JobsLsCmd.Flags().Int("limit", 20, "Maximum number of jobs to display")
	JobsCancelCmd.Flags().String("reason", "cancelled by user", "Reason recorded on the job")

	JobsCmd.AddCommand(JobsLsCmd)
	JobsCmd.AddCommand(JobsShowCmd)
	JobsCmd.AddCommand(JobsCancelCmd)
	JobsCmd.AddCommand(JobsCleanupCmd)
}

func openStore() (*jobs.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := jobs.NewStore(cfg.Jobs.Dir, logger.Named("store"))
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runJobsLs(statusFilter string, limit int) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	var filter jobs.Filter
	filter.Limit = limit
	if statusFilter != "" {
		if !jobs.IsValidStatus(statusFilter) {
			return fmt.Errorf("unknown status %q", statusFilter)
		}
		s := jobs.Status(statusFilter)
		filter.Status = &s
	}

	list, err := store.List(filter)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-20s  %s\n", "ID", "STATUS", "CREATED", "OP")
	for _, job := range list {
		fmt.Printf("%-36s  %-10s  %-20s  %s\n",
			job.ID, job.Status,
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			job.Metadata["op"])
	}
	return nil
}

func runJobsShow(jobID string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	job, err := store.Get(jobID)
	if err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", job.ID)
	fmt.Printf("Status:    %s\n", job.Status)
	fmt.Printf("Created:   %s\n", job.CreatedAt.Local().Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("Started:   %s\n", job.StartedAt.Local().Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", job.CompletedAt.Local().Format(time.RFC3339))
		fmt.Printf("Duration:  %s\n", job.Duration().Round(time.Millisecond))
	}
	if job.ResultRef != "" {
		fmt.Printf("Result:    %s\n", job.ResultRef)
	}
	if job.Error != "" {
		fmt.Printf("Error:     %s\n", job.Error)
	}
	if len(job.Metadata) > 0 {
		var pairs []string
		for k, v := range job.Metadata {
			pairs = append(pairs, k+"="+v)
		}
		fmt.Printf("Metadata:  %s\n", strings.Join(pairs, " "))
	}
	return nil
}

func runJobsCancel(jobID, reason string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	// The CLI runs in a separate process from the daemon, so it cannot
	// reach the runner's cancel handle. Moving the record to cancelled
	// is enough: the daemon's terminal-state guard discards whatever the
	// running work later produces. In-process callers use
	// Service.CancelJob instead, which also cancels the work context.
	if _, err := store.MarkCancelled(jobID, reason); err != nil {
		return err
	}

	fmt.Printf("Job %s cancelled\n", jobID)
	return nil
}

func runJobsCleanup() error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}

	deleted, err := store.Cleanup(cfg.Jobs.Retention())
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d job(s) older than %v\n", deleted, cfg.Jobs.Retention())
	return nil
}
