package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and maintain sync jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sync jobs",
	RunE:  runJobsList,
}

var jobsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Force-fail RUNNING jobs older than the stale age",
	Long: `A crashed server leaves its jobs stuck in RUNNING forever. Cleanup
marks every RUNNING job older than SYNC_STALE_JOB_AGE as FAILED.`,
	RunE: runJobsCleanup,
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "Maximum number of jobs to show")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCleanupCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.jobs.List(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("could not list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No sync jobs found.")
		return nil
	}

	for _, job := range jobs {
		fmt.Printf("%s  %-16s %-10s %3d%%  started %s\n",
			job.ID, job.Type, job.Status, job.Progress,
			job.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runJobsCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.jobs.FailStale(ctx, a.cfg.Sync.StaleJobAge)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Failed %d stale job(s) older than %s\n", n, a.cfg.Sync.StaleJobAge)
	return nil
}
