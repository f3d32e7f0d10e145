package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jcalado/lumina-sub001/internal/assets"
	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync [album-path...]",
	Short: "Synchronize the local library with the remote store and catalog",
	Long: `Run a full synchronization job: scan the local library, upload new and
changed photos with generated thumbnails, and reconcile albums that
exist only in the catalog. Album paths restrict the run to those
albums.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Int("concurrency", 0, "Concurrent uploads per chunk (0 = config default)")
	rootCmd.AddCommand(syncCmd)
}

// barSink renders orchestrator events as a terminal progress bar.
type barSink struct {
	bar *progressbar.ProgressBar
}

func newBarSink() *barSink {
	return &barSink{
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetDescription("Syncing albums"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

func (s *barSink) Publish(e syncer.Event) {
	switch e.Type {
	case syncer.EventAlbumStarted:
		s.bar.Describe(fmt.Sprintf("Syncing %s", e.Album))
	case syncer.EventAlbumError:
		fmt.Printf("\nAlbum %s failed: %s\n", e.Album, e.Message)
	}
	_ = s.bar.Set(e.Progress)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency <= 0 {
		concurrency = a.cfg.Sync.UploadConcurrency
	}

	gen := assets.NewGenerator(a.store, concurrency)
	defer gen.Close()

	sink := newBarSink()
	orch := syncer.NewOrchestrator(a.albums, a.media, a.jobs, a.scanner, a.store, gen, concurrency, sink)

	job, err := orch.CreateJob(ctx, database.JobFilesystem)
	if err != nil {
		return err
	}
	fmt.Printf("Started sync job %s\n", job.ID)

	if err := orch.Run(ctx, job, args); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	_ = sink.bar.Finish()

	final, err := a.jobs.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nJob %s finished with status %s (%d/%d albums, %d files uploaded)\n",
		final.ID, final.Status, final.CompletedAlbums, final.TotalAlbums, final.FilesUploaded)
	for _, entry := range final.Logs {
		if entry.Level == database.LogError {
			fmt.Printf("  error: %s %s\n", entry.Message, entry.Details)
		}
	}
	return nil
}
