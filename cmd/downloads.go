package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcalado/lumina-sub001/internal/zipper"
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Maintain shareable zip download links",
}

var downloadsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired download links and their archives",
	RunE:  runDownloadsCleanup,
}

func init() {
	downloadsCmd.AddCommand(downloadsCleanupCmd)
	rootCmd.AddCommand(downloadsCmd)
}

func runDownloadsCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	z := zipper.New(a.downloads, a.media, a.store, a.cfg.Downloads.LinkTTL)
	n, err := z.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Removed %d expired link(s)\n", n)
	return nil
}
