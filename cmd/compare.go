package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcalado/lumina-sub001/internal/syncer"
)

var compareCmd = &cobra.Command{
	Use:   "compare <album-path>",
	Short: "Compare an album across filesystem, remote store and catalog",
	Long: `Run a three-way comparison for one album and print which copies each
file is missing from. A clean comparison certifies the album's local
files as safe to delete.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func printFileSection(title string, files []string) {
	if len(files) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", title, len(files))
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	comparator := syncer.NewComparator(a.scanner, a.store, a.albums, a.media)
	report, err := comparator.Compare(ctx, args[0])
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	fmt.Printf("Album: %s\n", report.AlbumPath)
	fmt.Printf("Inconsistencies: %d\n", report.Inconsistencies)

	printFileSection("Only on filesystem", report.LocalOnly)
	printFileSection("Only in remote store", report.RemoteOnly)
	printFileSection("Only in catalog", report.CatalogOnly)
	printFileSection("Local, missing from remote", report.LocalMissingFromRemote)
	printFileSection("Local, missing from catalog", report.LocalMissingFromCatalog)
	printFileSection("Remote, missing from filesystem", report.RemoteMissingFromLocal)
	printFileSection("Remote, missing from catalog", report.RemoteMissingFromCatalog)
	printFileSection("Catalog, missing from filesystem", report.CatalogMissingFromLocal)
	printFileSection("Catalog, missing from remote", report.CatalogMissingFromRemote)

	for _, e := range report.Errors {
		fmt.Printf("\nWarning: %s\n", e)
	}

	if report.SafeDeleteGranted {
		fmt.Println("\nAll three copies agree. Local files are certified safe to delete.")
	} else {
		fmt.Println("\nCopies disagree. Local files are NOT safe to delete.")
	}
	return nil
}
