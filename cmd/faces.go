package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jcalado/lumina-sub001/internal/detector"
	"github.com/jcalado/lumina-sub001/internal/faces"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Detect and group faces in the photo library",
}

var facesDetectCmd = &cobra.Command{
	Use:   "detect <album-id>",
	Short: "Run face detection over an album's photos",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesDetect,
}

var facesGroupCmd = &cobra.Command{
	Use:   "group",
	Short: "Cluster unassigned faces into people",
	Long: `Fetch a batch of unassigned faces and greedily cluster them by
embedding similarity. Matched clusters become new people or extend
existing confirmed people, depending on --mode.`,
	RunE: runFacesGroup,
}

func init() {
	facesGroupCmd.Flags().Int("limit", 0, "Unassigned faces per run (0 = config default)")
	facesGroupCmd.Flags().Bool("randomize", false, "Sample the batch randomly instead of by id")
	facesGroupCmd.Flags().Float64("threshold", 0, "Similarity threshold in (0, 1] (0 = config default)")
	facesGroupCmd.Flags().Int("max-comparisons", 0, "Comparison budget per run (0 = config default)")
	facesGroupCmd.Flags().String("mode", string(faces.ModeBoth), "Grouping mode: create_new, assign_existing or both")
	facesGroupCmd.Flags().Bool("pre-cluster", false, "Short-circuit byte-identical embeddings")

	facesCmd.AddCommand(facesDetectCmd)
	facesCmd.AddCommand(facesGroupCmd)
	rootCmd.AddCommand(facesCmd)
}

func runFacesDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	albumID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || albumID <= 0 {
		return fmt.Errorf("invalid album id %q", args[0])
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	album, err := a.albums.Get(ctx, albumID)
	if err != nil {
		return fmt.Errorf("could not load album %d: %w", albumID, err)
	}
	fmt.Printf("Detecting faces in %s\n", album.Path)

	det := detector.NewClient(a.cfg.Detector.URL)
	processor := faces.NewProcessor(a.media, a.faces, a.store, det)

	result, err := processor.ProcessAlbum(ctx, albumID)
	if err != nil {
		return fmt.Errorf("face detection failed: %w", err)
	}

	fmt.Printf("Processed %d photos, detected %d faces\n", result.PhotosProcessed, result.FacesDetected)
	for _, issue := range result.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
	return nil
}

func runFacesGroup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mode := faces.Mode(mustGetString(cmd, "mode"))
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := faces.GroupingOptions{
		Limit:          mustGetInt(cmd, "limit"),
		Randomize:      mustGetBool(cmd, "randomize"),
		Threshold:      mustGetFloat64(cmd, "threshold"),
		MaxComparisons: mustGetInt(cmd, "max-comparisons"),
		Mode:           mode,
		PreCluster:     mustGetBool(cmd, "pre-cluster"),
	}
	// Config supplies the defaults; the engine clamps the rest.
	if opts.Limit == 0 {
		opts.Limit = a.cfg.Faces.Limit
	}
	if opts.Threshold == 0 {
		opts.Threshold = a.cfg.Faces.Threshold
	}
	if opts.MaxComparisons == 0 {
		opts.MaxComparisons = a.cfg.Faces.MaxComparisons
	}

	engine := faces.NewGroupingEngine(a.faces, a.people)
	result, err := engine.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("grouping failed: %w", err)
	}

	fmt.Printf("Fetched %d faces: %d assigned, %d left unassigned, %d skipped\n",
		result.FacesFetched, result.FacesAssigned, result.FacesUnassigned, result.FacesSkipped)
	fmt.Printf("Created %d people in %d comparisons\n", result.PeopleCreated, result.Comparisons)
	if result.BudgetExhausted {
		fmt.Println("Comparison budget exhausted; rerun to continue clustering.")
	}
	for _, e := range result.ClusterErrors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}
