package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcalado/lumina-sub001/internal/assets"
	"github.com/jcalado/lumina-sub001/internal/detector"
	"github.com/jcalado/lumina-sub001/internal/faces"
	"github.com/jcalado/lumina-sub001/internal/syncer"
	"github.com/jcalado/lumina-sub001/internal/web"
	"github.com/jcalado/lumina-sub001/internal/web/handlers"
	"github.com/jcalado/lumina-sub001/internal/zipper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gallery API server",
	Long: `Start the HTTP server exposing the sync, albums, faces, people and
downloads API under /api/v1. Sync jobs started through the API stream
their progress over SSE.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	rootCmd.AddCommand(serveCmd)
}

// resolveServeHostPort applies WEB_HOST / WEB_PORT env overrides when
// the flags are left at their defaults.
func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	host := mustGetString(cmd, "host")
	port := mustGetInt(cmd, "port")

	if !cmd.Flags().Changed("host") {
		if h := os.Getenv("WEB_HOST"); h != "" {
			host = h
		}
	}
	if !cmd.Flags().Changed("port") {
		if p := os.Getenv("WEB_PORT"); p != "" {
			if n, err := strconv.Atoi(p); err == nil && n > 0 && n < 65536 {
				port = n
			}
		}
	}
	return host, port
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// The similarity index is optional; lookups fall back to pgvector
	// queries when it cannot be built.
	if err := a.faces.EnableHNSW(ctx, a.cfg.Database.FaceIndexPath); err != nil {
		fmt.Printf("Warning: face similarity index unavailable: %v\n", err)
	} else {
		fmt.Printf("Face similarity index ready (%d faces)\n", a.faces.HNSWCount())
	}

	gen := assets.NewGenerator(a.store, a.cfg.Sync.UploadConcurrency)
	defer gen.Close()

	hub := handlers.NewEventHub()
	det := detector.NewClient(a.cfg.Detector.URL)

	deps := web.Deps{
		Albums: a.albums,
		Media:  a.media,
		Jobs:   a.jobs,
		Faces:  a.faces,
		People: a.people,

		FaceIndexRebuilder: a.faces,
		FaceIndexPath:      a.cfg.Database.FaceIndexPath,

		Scanner:      a.scanner,
		Orchestrator: syncer.NewOrchestrator(a.albums, a.media, a.jobs, a.scanner, a.store, gen, a.cfg.Sync.UploadConcurrency, hub),
		Comparator:   syncer.NewComparator(a.scanner, a.store, a.albums, a.media),
		Processor:    faces.NewProcessor(a.media, a.faces, a.store, det),
		Grouping:     faces.NewGroupingEngine(a.faces, a.people),
		Zipper:       zipper.New(a.downloads, a.media, a.store, a.cfg.Downloads.LinkTTL),
	}

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(a.cfg, host, port, hub, deps)

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		if err := a.faces.SaveHNSWIndex(); err != nil {
			fmt.Printf("Warning: could not persist face index: %v\n", err)
		}
	}()

	return server.Start()
}
