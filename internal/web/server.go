// Package web serves the gallery REST API on chi.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jcalado/lumina-sub001/internal/config"
	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/faces"
	"github.com/jcalado/lumina-sub001/internal/library"
	"github.com/jcalado/lumina-sub001/internal/syncer"
	"github.com/jcalado/lumina-sub001/internal/web/handlers"
	"github.com/jcalado/lumina-sub001/internal/web/middleware"
	"github.com/jcalado/lumina-sub001/internal/zipper"
)

// Deps carries everything the API serves.
type Deps struct {
	Albums database.AlbumRepository
	Media  database.MediaRepository
	Jobs   database.JobRepository
	Faces  database.FaceRepository
	People database.PersonRepository

	// FaceIndexRebuilder may be nil when the backend has no rebuildable
	// similarity index; FaceIndexPath is where a rebuilt index persists.
	FaceIndexRebuilder handlers.IndexRebuilder
	FaceIndexPath      string

	Scanner      *library.Scanner
	Orchestrator *syncer.Orchestrator
	Comparator   *syncer.Comparator
	Processor    *faces.Processor
	Grouping     *faces.GroupingEngine
	Zipper       *zipper.Zipper
}

// Server is the gallery HTTP server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	hub        *handlers.EventHub
}

// NewServer creates the web server. hub must be the same EventHub the
// orchestrator publishes to, so SSE streams see sync progress.
func NewServer(cfg *config.Config, host string, port int, hub *handlers.EventHub, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
		hub:    hub,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and zip downloads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
