package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcalado/lumina-sub001/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Deps) {
	// Create handlers
	syncHandler := handlers.NewSyncHandler(deps.Orchestrator, deps.Jobs, s.hub, s.config.Sync.StaleJobAge)
	albumsHandler := handlers.NewAlbumsHandler(deps.Albums, deps.Media, deps.Comparator, deps.Scanner)
	facesHandler := handlers.NewFacesHandler(deps.Faces, deps.People, deps.Processor, deps.Grouping, deps.FaceIndexRebuilder, deps.FaceIndexPath)
	peopleHandler := handlers.NewPeopleHandler(deps.People, deps.Faces)
	downloadsHandler := handlers.NewDownloadsHandler(deps.Zipper)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Sync (long-running operations)
		r.Post("/sync", syncHandler.Start)
		r.Get("/sync/jobs", syncHandler.List)
		r.Get("/sync/jobs/{jobId}", syncHandler.Status)
		r.Get("/sync/jobs/{jobId}/events", syncHandler.Events)
		r.Delete("/sync/jobs/{jobId}", syncHandler.Cancel)
		r.Post("/sync/jobs/cleanup", syncHandler.CleanupStuck)

		// Albums
		r.Get("/albums", albumsHandler.List)
		r.Get("/albums/{albumId}", albumsHandler.Get)
		r.Get("/albums/{albumId}/media", albumsHandler.Media)
		r.Post("/albums/{albumId}/compare", albumsHandler.Compare)
		r.Delete("/albums/{albumId}/local-files", albumsHandler.DeleteLocalFiles)
		r.Post("/albums/{albumId}/faces/detect", facesHandler.Detect)
		r.Post("/albums/{albumId}/download", downloadsHandler.Create)

		// Faces
		r.Post("/faces/group", facesHandler.Group)
		r.Get("/faces/unassigned", facesHandler.Unassigned)
		r.Post("/faces/assign", facesHandler.Assign)
		r.Post("/faces/{faceId}/ignore", facesHandler.Ignore)
		r.Get("/faces/{faceId}/similar", facesHandler.Similar)
		r.Post("/faces/rebuild-index", facesHandler.RebuildIndex)

		// People
		r.Get("/people", peopleHandler.List)
		r.Post("/people", peopleHandler.Create)
		r.Get("/people/{personId}", peopleHandler.Get)
		r.Get("/people/{personId}/faces", peopleHandler.Faces)
		r.Patch("/people/{personId}", peopleHandler.Update)
		r.Post("/people/{personId}/merge", peopleHandler.Merge)
		r.Delete("/people/{personId}", peopleHandler.Delete)

		// Downloads
		r.Get("/downloads/{token}", downloadsHandler.Status)
		r.Get("/downloads/{token}/file", downloadsHandler.File)
		r.Post("/downloads/cleanup", downloadsHandler.Cleanup)
	})

	// Anything else gets a short landing page; the web UI ships
	// separately.
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Lumina</title></head>
<body>
<h1>Lumina</h1>
<p>The API is served under <code>/api/v1</code>.</p>
</body>
</html>`))
	})
}
