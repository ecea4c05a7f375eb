package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"podmill/internal/auth"
	"podmill/internal/cache"
	"podmill/internal/config"
	"podmill/internal/docstore"
	"podmill/internal/jobs"
	"podmill/internal/logging"
	"podmill/internal/monitor"
	"podmill/internal/ratelimit"
	"podmill/internal/services"
	"podmill/internal/storage"
	"podmill/internal/workflow"
)

// Deps bundles the HTTP surface's collaborators. Orchestrator, Tracker,
// Documents, and Verifier are required; the rest degrade gracefully when
// absent (no admission control, no caching, no metrics).
type Deps struct {
	Orchestrator *workflow.Orchestrator
	Tracker      *jobs.Tracker
	Documents    docstore.Store
	Storage      storage.Store
	Verifier     auth.Verifier
	Limiter      *ratelimit.Limiter
	Cache        *cache.Manager
	Collector    *monitor.Collector
}

// Server builds the gin engine behind the daemon's HTTP listener.
type Server struct {
	logger    *slog.Logger
	orch      *workflow.Orchestrator
	tracker   *jobs.Tracker
	documents docstore.Store
	store     storage.Store
	verifier  auth.Verifier
	limiter   *ratelimit.Limiter
	cache     *cache.Manager
	collector *monitor.Collector
	maxUpload int64
}

// New builds the HTTP surface over its collaborators.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	switch {
	case deps.Orchestrator == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "server requires an orchestrator", nil)
	case deps.Tracker == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "server requires a job tracker", nil)
	case deps.Documents == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "server requires a document store", nil)
	case deps.Verifier == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "server requires a token verifier", nil)
	}
	maxUpload := int64(0)
	if cfg != nil {
		maxUpload = int64(cfg.Storage.MaxFileSizeMB) << 20
	}
	if maxUpload <= 0 {
		maxUpload = storage.DefaultMaxBytes
	}
	return &Server{
		logger:    logging.NewComponentLogger(logger, "server"),
		orch:      deps.Orchestrator,
		tracker:   deps.Tracker,
		documents: deps.Documents,
		store:     deps.Storage,
		verifier:  deps.Verifier,
		limiter:   deps.Limiter,
		cache:     deps.Cache,
		collector: deps.Collector,
		maxUpload: maxUpload,
	}, nil
}

// Router assembles the gin engine: recovery and correlation first, then the
// authenticated and rate-limited /api/v1 group.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(Recovery(s.logger))
	r.Use(RequestID())
	r.Use(s.observe())

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, codeRouteNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.GET("/healthz", s.health)

	api := r.Group("/api/v1")
	api.Use(s.authenticate())
	api.Use(s.admit())

	api.POST("/podcasts/process", s.processPodcast)
	api.POST("/podcasts/upload", s.uploadPodcast)
	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/:id", s.getJob)
	api.DELETE("/jobs/:id", s.cancelJob)
	api.GET("/documents/:id", s.getDocument)
	api.GET("/metrics", s.metrics)

	return r
}
