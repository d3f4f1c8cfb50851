// Package api exposes leads and the dedup engine to the sales UI over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/metroad/leadops/internal/dedup"
	"github.com/metroad/leadops/internal/ingest"
	"github.com/metroad/leadops/internal/reconcile"
	"github.com/metroad/leadops/internal/store"
)

// Ingester runs one LOCALDATA service ingestion. *ingest.Pipeline satisfies it.
type Ingester interface {
	Run(ctx context.Context, serviceID string) (*ingest.Result, error)
}

// Options configures a Server.
type Options struct {
	AllowOrigins        []string
	CheckBizID          bool
	DisplaySimilarity   bool
	SimilarityThreshold float64
	ServiceIDs          []string // fallback for POST /api/ingest without a service_id
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store      store.Store
	reconciler *reconcile.Reconciler
	ingester   Ingester
	opts       Options
}

// NewServer creates a Server. ingester may be nil, in which case
// POST /api/ingest answers 503.
func NewServer(s store.Store, r *reconcile.Reconciler, ing Ingester, opts Options) *Server {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = dedup.DefaultSimilarityThreshold
	}
	if len(opts.AllowOrigins) == 0 {
		opts.AllowOrigins = []string{"*"}
	}
	return &Server{store: s, reconciler: r, ingester: ing, opts: opts}
}

// Router builds the chi router with all middleware and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// order matters: request id first so recover and logging can see it
	r.Use(middleware.RequestID)
	r.Use(recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/leads", s.listLeads)
		r.Patch("/leads/{id}/status", s.updateStatus)

		r.Get("/dedup/stats", s.dedupStats)
		r.Get("/dedup/groups", s.dedupGroups)
		r.Post("/dedup/merge", s.mergeGroup)
		r.Post("/dedup/cleanup", s.cleanup)

		r.Post("/ingest", s.ingest)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
