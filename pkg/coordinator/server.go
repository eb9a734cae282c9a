// Package coordinator implements the coordinator's HTTP API (spec
// component C6): it wires C1-C5 together behind the JSON/HTTP routes
// of spec.md §6, performs authorization, and drives the create_blob
// and delete_blob lifecycles.
package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/menmos/menmos/pkg/bitmap"
	"github.com/menmos/menmos/pkg/config"
	"github.com/menmos/menmos/pkg/credential"
	"github.com/menmos/menmos/pkg/events"
	"github.com/menmos/menmos/pkg/lockstripe"
	"github.com/menmos/menmos/pkg/log"
	"github.com/menmos/menmos/pkg/metrics"
	"github.com/menmos/menmos/pkg/queryeval"
	"github.com/menmos/menmos/pkg/router"
	"github.com/menmos/menmos/pkg/store"
)

// Server is the coordinator's HTTP API.
type Server struct {
	cfg    *config.Config
	st     *store.Store
	idx    *bitmap.Index
	rtr    *router.Router
	cred   *credential.Service
	qe     *queryeval.Evaluator
	locks  *lockstripe.Stripes
	events *events.Broker
	logger zerolog.Logger

	httpServer *http.Server
	sweepStop  chan struct{}
}

// New wires C1-C5 into a Server ready to serve spec.md §6's routes.
func New(cfg *config.Config, st *store.Store, idx *bitmap.Index, rtr *router.Router, cred *credential.Service) *Server {
	s := &Server{
		cfg:       cfg,
		st:        st,
		idx:       idx,
		rtr:       rtr,
		cred:      cred,
		qe:        queryeval.New(idx, st, rtr, cred),
		locks:     lockstripe.New(cfg.LockStripes),
		events:    events.NewBroker(),
		logger:    log.WithComponent("coordinator"),
		sweepStop: make(chan struct{}),
	}
	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("router", true, "")
	s.events.Start()
	return s
}

// Events returns the coordinator's lifecycle event broker so callers
// can subscribe to blob and node transitions.
func (s *Server) Events() *events.Broker {
	return s.events
}

// Router builds the chi router for the coordinator's API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.With(s.requireAdmin).Post("/auth/register", s.handleRegister)

		r.Post("/blob", s.handleCreateBlob)
		r.Get("/blob/{id}", s.handleReadBlob)
		r.Put("/blob/{id}", s.handleOverwriteBlob)
		r.Delete("/blob/{id}", s.handleDeleteBlob)
		r.Put("/blob/{id}/metadata", s.handleUpdateMetadata)

		r.Post("/node", s.handleRegisterNode)
		r.Post("/node/{id}/heartbeat", s.handleHeartbeat)

		r.Post("/query", s.handleQuery)

		r.With(s.requireAdmin).Post("/flush", s.handleFlush)
		r.With(s.requireAdmin).Post("/blob/{id}/move", s.handleMoveBlob)
	})

	return r
}

// Start begins serving addr and launches the orphan sweeper.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Router()}
	go s.runOrphanSweeper(s.cfg.OrphanTimeout)
	s.rtr.Start(router.Options{
		RebalanceInterval:  s.cfg.RebalanceInterval,
		RebalanceThreshold: s.cfg.RebalanceThreshold,
	})
	s.logger.Info().Str("addr", addr).Msg("coordinator listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and background loops.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.sweepStop)
	s.rtr.Stop()
	s.events.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
