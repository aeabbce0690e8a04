// Package api serves the REST and websocket surface: dataset upload and
// registration, model training, batch prediction, the optimizer and
// surface evaluator, drift and importance reports, backtests, and job
// tracking. Every response travels in a {success, data, error} envelope.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"gemscope/internal/blob"
	"gemscope/internal/cfg"
	"gemscope/internal/jobs"
	"gemscope/internal/metrics"
	"gemscope/internal/model"
	"gemscope/internal/registry"
	"gemscope/internal/storage"
	"gemscope/internal/warehouse"
)

// Deps are the wired components the server routes requests into.
type Deps struct {
	Store     *storage.Store
	Blobs     *blob.Store
	Signer    *blob.Signer
	Warehouse *warehouse.Warehouse
	Models    *model.Manager
	Cache     *model.LRUCache
	Registry  *registry.Client
	Tracker   *jobs.Tracker
	Runner    *jobs.Runner
	Metrics   *metrics.Metrics
}

// Server is the HTTP API server.
type Server struct {
	cfg       cfg.Settings
	store     *storage.Store
	blobs     *blob.Store
	signer    *blob.Signer
	wh        *warehouse.Warehouse
	models    *model.Manager
	cache     *model.LRUCache
	registry  *registry.Client
	tracker   *jobs.Tracker
	runner    *jobs.Runner
	metrics   *metrics.Metrics
	tokens    *TokenManager
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	server    *http.Server
	startedAt time.Time
}

// New assembles the server and its route tree.
func New(settings cfg.Settings, deps Deps) *Server {
	s := &Server{
		cfg:      settings,
		store:    deps.Store,
		blobs:    deps.Blobs,
		signer:   deps.Signer,
		wh:       deps.Warehouse,
		models:   deps.Models,
		cache:    deps.Cache,
		registry: deps.Registry,
		tracker:  deps.Tracker,
		runner:   deps.Runner,
		metrics:  deps.Metrics,
		tokens:   NewTokenManager(settings.AuthSecret, settings.TokenTTL),
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		startedAt: time.Now(),
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.APIPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: job event streams hold their connection open
		// well past any fixed deadline.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler exposes the route tree, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start launches the server in the background.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("API server starting")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server error")
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}
