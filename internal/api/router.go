package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)

	// Signed URLs carry their own authorization in the token.
	r.Put("/uploads/{token}", s.handleUploadPut)
	r.Get("/uploads/{token}", s.handleUploadGet)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitRPS > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitRPS, time.Second))
		}

		r.Post("/auth/token", s.handleAuthToken)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			// The event stream holds its connection open past any
			// request deadline, so it stays outside the timeout group.
			r.Get("/jobs/{id}/events", s.handleJobEvents)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))

				r.Get("/status", s.handleStatus)

				r.Route("/datasets", func(r chi.Router) {
					r.Post("/upload-url", s.handleUploadURL)
					r.Post("/", s.handleDatasetRegister)
					r.Get("/", s.handleDatasetList)
					r.Get("/{id}", s.handleDatasetGet)
					r.Delete("/{id}", s.handleDatasetDelete)
				})

				r.Route("/models", func(r chi.Router) {
					r.Get("/", s.handleModelList)
					r.Get("/{id}", s.handleModelGet)
					r.Get("/{id}/importance", s.handleImportance)
				})

				r.Route("/predictions", func(r chi.Router) {
					r.Get("/", s.handlePredictionList)
					r.Get("/{id}", s.handlePredictionGet)
				})

				r.Post("/train", s.handleTrain)
				r.Post("/predict", s.handlePredict)
				r.Post("/optimize", s.handleOptimize)
				r.Post("/surface", s.handleSurface)
				r.Get("/drift", s.handleDrift)
				r.Post("/backtest", s.handleBacktest)

				r.Route("/jobs", func(r chi.Router) {
					r.Get("/", s.handleJobList)
					r.Get("/{id}", s.handleJobGet)
				})
			})
		})
	})

	return r
}
