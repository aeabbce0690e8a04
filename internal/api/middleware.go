package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"gemscope/internal/common"
)

type contextKey string

const ownerKey contextKey = "owner"

// requestLogger records request metrics by route pattern and logs each
// completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			// Hijacked connections (websockets) never write a status.
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, strconv.Itoa(status), elapsed.Seconds())

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	})
}

// requireAuth validates the bearer token and stores the owner ID in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.respondError(w, fmt.Errorf("missing authorization header: %w", common.ErrUnauthorized))
			return
		}
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			s.respondError(w, fmt.Errorf("authorization header must carry a bearer token: %w", common.ErrUnauthorized))
			return
		}

		claims, err := s.tokens.Parse(strings.TrimPrefix(header, prefix))
		if err != nil {
			s.respondError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ownerKey, claims.OwnerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerID returns the authenticated owner stored by requireAuth.
func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}
