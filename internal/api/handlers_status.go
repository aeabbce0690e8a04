package api

import (
	"net/http"
	"os"
	"time"

	"gemscope/internal/storage"
)

// handleHealth reports liveness plus per-component checks. Any failing
// component turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"warehouse": "ok",
		"blobs":     "ok",
	}
	healthy := true

	if err := s.wh.Ping(r.Context()); err != nil {
		checks["warehouse"] = "unavailable"
		healthy = false
	}
	if _, err := os.Stat(s.cfg.BlobDir); err != nil {
		checks["blobs"] = "unavailable"
		healthy = false
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	s.respond(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}

// handleStatus summarizes the owner's records plus process-level state:
// cache fill, job counts by state, registry breaker.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	datasets, err := s.store.ListDatasets(owner)
	if err != nil {
		s.respondError(w, err)
		return
	}
	models, err := s.store.ListModels("")
	if err != nil {
		s.respondError(w, err)
		return
	}
	predictions, err := s.store.ListPredictions("")
	if err != nil {
		s.respondError(w, err)
		return
	}
	jobList, err := s.tracker.List()
	if err != nil {
		s.respondError(w, err)
		return
	}

	modelCount := countOwned(models, owner, func(rec storage.ModelRecord) string { return rec.OwnerID })
	predictionCount := countOwned(predictions, owner, func(rec storage.PredictionRecord) string { return rec.OwnerID })

	jobCounts := map[string]int{}
	for _, job := range jobList {
		if job.OwnerID == owner {
			jobCounts[job.State]++
		}
	}

	s.respond(w, http.StatusOK, map[string]any{
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
		"datasets":      len(datasets),
		"models":        modelCount,
		"predictions":   predictionCount,
		"jobs":          jobCounts,
		"modelCache": map[string]any{
			"entries":  s.cache.Len(),
			"capacity": s.cfg.ModelCacheSize,
		},
		"registry": map[string]any{
			"enabled": s.registry.Enabled(),
			"breaker": s.registry.BreakerState(),
		},
	})
}

func countOwned[T any](records []T, owner string, ownerOf func(T) string) int {
	count := 0
	for _, record := range records {
		if ownerOf(record) == owner {
			count++
		}
	}
	return count
}
