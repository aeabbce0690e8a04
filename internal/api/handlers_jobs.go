package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"gemscope/internal/common"
	"gemscope/internal/jobs"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	all, err := s.tracker.List()
	if err != nil {
		s.respondError(w, err)
		return
	}

	owner := ownerID(r)
	owned := make([]jobs.Job, 0, len(all))
	for _, job := range all {
		if job.OwnerID == owner {
			owned = append(owned, job)
		}
	}
	s.respond(w, http.StatusOK, map[string]any{"jobs": owned})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.ownedJob(chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"job": job})
}

// handleJobEvents upgrades to a websocket and streams the job's state
// changes until it reaches a terminal state or the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, err := s.ownedJob(chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}

	// Subscribe before reading the snapshot so no transition between the
	// two can be missed.
	events, cancel := s.tracker.Subscribe(job.ID)
	defer cancel()
	if current, err := s.tracker.Get(job.ID); err == nil {
		job = current
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.metrics.WSConnections.Inc()
	defer s.metrics.WSConnections.Dec()

	// The read loop exists only to notice the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := jobs.Event{
		JobID:    job.ID,
		Kind:     job.Kind,
		State:    job.State,
		Progress: job.Progress,
		Error:    job.Error,
	}
	if err := writeEvent(conn, snapshot); err != nil {
		return
	}
	if job.Terminal() {
		closeStream(conn)
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				closeStream(conn)
				return
			}
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event jobs.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeStream(conn *websocket.Conn) {
	deadline := time.Now().Add(wsWriteWait)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		return
	}
}

func (s *Server) ownedJob(id, owner string) (jobs.Job, error) {
	job, err := s.tracker.Get(id)
	if err != nil {
		return jobs.Job{}, err
	}
	if job.OwnerID != owner {
		return jobs.Job{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return job, nil
}
