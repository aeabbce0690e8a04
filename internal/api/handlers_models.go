package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
	"gemscope/internal/jobs"
	"gemscope/internal/model"
	"gemscope/internal/storage"
)

type trainRequest struct {
	DatasetID string `json:"datasetId" validate:"required"`
	Family    string `json:"family"`
	Seed      int64  `json:"seed"`
}

type trainOutcome struct {
	ModelID     string             `json:"modelId"`
	DatasetID   string             `json:"datasetId"`
	Family      string             `json:"family"`
	Metrics     map[string]float64 `json:"metrics"`
	TrainedRows int                `json:"trainedRows"`
	HoldoutRows int                `json:"holdoutRows"`
}

// handleTrain trains a model family on a registered dataset. With
// ?async=1 the work runs as a job and the response carries its ID.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	owner := ownerID(r)
	if _, err := s.ownedDataset(req.DatasetID, owner); err != nil {
		s.respondError(w, err)
		return
	}

	if r.URL.Query().Get("async") == "1" {
		payload, _ := json.Marshal(req)
		job, err := s.runner.Submit(owner, jobs.KindTrain, payload,
			func(ctx context.Context, progress func(float64)) (json.RawMessage, error) {
				outcome, err := s.trainDataset(ctx, req, owner, progress)
				if err != nil {
					return nil, err
				}
				return json.Marshal(outcome)
			})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respond(w, http.StatusAccepted, map[string]any{"jobId": job.ID})
		return
	}

	outcome, err := s.trainDataset(r.Context(), req, owner, nil)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, outcome)
}

// trainDataset is the shared core of sync and async training.
func (s *Server) trainDataset(ctx context.Context, req trainRequest, owner string, progress func(float64)) (*trainOutcome, error) {
	frame, err := dataset.LoadFrame(ctx, s.wh, req.DatasetID)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(0.2)
	}

	artifact, trainMetrics, err := s.models.TrainAndStore(frame, model.TrainParams{
		DatasetID: req.DatasetID,
		Family:    req.Family,
		Seed:      req.Seed,
	}, owner)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(0.9)
	}

	if record, recErr := s.store.GetModel(artifact.ID); recErr == nil {
		s.registry.MirrorModel(ctx, record)
	}

	return &trainOutcome{
		ModelID:     artifact.ID,
		DatasetID:   req.DatasetID,
		Family:      artifact.Family,
		Metrics:     trainMetrics.Map(),
		TrainedRows: artifact.TrainedRows,
		HoldoutRows: artifact.HoldoutRows,
	}, nil
}

func (s *Server) handleModelList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListModels(r.URL.Query().Get("datasetId"))
	if err != nil {
		s.respondError(w, err)
		return
	}

	owner := ownerID(r)
	owned := make([]storage.ModelRecord, 0, len(records))
	for _, record := range records {
		if record.OwnerID == owner {
			owned = append(owned, record)
		}
	}
	s.respond(w, http.StatusOK, map[string]any{"models": owned})
}

func (s *Server) handleModelGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.ownedModel(chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"model": record})
}

// handleImportance permutes each feature of the model's training dataset
// and reports the damage to both heads.
func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request) {
	record, err := s.ownedModel(chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}

	artifact, err := model.LoadArtifact(s.blobs, record.ArtifactKey)
	if err != nil {
		s.respondError(w, err)
		return
	}
	frame, err := dataset.LoadFrame(r.Context(), s.wh, record.DatasetID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	importance, err := model.PermutationImportance(artifact, frame, common.TrainSeed)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"modelId":    record.ID,
		"datasetId":  record.DatasetID,
		"importance": importance,
	})
}

// handleDrift compares feature distributions between two registered
// datasets.
func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	baselineID := r.URL.Query().Get("baseline")
	currentID := r.URL.Query().Get("current")
	if baselineID == "" || currentID == "" {
		s.respondError(w, fmt.Errorf("baseline and current query parameters are required: %w", common.ErrValidation))
		return
	}

	owner := ownerID(r)
	if _, err := s.ownedDataset(baselineID, owner); err != nil {
		s.respondError(w, err)
		return
	}
	if _, err := s.ownedDataset(currentID, owner); err != nil {
		s.respondError(w, err)
		return
	}

	baseline, err := dataset.LoadFrame(r.Context(), s.wh, baselineID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	current, err := dataset.LoadFrame(r.Context(), s.wh, currentID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	report := model.DetectDrift(baseline, current, 0)
	s.respond(w, http.StatusOK, map[string]any{
		"baseline": baselineID,
		"current":  currentID,
		"report":   report,
	})
}

// ownedModel loads a model record, hiding other owners' models behind
// not-found.
func (s *Server) ownedModel(id, owner string) (storage.ModelRecord, error) {
	record, err := s.store.GetModel(id)
	if err != nil {
		return storage.ModelRecord{}, err
	}
	if record.OwnerID != owner {
		return storage.ModelRecord{}, fmt.Errorf("model %s: %w", id, common.ErrNotFound)
	}
	return record, nil
}
