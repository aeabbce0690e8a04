package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gemscope/internal/blob"
	"gemscope/internal/common"
	"gemscope/internal/dataset"
	"gemscope/internal/storage"
)

// handleUploadURL issues a signed, expiring URL a client PUTs its CSV to.
// The dataset ID is minted here so the object key and the later
// registration agree on it.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename    string `json:"filename" validate:"required"`
		ContentType string `json:"contentType"`
	}
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	filename := path.Base(strings.TrimSpace(req.Filename))
	if filename == "" || filename == "." || filename == "/" {
		s.respondError(w, fmt.Errorf("invalid filename %q: %w", req.Filename, common.ErrValidation))
		return
	}

	datasetID := uuid.NewString()
	objectKey := fmt.Sprintf("datasets/%s/%s/%s", ownerID(r), datasetID, filename)

	token, err := s.signer.Token(blob.Grant{
		Method:      http.MethodPut,
		Key:         objectKey,
		ContentType: req.ContentType,
		ExpiresAt:   time.Now().Add(s.cfg.UploadTTL).Unix(),
	})
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.metrics.UploadsTotal.Inc()
	s.respond(w, http.StatusOK, map[string]any{
		"uploadUrl": s.cfg.PublicBaseURL + "/uploads/" + token,
		"bucket":    s.blobs.Bucket(),
		"objectKey": objectKey,
		"datasetId": datasetID,
	})
}

// handleUploadPut accepts the object body for a signed PUT grant.
func (s *Server) handleUploadPut(w http.ResponseWriter, r *http.Request) {
	grant, err := s.signer.Verify(chi.URLParam(r, "token"), time.Now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if grant.Method != http.MethodPut {
		s.respondError(w, fmt.Errorf("token does not allow uploads: %w", common.ErrUnauthorized))
		return
	}
	if grant.ContentType != "" {
		if ct := r.Header.Get("Content-Type"); ct != "" && ct != grant.ContentType {
			s.respondError(w, fmt.Errorf("content type %q does not match the signed grant: %w", ct, common.ErrValidation))
			return
		}
	}

	size, err := s.blobs.Put(grant.Key, r.Body)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"objectKey": grant.Key,
		"size":      size,
	})
}

// handleUploadGet streams the object named by a signed GET grant.
func (s *Server) handleUploadGet(w http.ResponseWriter, r *http.Request) {
	grant, err := s.signer.Verify(chi.URLParam(r, "token"), time.Now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if grant.Method != http.MethodGet {
		s.respondError(w, fmt.Errorf("token does not allow downloads: %w", common.ErrUnauthorized))
		return
	}

	f, err := s.blobs.Open(grant.Key)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer f.Close()

	contentType := grant.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(grant.Key)))
	if _, err := io.Copy(w, f); err != nil {
		log.Error().Err(err).Str("key", grant.Key).Msg("Download aborted")
	}
}

// handleDatasetRegister ingests a previously uploaded CSV into the
// warehouse and records the dataset.
func (s *Server) handleDatasetRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID string `json:"datasetId" validate:"required"`
		Name      string `json:"name" validate:"required"`
		ObjectKey string `json:"objectKey" validate:"required"`
		Notes     string `json:"notes"`
	}
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	if _, err := s.store.GetDataset(req.DatasetID); err == nil {
		s.respondError(w, fmt.Errorf("dataset %s is already registered: %w", req.DatasetID, common.ErrConflict))
		return
	} else if !errors.Is(err, common.ErrNotFound) {
		s.respondError(w, err)
		return
	}

	if !s.blobs.Exists(req.ObjectKey) {
		s.respondError(w, fmt.Errorf("uploaded object %q: %w", req.ObjectKey, common.ErrNotFound))
		return
	}
	csvPath, err := s.blobs.Path(req.ObjectKey)
	if err != nil {
		s.respondError(w, err)
		return
	}

	start := time.Now()
	rowCount, cols, err := s.wh.IngestCSV(r.Context(), req.DatasetID, csvPath)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := dataset.ValidateColumns(cols); err != nil {
		if dropErr := s.wh.Drop(context.Background(), req.DatasetID); dropErr != nil {
			log.Warn().Err(dropErr).Str("dataset", req.DatasetID).Msg("Failed to drop rejected dataset")
		}
		s.respondError(w, err)
		return
	}

	record := storage.DatasetRecord{
		ID:        req.DatasetID,
		OwnerID:   ownerID(r),
		Name:      req.Name,
		Bucket:    s.blobs.Bucket(),
		ObjectKey: req.ObjectKey,
		RowCount:  rowCount,
		Columns:   cols,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutDataset(record); err != nil {
		if dropErr := s.wh.Drop(context.Background(), req.DatasetID); dropErr != nil {
			log.Warn().Err(dropErr).Str("dataset", req.DatasetID).Msg("Failed to drop unrecorded dataset")
		}
		s.respondError(w, err)
		return
	}
	s.registry.MirrorDataset(r.Context(), record)

	s.metrics.DatasetsRegistered.Inc()
	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Str("dataset", record.ID).
		Str("owner", record.OwnerID).
		Int("rows", rowCount).
		Msg("Dataset registered")

	s.respond(w, http.StatusCreated, map[string]any{
		"datasetId": record.ID,
		"rowCount":  rowCount,
		"columns":   cols,
	})
}

func (s *Server) handleDatasetList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListDatasets(ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if records == nil {
		records = []storage.DatasetRecord{}
	}
	s.respond(w, http.StatusOK, map[string]any{"datasets": records})
}

// handleDatasetGet returns the dataset record next to its column profile.
func (s *Server) handleDatasetGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.ownedDataset(chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}

	profile, err := dataset.BuildProfile(r.Context(), s.wh, record.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"dataset": record,
		"profile": profile,
	})
}

// handleDatasetDelete drops the dataset's warehouse table, blob object,
// and record.
func (s *Server) handleDatasetDelete(w http.ResponseWriter, r *http.Request) {
	record, err := s.ownedDataset(chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.wh.Drop(r.Context(), record.ID); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.blobs.Delete(record.ObjectKey); err != nil {
		log.Warn().Err(err).Str("key", record.ObjectKey).Msg("Failed to delete dataset object")
	}
	if err := s.store.DeleteDataset(record.ID); err != nil {
		s.respondError(w, err)
		return
	}

	log.Info().Str("dataset", record.ID).Msg("Dataset deleted")
	s.respond(w, http.StatusOK, map[string]any{"deleted": true})
}

// ownedDataset loads a dataset record, hiding other owners' datasets
// behind not-found.
func (s *Server) ownedDataset(id, owner string) (storage.DatasetRecord, error) {
	record, err := s.store.GetDataset(id)
	if err != nil {
		return storage.DatasetRecord{}, err
	}
	if record.OwnerID != owner {
		return storage.DatasetRecord{}, fmt.Errorf("dataset %s: %w", id, common.ErrNotFound)
	}
	return record, nil
}
