package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"gemscope/internal/backtest"
	"gemscope/internal/blob"
	"gemscope/internal/common"
	"gemscope/internal/dataset"
	"gemscope/internal/jobs"
	"gemscope/internal/model"
	"gemscope/internal/optimize"
	"gemscope/internal/storage"
	"gemscope/internal/surface"
)

// adapterFor resolves the dataset's trained model pair, training and
// storing one when none exists yet. Fresh training metrics come back only
// on the train path; a cache or store hit returns nil metrics.
func (s *Server) adapterFor(ctx context.Context, datasetID, family, owner string) (model.Adapter, map[string]float64, error) {
	adapter, err := s.models.Adapter(datasetID, family)
	if err == nil {
		return adapter, nil, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, nil, err
	}

	frame, err := dataset.LoadFrame(ctx, s.wh, datasetID)
	if err != nil {
		return nil, nil, err
	}
	artifact, trainMetrics, err := s.models.TrainAndStore(frame, model.TrainParams{
		DatasetID: datasetID,
		Family:    family,
	}, owner)
	if err != nil {
		return nil, nil, err
	}
	if record, recErr := s.store.GetModel(artifact.ID); recErr == nil {
		s.registry.MirrorModel(ctx, record)
	}

	adapter, err = s.models.Adapter(datasetID, family)
	if err != nil {
		return nil, nil, err
	}
	return adapter, trainMetrics.Map(), nil
}

type optimizeRequest struct {
	DatasetID    string   `json:"datasetId" validate:"required"`
	Objective    string   `json:"objective"`
	Samples      int      `json:"samples"`
	MinProb      float64  `json:"minProb"`
	TargetPrice  *float64 `json:"targetPrice"`
	TargetProb   *float64 `json:"targetProb"`
	FixedColor   string   `json:"fixedColor"`
	FixedClarity string   `json:"fixedClarity"`
	ModelFamily  string   `json:"modelFamily"`
	Seed         int64    `json:"seed"`
}

// handleOptimize runs the seeded random search. A run that finds no
// admissible candidate still succeeds, with an empty object as data.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	owner := ownerID(r)
	if r.URL.Query().Get("async") == "1" {
		payload, _ := json.Marshal(req)
		job, err := s.runner.Submit(owner, jobs.KindOptimize, payload,
			func(ctx context.Context, progress func(float64)) (json.RawMessage, error) {
				result, err := s.runOptimize(ctx, req, owner, progress)
				if err != nil {
					return nil, err
				}
				return json.Marshal(result)
			})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respond(w, http.StatusAccepted, map[string]any{"jobId": job.ID})
		return
	}

	result, err := s.runOptimize(r.Context(), req, owner, nil)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) runOptimize(ctx context.Context, req optimizeRequest, owner string, progress func(float64)) (optimize.Result, error) {
	if _, err := s.ownedDataset(req.DatasetID, owner); err != nil {
		return optimize.Result{}, err
	}
	profile, err := dataset.BuildProfile(ctx, s.wh, req.DatasetID)
	if err != nil {
		return optimize.Result{}, err
	}
	adapter, _, err := s.adapterFor(ctx, req.DatasetID, req.ModelFamily, owner)
	if err != nil {
		return optimize.Result{}, err
	}

	params := optimize.Params{
		Objective:    req.Objective,
		Samples:      req.Samples,
		MinProb:      req.MinProb,
		TargetPrice:  req.TargetPrice,
		TargetProb:   req.TargetProb,
		FixedColor:   req.FixedColor,
		FixedClarity: req.FixedClarity,
		Seed:         req.Seed,
	}
	if params.Samples == 0 {
		params.Samples = s.cfg.OptimizerSamples
	}
	if params.Seed == 0 {
		params.Seed = s.cfg.OptimizerSeed
	}
	if progress != nil {
		params.Progress = func(done, total int) {
			progress(float64(done) / float64(total))
		}
	}

	start := time.Now()
	result, err := optimize.Run(profile, adapter, params)
	if err != nil {
		return optimize.Result{}, err
	}

	s.metrics.OptimizeRuns.Inc()
	s.metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
	s.metrics.OptimizeSamples.Observe(float64(params.Samples))
	if !result.Found {
		s.metrics.OptimizeEmptyResults.Inc()
	}
	return result, nil
}

type surfaceRequest struct {
	DatasetID    string `json:"datasetId" validate:"required"`
	VarX         string `json:"varX" validate:"required"`
	VarY         string `json:"varY" validate:"required"`
	Metric       string `json:"metric"`
	Points       int    `json:"points"`
	FixedColor   string `json:"fixedColor"`
	FixedClarity string `json:"fixedClarity"`
	ModelFamily  string `json:"modelFamily"`
}

// handleSurface evaluates the response surface over a 2D grid.
func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	var req surfaceRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	owner := ownerID(r)
	if _, err := s.ownedDataset(req.DatasetID, owner); err != nil {
		s.respondError(w, err)
		return
	}
	profile, err := dataset.BuildProfile(r.Context(), s.wh, req.DatasetID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	adapter, _, err := s.adapterFor(r.Context(), req.DatasetID, req.ModelFamily, owner)
	if err != nil {
		s.respondError(w, err)
		return
	}

	params := surface.Params{
		VarX:         req.VarX,
		VarY:         req.VarY,
		Metric:       req.Metric,
		Points:       req.Points,
		FixedColor:   req.FixedColor,
		FixedClarity: req.FixedClarity,
	}
	if params.Points == 0 {
		params.Points = s.cfg.SurfacePoints
	}

	start := time.Now()
	grid, err := surface.Compute(profile, adapter, params)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.metrics.SurfaceEvals.Inc()
	s.metrics.SurfaceDuration.Observe(time.Since(start).Seconds())
	s.metrics.SurfaceCells.Observe(float64(len(grid.Z) * len(grid.Z[0])))
	s.respond(w, http.StatusOK, grid)
}

type predictRequest struct {
	DatasetID   string `json:"datasetId" validate:"required"`
	ModelFamily string `json:"modelFamily"`
	Horizon     int    `json:"horizon"`
}

// handlePredict scores every row of a dataset and stores the augmented
// CSV as a prediction object. With ?async=1 the work runs as a job.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
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
		job, err := s.runner.Submit(owner, jobs.KindPredict, payload,
			func(ctx context.Context, progress func(float64)) (json.RawMessage, error) {
				outcome, err := s.runPredict(ctx, req, owner, progress)
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

	outcome, err := s.runPredict(r.Context(), req, owner, nil)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, outcome)
}

type predictOutcome struct {
	PredictionID string             `json:"predictionId"`
	DatasetID    string             `json:"datasetId"`
	RowCount     int                `json:"rowCount"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	PreviewRows  []map[string]any   `json:"previewRows"`
	OutputObject map[string]string  `json:"outputObject"`
	DownloadURL  string             `json:"downloadUrl"`
}

// runPredict is the shared core of sync and async batch prediction. It
// appends the three prediction columns to every dataset row, stores the
// result as a blob, and records the run.
func (s *Server) runPredict(ctx context.Context, req predictRequest, owner string, progress func(float64)) (*predictOutcome, error) {
	adapter, trainMetrics, err := s.adapterFor(ctx, req.DatasetID, req.ModelFamily, owner)
	if err != nil {
		return nil, err
	}

	headers, rows, err := s.wh.ReadRows(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	col := make(map[string]int, len(headers))
	for i, h := range headers {
		col[h] = i
	}
	for _, required := range common.RequiredColumns {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("dataset %s is missing column %s: %w", req.DatasetID, required, common.ErrValidation)
		}
	}

	outHeaders := append(append([]string{}, headers...),
		common.ColPredictedPrice, common.ColPredictedSaleProba, common.ColRecommendedReserve)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(outHeaders); err != nil {
		return nil, fmt.Errorf("write prediction header: %w", err)
	}

	preview := make([]map[string]any, 0, common.PreviewRowCount)
	for i, row := range rows {
		candidate, err := candidateFromRow(row, col)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		price, err := adapter.Predict(candidate)
		if err != nil {
			return nil, fmt.Errorf("predict price for row %d: %w", i, err)
		}
		proba, err := adapter.PredictProba(candidate)
		if err != nil {
			return nil, fmt.Errorf("predict sale probability for row %d: %w", i, err)
		}
		reserve := model.Reserve(price, proba)

		outRow := append(append([]string{}, row...),
			strconv.FormatFloat(price, 'f', 2, 64),
			strconv.FormatFloat(proba, 'f', 4, 64),
			strconv.FormatFloat(reserve, 'f', 2, 64))
		if err := writer.Write(outRow); err != nil {
			return nil, fmt.Errorf("write prediction row %d: %w", i, err)
		}

		if len(preview) < common.PreviewRowCount {
			entry := make(map[string]any, len(outHeaders))
			for j, h := range outHeaders {
				entry[h] = outRow[j]
			}
			preview = append(preview, entry)
		}
		if progress != nil && (i+1)%100 == 0 {
			progress(float64(i+1) / float64(len(rows)) * 0.9)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush prediction csv: %w", err)
	}

	predictionID := uuid.NewString()
	outputKey := fmt.Sprintf("predictions/%s/results.csv", predictionID)
	if _, err := s.blobs.Put(outputKey, bytes.NewReader(buf.Bytes())); err != nil {
		return nil, err
	}

	record := storage.PredictionRecord{
		ID:          predictionID,
		OwnerID:     owner,
		DatasetID:   req.DatasetID,
		ModelFamily: req.ModelFamily,
		Horizon:     req.Horizon,
		Metrics:     trainMetrics,
		OutputKey:   outputKey,
		PreviewRows: preview,
		CreatedAt:   time.Now().UTC(),
	}
	if record.ModelFamily == "" {
		record.ModelFamily = common.FamilyRidge
	}
	if err := s.store.PutPrediction(record); err != nil {
		return nil, err
	}
	s.registry.MirrorPrediction(ctx, record)

	s.metrics.PredictRows.Add(float64(len(rows)))
	s.metrics.PredictionsTotal.Inc()

	downloadURL, err := s.downloadURL(outputKey, "text/csv")
	if err != nil {
		return nil, err
	}
	return &predictOutcome{
		PredictionID: predictionID,
		DatasetID:    req.DatasetID,
		RowCount:     len(rows),
		Metrics:      trainMetrics,
		PreviewRows:  preview,
		OutputObject: map[string]string{
			"bucket":    s.blobs.Bucket(),
			"objectKey": outputKey,
		},
		DownloadURL: downloadURL,
	}, nil
}

// candidateFromRow parses the feature columns out of one warehouse row.
func candidateFromRow(row []string, col map[string]int) (model.Candidate, error) {
	carat, err := strconv.ParseFloat(row[col[common.ColCarat]], 64)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("parse carat %q: %w", row[col[common.ColCarat]], common.ErrValidation)
	}
	viewings, err := strconv.ParseFloat(row[col[common.ColViewings]], 64)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("parse viewings %q: %w", row[col[common.ColViewings]], common.ErrValidation)
	}
	priceIndex, err := strconv.ParseFloat(row[col[common.ColPriceIndex]], 64)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("parse price_index %q: %w", row[col[common.ColPriceIndex]], common.ErrValidation)
	}
	return model.Candidate{
		Carat:      carat,
		Color:      row[col[common.ColColor]],
		Clarity:    row[col[common.ColClarity]],
		Viewings:   viewings,
		PriceIndex: priceIndex,
	}, nil
}

// downloadURL issues a signed GET link for a stored object.
func (s *Server) downloadURL(objectKey, contentType string) (string, error) {
	token, err := s.signer.Token(blob.Grant{
		Method:      http.MethodGet,
		Key:         objectKey,
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(s.cfg.DownloadTTL).Unix(),
	})
	if err != nil {
		return "", err
	}
	return s.cfg.PublicBaseURL + "/uploads/" + token, nil
}

type backtestRequest struct {
	DatasetID    string   `json:"datasetId" validate:"required"`
	Families     []string `json:"families"`
	HoldoutShare float64  `json:"holdoutShare"`
	Seed         int64    `json:"seed"`
}

// handleBacktest replays a labeled dataset through a chronological
// holdout split and reports per-family scores.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	owner := ownerID(r)
	if _, err := s.ownedDataset(req.DatasetID, owner); err != nil {
		s.respondError(w, err)
		return
	}
	frame, err := dataset.LoadFrame(r.Context(), s.wh, req.DatasetID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	report, err := backtest.Run(frame, backtest.Params{
		DatasetID:    req.DatasetID,
		Families:     req.Families,
		HoldoutShare: req.HoldoutShare,
		Seed:         req.Seed,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, report)
}

func (s *Server) handlePredictionList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListPredictions(r.URL.Query().Get("datasetId"))
	if err != nil {
		s.respondError(w, err)
		return
	}

	owner := ownerID(r)
	owned := make([]storage.PredictionRecord, 0, len(records))
	for _, record := range records {
		if record.OwnerID == owner {
			owned = append(owned, record)
		}
	}
	s.respond(w, http.StatusOK, map[string]any{"predictions": owned})
}

// handlePredictionGet returns the prediction record plus a fresh download
// link for its output object.
func (s *Server) handlePredictionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.store.GetPrediction(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if record.OwnerID != ownerID(r) {
		s.respondError(w, fmt.Errorf("prediction %s: %w", id, common.ErrNotFound))
		return
	}

	downloadURL, err := s.downloadURL(record.OutputKey, "text/csv")
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"prediction":  record,
		"downloadUrl": downloadURL,
	})
}
