package model

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"gemscope/internal/blob"
	"gemscope/internal/common"
	"gemscope/internal/dataset"
	"gemscope/internal/storage"
)

// Manager resolves trained adapters and runs the train-and-store path.
// Models are addressed by (dataset, family); when training degrades to
// the baseline family the record keeps the requested family as its
// address while the artifact names the family actually fitted.
type Manager struct {
	store   *storage.Store
	blobs   *blob.Store
	cache   Cache
	metrics MetricsInterface
}

// NewManager wires the manager. The metrics sink may be nil.
func NewManager(store *storage.Store, blobs *blob.Store, cache Cache, metrics MetricsInterface) *Manager {
	return &Manager{store: store, blobs: blobs, cache: cache, metrics: metrics}
}

// Resolve returns the newest trained artifact for the dataset and family,
// loading through the cache. An empty family means the default.
func (m *Manager) Resolve(datasetID, family string) (*Artifact, error) {
	if family == "" {
		family = common.FamilyRidge
	}
	if !validFamily(family) {
		return nil, fmt.Errorf("unknown model family %q: %w", family, common.ErrValidation)
	}

	key := CacheKey(datasetID, family)
	if artifact, ok := m.cache.Get(key); ok {
		return artifact, nil
	}

	records, err := m.store.ListModels(datasetID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Family != family {
			continue
		}
		artifact, err := LoadArtifact(m.blobs, record.ArtifactKey)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", record.ID, err)
		}
		m.cache.Put(key, artifact)
		return artifact, nil
	}
	return nil, fmt.Errorf("no trained %s model for dataset %s: %w", family, datasetID, common.ErrNotFound)
}

// Adapter resolves an artifact and wraps it with call metrics.
func (m *Manager) Adapter(datasetID, family string) (Adapter, error) {
	artifact, err := m.Resolve(datasetID, family)
	if err != nil {
		return nil, err
	}
	return Instrument(artifact, m.metrics), nil
}

// TrainAndStore trains the requested family on the frame, persists the
// artifact and its record, and primes the cache.
func (m *Manager) TrainAndStore(frame *dataset.Frame, params TrainParams, ownerID string) (*Artifact, Metrics, error) {
	if params.Family == "" {
		params.Family = common.FamilyRidge
	}
	started := time.Now()

	artifact, metrics, err := Train(frame, params)
	if err != nil {
		if m.metrics != nil {
			m.metrics.TrainFailuresInc()
		}
		return nil, Metrics{}, err
	}

	key, err := SaveArtifact(m.blobs, artifact)
	if err != nil {
		return nil, Metrics{}, err
	}

	record := storage.ModelRecord{
		ID:          artifact.ID,
		OwnerID:     ownerID,
		DatasetID:   params.DatasetID,
		Family:      params.Family,
		ArtifactKey: key,
		Metrics:     metrics.Map(),
		TrainedRows: artifact.TrainedRows,
		CreatedAt:   artifact.TrainedAt,
	}
	if err := m.store.PutModel(record); err != nil {
		return nil, Metrics{}, err
	}

	m.cache.Put(CacheKey(params.DatasetID, params.Family), artifact)
	if m.metrics != nil {
		m.metrics.TrainRunInc(artifact.Family)
		m.metrics.TrainDurationObserve(time.Since(started).Seconds())
	}

	log.Info().
		Str("model", artifact.ID).
		Str("dataset", params.DatasetID).
		Str("family", artifact.Family).
		Int("trainedRows", artifact.TrainedRows).
		Float64("priceR2", metrics.PriceR2).
		Float64("saleAccuracy", metrics.SaleAccuracy).
		Msg("Model trained")
	return artifact, metrics, nil
}
