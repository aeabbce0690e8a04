package storage

import (
	"encoding/json"
	"time"
)

// Job states as persisted in job records.
const (
	JobStatePending   = "pending"
	JobStateRunning   = "running"
	JobStateSucceeded = "succeeded"
	JobStateFailed    = "failed"
)

// DatasetRecord describes one registered auction dataset.
type DatasetRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"objectKey"`
	RowCount  int       `json:"rowCount"`
	Columns   []string  `json:"columns"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ModelRecord describes one trained model artifact.
type ModelRecord struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"ownerId"`
	DatasetID   string             `json:"datasetId"`
	Family      string             `json:"family"`
	ArtifactKey string             `json:"artifactKey"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	TrainedRows int                `json:"trainedRows"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// PredictionRecord describes one batch prediction run.
type PredictionRecord struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"ownerId"`
	DatasetID   string             `json:"datasetId"`
	ModelFamily string             `json:"modelName"`
	Horizon     int                `json:"horizon,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	OutputKey   string             `json:"outputObjectKey,omitempty"`
	PreviewRows []map[string]any   `json:"previewRows,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// JobRecord describes one asynchronous job and its outcome. Payload and
// Result hold kind-specific JSON so the record schema stays stable across
// job kinds.
type JobRecord struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"ownerId"`
	Kind       string          `json:"kind"`
	State      string          `json:"state"`
	Error      string          `json:"error,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}
