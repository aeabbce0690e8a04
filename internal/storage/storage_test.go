package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gemscope/internal/common"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "nested", "meta.db")

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	record := DatasetRecord{
		ID:        "ds-1",
		OwnerID:   "owner-a",
		Name:      "spring-lots",
		Bucket:    "gemscope-local",
		ObjectKey: "datasets/owner-a/ds-1/lots.csv",
		RowCount:  420,
		Columns:   []string{"carat", "color", "clarity", "viewings", "price_index", "final_price", "sold"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := store.PutDataset(record); err != nil {
		t.Fatalf("Failed to store dataset: %v", err)
	}

	got, err := store.GetDataset("ds-1")
	if err != nil {
		t.Fatalf("Failed to load dataset: %v", err)
	}
	if got.Name != record.Name || got.RowCount != record.RowCount {
		t.Errorf("Loaded dataset differs: got %+v, want %+v", got, record)
	}
	if len(got.Columns) != len(record.Columns) {
		t.Errorf("Expected %d columns, got %d", len(record.Columns), len(got.Columns))
	}
}

func TestGetDataset_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDataset("missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestListDatasets_OwnerFilterAndOrder(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC()
	records := []DatasetRecord{
		{ID: "ds-old", OwnerID: "owner-a", Name: "first", CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "ds-new", OwnerID: "owner-a", Name: "second", CreatedAt: base},
		{ID: "ds-other", OwnerID: "owner-b", Name: "theirs", CreatedAt: base.Add(-time.Hour)},
	}
	for _, r := range records {
		if err := store.PutDataset(r); err != nil {
			t.Fatalf("Failed to store dataset %s: %v", r.ID, err)
		}
	}

	mine, err := store.ListDatasets("owner-a")
	if err != nil {
		t.Fatalf("Failed to list datasets: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("Expected 2 datasets for owner-a, got %d", len(mine))
	}
	if mine[0].ID != "ds-new" || mine[1].ID != "ds-old" {
		t.Errorf("Expected newest-first order, got %s then %s", mine[0].ID, mine[1].ID)
	}

	all, err := store.ListDatasets("")
	if err != nil {
		t.Fatalf("Failed to list all datasets: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 datasets total, got %d", len(all))
	}
}

func TestDeleteDataset(t *testing.T) {
	store := newTestStore(t)

	if err := store.PutDataset(DatasetRecord{ID: "ds-1", OwnerID: "o"}); err != nil {
		t.Fatalf("Failed to store dataset: %v", err)
	}
	if err := store.DeleteDataset("ds-1"); err != nil {
		t.Fatalf("Failed to delete dataset: %v", err)
	}
	if _, err := store.GetDataset("ds-1"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}

	// Deleting a missing record is not an error.
	if err := store.DeleteDataset("ds-1"); err != nil {
		t.Errorf("Expected nil deleting missing record, got: %v", err)
	}
}

func TestModelRoundTrip(t *testing.T) {
	store := newTestStore(t)

	record := ModelRecord{
		ID:          "mdl-1",
		OwnerID:     "owner-a",
		DatasetID:   "ds-1",
		Family:      "ridge",
		ArtifactKey: "models/mdl-1/artifact.json",
		Metrics:     map[string]float64{"price_r2": 0.91, "price_mae": 312.5, "sale_accuracy": 0.84},
		TrainedRows: 336,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.PutModel(record); err != nil {
		t.Fatalf("Failed to store model: %v", err)
	}

	got, err := store.GetModel("mdl-1")
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	if got.Family != "ridge" || got.Metrics["price_r2"] != 0.91 {
		t.Errorf("Loaded model differs: %+v", got)
	}

	models, err := store.ListModels("ds-1")
	if err != nil {
		t.Fatalf("Failed to list models: %v", err)
	}
	if len(models) != 1 {
		t.Errorf("Expected 1 model for ds-1, got %d", len(models))
	}
	none, err := store.ListModels("ds-other")
	if err != nil {
		t.Fatalf("Failed to list models: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no models for ds-other, got %d", len(none))
	}
}

func TestPredictionRoundTrip(t *testing.T) {
	store := newTestStore(t)

	record := PredictionRecord{
		ID:          "pred-1",
		OwnerID:     "owner-a",
		DatasetID:   "ds-1",
		ModelFamily: "ridge",
		Metrics:     map[string]float64{"price_mae": 250.0},
		OutputKey:   "predictions/pred-1/results.csv",
		PreviewRows: []map[string]any{{"carat": 1.1, "predicted_price": 5100.0}},
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.PutPrediction(record); err != nil {
		t.Fatalf("Failed to store prediction: %v", err)
	}

	got, err := store.GetPrediction("pred-1")
	if err != nil {
		t.Fatalf("Failed to load prediction: %v", err)
	}
	if got.OutputKey != record.OutputKey {
		t.Errorf("Expected output key %q, got %q", record.OutputKey, got.OutputKey)
	}
	if len(got.PreviewRows) != 1 {
		t.Errorf("Expected 1 preview row, got %d", len(got.PreviewRows))
	}

	preds, err := store.ListPredictions("ds-1")
	if err != nil {
		t.Fatalf("Failed to list predictions: %v", err)
	}
	if len(preds) != 1 {
		t.Errorf("Expected 1 prediction, got %d", len(preds))
	}
}

func TestJobRoundTripAndPrune(t *testing.T) {
	store := newTestStore(t)

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	jobs := []JobRecord{
		{ID: "job-done-old", Kind: "train", State: JobStateSucceeded, CreatedAt: old},
		{ID: "job-failed-old", Kind: "predict", State: JobStateFailed, CreatedAt: old},
		{ID: "job-running-old", Kind: "train", State: JobStateRunning, CreatedAt: old},
		{ID: "job-done-new", Kind: "train", State: JobStateSucceeded, CreatedAt: now},
	}
	for _, j := range jobs {
		if err := store.PutJob(j); err != nil {
			t.Fatalf("Failed to store job %s: %v", j.ID, err)
		}
	}

	got, err := store.GetJob("job-done-old")
	if err != nil {
		t.Fatalf("Failed to load job: %v", err)
	}
	if got.State != JobStateSucceeded {
		t.Errorf("Expected state %q, got %q", JobStateSucceeded, got.State)
	}

	pruned, err := store.PruneJobs(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune jobs: %v", err)
	}
	if pruned != 2 {
		t.Errorf("Expected 2 pruned jobs, got %d", pruned)
	}

	remaining, err := store.ListJobs()
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("Expected 2 remaining jobs, got %d", len(remaining))
	}
	for _, j := range remaining {
		if j.ID == "job-done-old" || j.ID == "job-failed-old" {
			t.Errorf("Job %s should have been pruned", j.ID)
		}
	}
}
