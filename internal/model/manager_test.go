package model

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gemscope/internal/blob"
	"gemscope/internal/common"
	"gemscope/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Store, *blob.Store) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	blobs, err := blob.NewStore(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("Failed to create blob store: %v", err)
	}

	cache := NewLRUCache(8, time.Minute, nil)
	return NewManager(store, blobs, cache, newMockModelMetrics()), store, blobs
}

func TestManagerTrainAndStore(t *testing.T) {
	manager, store, blobs := newTestManager(t)
	frame := syntheticFrame(100, 17)

	artifact, metrics, err := manager.TrainAndStore(frame, TrainParams{DatasetID: "ds-1", Family: common.FamilyRidge}, "owner-a")
	if err != nil {
		t.Fatalf("TrainAndStore failed: %v", err)
	}

	if metrics.PriceR2 <= 0 {
		t.Errorf("Expected positive R2, got %g", metrics.PriceR2)
	}

	record, err := store.GetModel(artifact.ID)
	if err != nil {
		t.Fatalf("Model record not persisted: %v", err)
	}
	if record.Family != common.FamilyRidge || record.OwnerID != "owner-a" {
		t.Errorf("Unexpected record: %+v", record)
	}
	if record.Metrics["price_r2"] != metrics.PriceR2 {
		t.Errorf("Record metrics mismatch: %v", record.Metrics)
	}
	if !blobs.Exists(record.ArtifactKey) {
		t.Error("Artifact blob not written")
	}
}

func TestManagerResolve_FromStoreAndCache(t *testing.T) {
	manager, _, _ := newTestManager(t)
	frame := syntheticFrame(100, 19)

	trained, _, err := manager.TrainAndStore(frame, TrainParams{DatasetID: "ds-1", Family: common.FamilyRidge}, "owner-a")
	if err != nil {
		t.Fatalf("TrainAndStore failed: %v", err)
	}

	// Cold cache resolve goes through bbolt + blob.
	manager.cache = NewLRUCache(8, time.Minute, nil)
	resolved, err := manager.Resolve("ds-1", common.FamilyRidge)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.ID != trained.ID {
		t.Errorf("Resolved %q, want %q", resolved.ID, trained.ID)
	}

	// Second resolve hits the cache and returns the same artifact.
	again, err := manager.Resolve("ds-1", common.FamilyRidge)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if again != resolved {
		t.Error("Expected cached artifact instance")
	}
}

func TestManagerResolve_DefaultFamily(t *testing.T) {
	manager, _, _ := newTestManager(t)
	frame := syntheticFrame(80, 23)

	if _, _, err := manager.TrainAndStore(frame, TrainParams{DatasetID: "ds-1"}, "o"); err != nil {
		t.Fatalf("TrainAndStore failed: %v", err)
	}

	resolved, err := manager.Resolve("ds-1", "")
	if err != nil {
		t.Fatalf("Resolve with empty family failed: %v", err)
	}
	if resolved.Family != common.FamilyRidge {
		t.Errorf("Expected ridge artifact, got %q", resolved.Family)
	}
}

func TestManagerResolve_NotFound(t *testing.T) {
	manager, _, _ := newTestManager(t)

	_, err := manager.Resolve("ds-none", common.FamilyRidge)
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestManagerResolve_InvalidFamily(t *testing.T) {
	manager, _, _ := newTestManager(t)

	_, err := manager.Resolve("ds-1", "forest")
	if !errors.Is(err, common.ErrValidation) {
		t.Errorf("Expected ErrValidation, got: %v", err)
	}
}

func TestManagerResolve_NewestWins(t *testing.T) {
	manager, _, _ := newTestManager(t)

	first, _, err := manager.TrainAndStore(syntheticFrame(80, 1), TrainParams{DatasetID: "ds-1"}, "o")
	if err != nil {
		t.Fatalf("First train failed: %v", err)
	}
	// Force a later CreatedAt on the second record.
	time.Sleep(5 * time.Millisecond)
	second, _, err := manager.TrainAndStore(syntheticFrame(80, 2), TrainParams{DatasetID: "ds-1"}, "o")
	if err != nil {
		t.Fatalf("Second train failed: %v", err)
	}

	manager.cache = NewLRUCache(8, time.Minute, nil)
	resolved, err := manager.Resolve("ds-1", common.FamilyRidge)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.ID != second.ID {
		t.Errorf("Expected newest model %q, got %q (first was %q)", second.ID, resolved.ID, first.ID)
	}
}

func TestManagerTrainAndStore_FallbackKeepsRequestedAddress(t *testing.T) {
	manager, store, _ := newTestManager(t)

	// Single-class labels force the baseline fallback.
	frame := syntheticFrame(80, 29)
	for i := range frame.Sold {
		frame.Sold[i] = 0
	}

	artifact, _, err := manager.TrainAndStore(frame, TrainParams{DatasetID: "ds-1", Family: common.FamilyRidge}, "o")
	if err != nil {
		t.Fatalf("TrainAndStore failed: %v", err)
	}
	if artifact.Family != common.FamilyBaseline {
		t.Errorf("Expected baseline artifact after fallback, got %q", artifact.Family)
	}

	// The record stays addressable under the requested family.
	record, err := store.GetModel(artifact.ID)
	if err != nil {
		t.Fatalf("Record missing: %v", err)
	}
	if record.Family != common.FamilyRidge {
		t.Errorf("Expected record addressed as ridge, got %q", record.Family)
	}

	resolved, err := manager.Resolve("ds-1", common.FamilyRidge)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Family != common.FamilyBaseline {
		t.Errorf("Expected baseline artifact through ridge address, got %q", resolved.Family)
	}
}
