// Package storage provides persistent metadata storage for the gemscope
// analytics service. It uses BoltDB as the underlying storage engine to
// store dataset, model, prediction, and job records.
//
// The package provides thread-safe operations for storing and retrieving
// records with owner-scoped listing and automatic bucket management.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"gemscope/internal/common"
)

const (
	datasetsBucket    = "datasets"    // Bucket name for dataset records
	modelsBucket      = "models"      // Bucket name for trained model records
	predictionsBucket = "predictions" // Bucket name for batch prediction records
	jobsBucket        = "jobs"        // Bucket name for job records
)

// Store provides persistent storage for service metadata using BoltDB.
// Records are serialized as JSON and keyed by their IDs, which keeps the
// on-disk format inspectable with standard tooling.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance backed by the database file at dbPath.
// It creates the parent directory if needed and initializes all buckets.
// Returns an error if the database cannot be opened or buckets cannot be created.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{datasetsBucket, modelsBucket, predictionsBucket, jobsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
// It should be called when the storage is no longer needed to ensure
// proper cleanup of database resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// put serializes a record as JSON and stores it under key in the named bucket.
func (s *Store) put(bucket, key string, record any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", bucket, err)
		}
		return b.Put([]byte(key), data)
	})
}

// get loads the record stored under key in the named bucket into out.
// Returns common.ErrNotFound when the key does not exist.
func (s *Store) get(bucket, key string, out any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %q: %w", bucket, key, common.ErrNotFound)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal %s record: %w", bucket, err)
		}
		return nil
	})
}

// delete removes the record stored under key in the named bucket.
// Deleting a missing key is not an error.
func (s *Store) delete(bucket, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	})
}

// PutDataset stores or replaces a dataset record.
func (s *Store) PutDataset(record DatasetRecord) error {
	return s.put(datasetsBucket, record.ID, record)
}

// GetDataset retrieves a dataset record by ID.
// Returns common.ErrNotFound when no such dataset exists.
func (s *Store) GetDataset(id string) (DatasetRecord, error) {
	var record DatasetRecord
	err := s.get(datasetsBucket, id, &record)
	return record, err
}

// ListDatasets returns all dataset records owned by ownerID, newest first.
// An empty ownerID returns every dataset.
func (s *Store) ListDatasets(ownerID string) ([]DatasetRecord, error) {
	var records []DatasetRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(datasetsBucket)).ForEach(func(_, v []byte) error {
			var record DatasetRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil // Skip malformed records
			}
			if ownerID != "" && record.OwnerID != ownerID {
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteDataset removes a dataset record by ID.
func (s *Store) DeleteDataset(id string) error {
	return s.delete(datasetsBucket, id)
}

// PutModel stores or replaces a trained model record.
func (s *Store) PutModel(record ModelRecord) error {
	return s.put(modelsBucket, record.ID, record)
}

// GetModel retrieves a trained model record by ID.
// Returns common.ErrNotFound when no such model exists.
func (s *Store) GetModel(id string) (ModelRecord, error) {
	var record ModelRecord
	err := s.get(modelsBucket, id, &record)
	return record, err
}

// ListModels returns all model records trained on datasetID, newest first.
// An empty datasetID returns every model.
func (s *Store) ListModels(datasetID string) ([]ModelRecord, error) {
	var records []ModelRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).ForEach(func(_, v []byte) error {
			var record ModelRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil // Skip malformed records
			}
			if datasetID != "" && record.DatasetID != datasetID {
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// PutPrediction stores or replaces a batch prediction record.
func (s *Store) PutPrediction(record PredictionRecord) error {
	return s.put(predictionsBucket, record.ID, record)
}

// GetPrediction retrieves a batch prediction record by ID.
// Returns common.ErrNotFound when no such prediction exists.
func (s *Store) GetPrediction(id string) (PredictionRecord, error) {
	var record PredictionRecord
	err := s.get(predictionsBucket, id, &record)
	return record, err
}

// ListPredictions returns all prediction records for datasetID, newest first.
// An empty datasetID returns every prediction.
func (s *Store) ListPredictions(datasetID string) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(predictionsBucket)).ForEach(func(_, v []byte) error {
			var record PredictionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil // Skip malformed records
			}
			if datasetID != "" && record.DatasetID != datasetID {
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// PutJob stores or replaces a job record.
func (s *Store) PutJob(record JobRecord) error {
	return s.put(jobsBucket, record.ID, record)
}

// GetJob retrieves a job record by ID.
// Returns common.ErrNotFound when no such job exists.
func (s *Store) GetJob(id string) (JobRecord, error) {
	var record JobRecord
	err := s.get(jobsBucket, id, &record)
	return record, err
}

// ListJobs returns all job records, newest first.
func (s *Store) ListJobs() ([]JobRecord, error) {
	var records []JobRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(jobsBucket)).ForEach(func(_, v []byte) error {
			var record JobRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil // Skip malformed records
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// PruneJobs deletes finished job records older than cutoff and returns the
// number of records removed. Running jobs are never pruned.
func (s *Store) PruneJobs(cutoff time.Time) (int, error) {
	pruned := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(jobsBucket))

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var record JobRecord
			if err := json.Unmarshal(v, &record); err != nil {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if record.State == JobStateRunning || record.State == JobStatePending {
				return nil
			}
			if record.CreatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})

	return pruned, err
}
