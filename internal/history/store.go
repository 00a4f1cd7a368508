package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var runsBucket = []byte("runs")

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type SplitCount struct {
	Examples  int `json:"examples"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
	Shards    int `json:"shards"`
}

// Run is one recorded invocation of the pipeline.
type Run struct {
	ID         string                `json:"id"`
	RepoID     string                `json:"repo_id"`
	Mode       string                `json:"mode"`
	Status     string                `json:"status"`
	Error      string                `json:"error,omitempty"`
	Splits     map[string]SplitCount `json:"splits,omitempty"`
	CommitURL  string                `json:"commit_url,omitempty"`
	CommitOID  string                `json:"commit_oid,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
}

func NewRunID(now time.Time) string {
	return fmt.Sprintf("run_%020d", now.UnixNano())
}

type Store struct {
	db *bolt.DB
}

func DefaultPath() string {
	if path := os.Getenv("RESTOREDIT_DB"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".restoredit.db"
	}
	return filepath.Join(homeDir, ".restoredit", "runs.db")
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory failed: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open run history failed: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(runsBucket)
		return createErr
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (store *Store) Close() error {
	if store == nil || store.db == nil {
		return nil
	}
	return store.db.Close()
}

func (store *Store) Save(run Run) error {
	return store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(runsBucket)
		payload, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(run.ID), payload)
	})
}

func (store *Store) Get(runID string) (*Run, error) {
	var run *Run
	err := store.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(runsBucket)
		raw := bucket.Get([]byte(runID))
		if raw == nil {
			return nil
		}
		parsed := Run{}
		if decodeErr := json.Unmarshal(raw, &parsed); decodeErr != nil {
			return decodeErr
		}
		run = &parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (store *Store) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	result := make([]Run, 0, limit)
	err := store.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(runsBucket)
		cursor := bucket.Cursor()
		for key, value := cursor.Last(); key != nil && len(result) < limit; key, value = cursor.Prev() {
			run := Run{}
			if decodeErr := json.Unmarshal(value, &run); decodeErr != nil {
				continue
			}
			result = append(result, run)
		}
		return nil
	})
	return result, err
}
