package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"interpserve/settings"
)

// Record is the history entry kept for every finished job.
type Record struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Outcome     string             `json:"outcome,omitempty"`
	Message     string             `json:"message"`
	Filename    string             `json:"filename,omitempty"`
	ContentHash string             `json:"content_hash,omitempty"`
	Params      settings.Overrides `json:"params"`
	OutputPath  string             `json:"output_path,omitempty"`
	Published   []string           `json:"published,omitempty"`
	PublishErr  string             `json:"publish_error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// Store keeps records in a pebble database keyed by job id.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open records store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("records store not initialized")
	}
	return nil
}

// Put stores r, replacing any record with the same id.
func (s *Store) Put(r Record) error {
	if err := s.ready(); err != nil {
		return err
	}
	if r.ID == "" {
		return fmt.Errorf("record id required")
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Set([]byte(r.ID), data, pebble.Sync)
}

// Get returns the record for id, or nil when there is none.
func (s *Store) Get(id string) (*Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	data, closer, err := s.db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	defer closer.Close()

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}

// Delete removes the record for id.
func (s *Store) Delete(id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.db.Delete([]byte(id), pebble.Sync)
}

// List returns all records, newest first.
func (s *Store) List() ([]Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var out []Record
	for iter.First(); iter.Valid(); iter.Next() {
		var r Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue // Skip invalid records
		}
		out = append(out, r)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	return out, nil
}

// CleanupOlderThan removes records that finished more than maxAge ago and
// returns how many were removed.
func (s *Store) CleanupOlderThan(maxAge time.Duration) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var stale [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var r Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue
		}
		if r.FinishedAt.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			stale = append(stale, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	for _, key := range stale {
		if err := batch.Delete(key, nil); err != nil {
			batch.Close()
			return 0, fmt.Errorf("failed to delete old record: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}
	return len(stale), nil
}

// CheckHealth performs a point read to verify the database is usable.
func (s *Store) CheckHealth() error {
	if err := s.ready(); err != nil {
		return err
	}
	_, closer, err := s.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
