// Package targets stores publish destinations. Each destination is a flat
// string map (backend type plus its access details) registered under a random
// key that job submissions refer to.
package targets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
)

var ErrNotFound = errors.New("target not found")

// Backend types a target may name.
var knownTypes = map[string]bool{
	"directServe": true,
	"s3":          true,
	"gcs":         true,
	"sftp":        true,
}

// KnownType reports whether t is a backend publish can write to.
func KnownType(t string) bool {
	return knownTypes[t]
}

type Store struct {
	db *pebble.DB
}

// Open opens the pebble DB for targets at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open targets store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the DB
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Register validates creds and stores them under a fresh key.
func (s *Store) Register(creds map[string]string) (string, error) {
	t := creds["type"]
	if t == "" {
		return "", fmt.Errorf("target type is required")
	}
	if !KnownType(t) {
		return "", fmt.Errorf("unknown target type: %s", t)
	}
	if _, ok := creds["baseDir"]; ok && t == "directServe" {
		return "", fmt.Errorf("baseDir is set by the server, not the target")
	}
	if folder := creds["folder"]; strings.HasPrefix(folder, "/") || strings.Contains(folder, "..") {
		return "", fmt.Errorf("folder must be a relative path: %s", folder)
	}

	key, err := randomHex(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	encoded, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	if err := s.db.Set([]byte(key), encoded, pebble.Sync); err != nil {
		return "", fmt.Errorf("failed to store target: %w", err)
	}
	return key, nil
}

func (s *Store) Get(key string) (map[string]string, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// Delete removes the target stored under key.
func (s *Store) Delete(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
