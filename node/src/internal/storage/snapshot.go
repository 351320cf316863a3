package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

// CorruptPolicy decides what Open does with a snapshot file it cannot parse
type CorruptPolicy string

const (
	// PolicyFail aborts startup
	PolicyFail CorruptPolicy = "fail"
	// PolicyEmpty logs a warning and starts with an empty store
	PolicyEmpty CorruptPolicy = "empty"
)

// ParseCorruptPolicy validates a policy name
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch CorruptPolicy(s) {
	case PolicyFail, PolicyEmpty:
		return CorruptPolicy(s), nil
	}
	return "", fmt.Errorf("unknown snapshot policy %q (want %q or %q)", s, PolicyFail, PolicyEmpty)
}

// Snapshotter defines the interface for snapshot operations
type Snapshotter interface {
	Load() (map[string]string, error)
	Save(data map[string]string) error
}

// FileSnapshotter keeps the whole mapping as one JSON object in a single file.
// Save writes a temp file next to the target and renames it over the target,
// so readers of the file see either the old or the new snapshot.
type FileSnapshotter struct {
	path string
	mu   sync.Mutex
}

// NewFileSnapshotter creates a new FileSnapshotter instance
func NewFileSnapshotter(path string) (*FileSnapshotter, error) {
	if path == "" {
		return nil, kvErr.New(kvErr.ErrorTypeInvalidInput, "snapshot path is empty", nil)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, kvErr.New(kvErr.ErrorTypeStorage, "failed to create snapshot directory", err)
		}
	}
	return &FileSnapshotter{path: path}, nil
}

// Path returns the backing file path
func (s *FileSnapshotter) Path() string {
	return s.path
}

// Load reads the snapshot file. A missing file is an empty store.
func (s *FileSnapshotter) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, kvErr.New(kvErr.ErrorTypeStorage, "failed to read snapshot file", err)
	}

	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, kvErr.New(kvErr.ErrorTypeStorage, "failed to decode snapshot data", err)
	}
	if data == nil {
		// the file held a JSON null
		data = map[string]string{}
	}
	return data, nil
}

// Save overwrites the snapshot file with data
func (s *FileSnapshotter) Save(data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(data)
	if err != nil {
		return kvErr.New(kvErr.ErrorTypeStorage, "failed to encode snapshot data", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return kvErr.New(kvErr.ErrorTypeStorage, "failed to create snapshot file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return kvErr.New(kvErr.ErrorTypeStorage, "failed to write snapshot file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return kvErr.New(kvErr.ErrorTypeStorage, "failed to sync snapshot file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return kvErr.New(kvErr.ErrorTypeStorage, "failed to close snapshot file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return kvErr.New(kvErr.ErrorTypeStorage, "failed to replace snapshot file", err)
	}
	return nil
}
