package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TuningStore persists per-stream ASR parameter documents as small JSON
// files under one directory.
type TuningStore struct {
	dir string
}

// NewTuningStore creates a store rooted at dir. The directory is created by
// the caller at startup.
func NewTuningStore(dir string) *TuningStore {
	return &TuningStore{dir: dir}
}

func (s *TuningStore) path(streamID string) string {
	// Stream identifiers come from URL paths; keep them inside the store.
	return filepath.Join(s.dir, filepath.Base(streamID)+".json")
}

// Load reads the parameter document for a stream. A missing file yields an
// empty map without error.
func (s *TuningStore) Load(streamID string) (map[string]interface{}, error) {
	data, err := os.ReadFile(s.path(streamID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	params := map[string]interface{}{}
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("parse tuning file: %w", err)
	}
	return params, nil
}

// Save writes the parameter document atomically via a temp file rename, so
// a crash mid-write never leaves a truncated document.
func (s *TuningStore) Save(streamID string, params map[string]interface{}) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tuning params: %w", err)
	}

	target := s.path(streamID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp tuning file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write tuning file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close tuning file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace tuning file: %w", err)
	}
	return nil
}
