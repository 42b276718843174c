package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const localLayoutFileName = "layout.json"

// LocalStore is the file-backed fallback layout document.
type LocalStore struct {
	path string
}

// NewLocalStore keeps the layout document under the given data directory.
func NewLocalStore(dataDir string) (*LocalStore, error) {
	dir := strings.TrimSpace(dataDir)
	if dir == "" {
		return nil, errors.New("data dir is required")
	}
	return &LocalStore{path: filepath.Join(dir, localLayoutFileName)}, nil
}

// Path returns the backing file path.
func (s *LocalStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load returns the raw stored document. A missing file is (nil, nil).
func (s *LocalStore) Load() ([]byte, error) {
	if s == nil {
		return nil, errors.New("local store is nil")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save overwrites the stored document atomically.
func (s *LocalStore) Save(doc any) error {
	if s == nil {
		return errors.New("local store is nil")
	}
	return writeJSONAtomic(s.path, doc)
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UTC().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
