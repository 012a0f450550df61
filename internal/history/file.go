package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultFile is the history file used when none is configured.
const DefaultFile = "search_history.json"

// FilePersister stores the history as a single JSON array file.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister for path. The file is created on first save.
func NewFilePersister(path string) *FilePersister {
	if path == "" {
		path = DefaultFile
	}
	return &FilePersister{path: path}
}

// Path returns the backing file path.
func (f *FilePersister) Path() string { return f.path }

// Load reads the file. A missing file is an empty history; malformed JSON is an error.
func (f *FilePersister) Load(context.Context) ([]Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("history file: read %s: %w", f.path, err)
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("history file: decode %s: %w", f.path, err)
	}
	return recs, nil
}

// Save overwrites the file with records. The new content is written to a
// temp file in the same directory and renamed over the old one.
func (f *FilePersister) Save(_ context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("history file: encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("history file: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("history file: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("history file: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("history file: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history file: close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history file: rename: %w", err)
	}
	return nil
}

func (f *FilePersister) Close() error { return nil }
