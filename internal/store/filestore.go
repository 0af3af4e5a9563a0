package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loginbridge/loginbridge/internal/util"
)

// FileStore writes each record as a JSON file in a local directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. A leading ~ is expanded.
func NewFileStore(dir string) (*FileStore, error) {
	resolved, err := util.ResolveAuthDir(strings.TrimSpace(dir))
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	if resolved == "" {
		return nil, fmt.Errorf("file store: directory is required")
	}
	return &FileStore{dir: resolved}, nil
}

// Dir returns the directory records are written to.
func (s *FileStore) Dir() string { return s.dir }

// Save writes rec to <dir>/<rec.ID> and returns the file path.
func (s *FileStore) Save(_ context.Context, rec *Record) (string, error) {
	id, err := checkRecord(rec)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, id)
	if err = rec.Storage.SaveTokenToFile(path); err != nil {
		return "", fmt.Errorf("file store: %w", err)
	}
	return path, nil
}

// List returns the ids of the JSON records in the directory, sorted by name. A missing
// directory holds no records.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("file store: list %s: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Load returns the raw JSON of record id.
func (s *FileStore) Load(_ context.Context, id string) ([]byte, error) {
	id, err := validateID(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		return nil, fmt.Errorf("file store: load %s: %w", id, err)
	}
	return data, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
