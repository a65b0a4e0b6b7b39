package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
)

// FileStore keeps the collection in a single JSON file that is rewritten
// on every save.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for path, creating the parent directory
// if needed. The file itself is created on the first save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store: path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create data directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// LoadAll reads and decodes the backing file.
func (s *FileStore) LoadAll(ctx context.Context) ([]model.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Item{}, nil
		}
		return nil, fmt.Errorf("read items file %s: %w", s.path, err)
	}

	items := []model.Item{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode items file %s: %w", s.path, err)
	}
	return items, nil
}

// SaveAll encodes the collection and overwrites the backing file.
func (s *FileStore) SaveAll(ctx context.Context, items []model.Item) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save items: %w", err)
	}

	if items == nil {
		items = []model.Item{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write items file %s: %w", s.path, err)
	}
	return nil
}

// LastModified returns the modification time of the backing file.
func (s *FileStore) LastModified(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, fmt.Errorf("stat items file: %w", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("stat items file %s: %w", s.path, err)
	}
	return info.ModTime(), nil
}
