package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps one JSON file per entry under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed. An empty dir defaults to
// .cache/extractions in the working directory.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = filepath.Join(".cache", "extractions")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory path.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Load(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache file for %s: %w", key, err)
	}
	return &e, nil
}

// Save writes through a temp file and rename so readers never see a partial entry.
func (s *FileStore) Save(_ context.Context, e *Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, e.Key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(e.Key))
}

func (s *FileStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(f.Name(), ".json")
		created, ok := s.createdAt(ctx, key, f)
		if !ok {
			continue
		}
		if created.Before(olderThan) {
			if err := os.Remove(s.path(key)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// createdAt is the entry's CreatedAt, or the file's mtime when the entry
// cannot be decoded.
func (s *FileStore) createdAt(ctx context.Context, key string, f os.DirEntry) (time.Time, bool) {
	if e, err := s.Load(ctx, key); err == nil && e != nil {
		return e.CreatedAt, true
	}
	info, err := f.Info()
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
