// Package state persists the per-user watermark between runs.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path/filepath"

	"github.com/spf13/afero"
)

// Watermarks maps a watchlist username to the newest TMDB id already
// processed for that user.
type Watermarks map[string]string

// Clone returns an independent copy.
func (w Watermarks) Clone() Watermarks {
	out := make(Watermarks, len(w))
	maps.Copy(out, w)
	return out
}

// Store reads and writes the watermark file.
type Store struct {
	fs   afero.Fs
	path string
	log  *slog.Logger
}

// NewStore creates a store for path on fsys.
func NewStore(fsys afero.Fs, path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{fs: fsys, path: path, log: log.With("component", "state")}
}

// Path returns the watermark file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the watermark file. A missing file is an empty map. A file that
// cannot be parsed is logged and treated as empty, since every watermark can
// be rebuilt by scraping again.
func (s *Store) Load() (Watermarks, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Watermarks{}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var w Watermarks
	if err := json.Unmarshal(data, &w); err != nil {
		s.log.Warn("state file unreadable, starting fresh", "path", s.path, "error", err)
		return Watermarks{}, nil
	}
	if w == nil {
		w = Watermarks{}
	}
	return w, nil
}

// Save writes w to a temporary file next to the target and renames it into
// place.
func (s *Store) Save(w Watermarks) error {
	if w == nil {
		w = Watermarks{}
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".sync_state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state: %w", err)
	}

	s.log.Debug("state saved", "path", s.path, "users", len(w))
	return nil
}
