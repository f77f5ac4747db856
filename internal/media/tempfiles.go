package media

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// TempPattern prefixes every temp file the service creates.
const TempPattern = "platescan-*"

// TempStore creates job files inside one directory.
type TempStore struct {
	dir string
}

// NewTempStore uses dir, or the OS temp directory when dir is empty.
func NewTempStore(dir string) *TempStore {
	if dir == "" {
		dir = os.TempDir()
	}
	return &TempStore{dir: dir}
}

// Dir returns the directory temp files are created in.
func (s *TempStore) Dir() string { return s.dir }

// Stage copies r into a new temp file that keeps the extension of filename.
func (s *TempStore) Stage(r io.Reader, filename string) (string, error) {
	f, err := os.CreateTemp(s.dir, TempPattern+Ext(filename))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}

// Reserve returns a fresh, empty temp path with extension ext for a writer to fill.
func (s *TempStore) Reserve(ext string) (string, error) {
	f, err := os.CreateTemp(s.dir, TempPattern+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}

// Remove deletes path best-effort. A missing file is not an error; any other
// failure is logged and returned so callers can surface it as a warning.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove temp file", "path", path, "error", err)
		return err
	}
	return nil
}

// SweepFailure records a file the sweep could not delete.
type SweepFailure struct {
	Path string
	Err  error
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Removed []string
	Failed  []SweepFailure
}

// Sweeper deletes leftover files by extension from one directory.
type Sweeper struct {
	Dir        string
	Extensions []string
	remove     func(string) error
}

// NewSweeper sweeps dir (OS temp dir when empty) for the video extensions.
func NewSweeper(dir string) *Sweeper {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Sweeper{Dir: dir, Extensions: VideoExtensions, remove: os.Remove}
}

// Sweep removes every regular file in the directory (not recursive) whose extension
// matches, case-insensitively. Failures are recorded and skipped.
func (s *Sweeper) Sweep() (SweepResult, error) {
	var res SweepResult

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", s.Dir, err)
	}

	remove := s.remove
	if remove == nil {
		remove = os.Remove
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !slices.Contains(s.Extensions, Ext(e.Name())) {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		if err := remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			slog.Warn("Sweep could not remove file", "path", path, "error", err)
			res.Failed = append(res.Failed, SweepFailure{Path: path, Err: err})
			continue
		}
		res.Removed = append(res.Removed, path)
	}

	slog.Info("Temp sweep finished", "dir", s.Dir, "removed", len(res.Removed), "failed", len(res.Failed))
	return res, nil
}
