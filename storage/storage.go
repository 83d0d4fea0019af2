package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const stagingDirName = ".staging"

// ErrInvalidName is returned for names that could escape the storage root.
var ErrInvalidName = errors.New("invalid filename")

// Store is the shared scratch directory for downloaded sources and produced clips.
// Sources live under per-run staging dirs; artifacts live directly in the root.
// Nothing here is durable.
type Store struct {
	root   string
	logger *log.Logger
}

// New opens (or creates) the storage root. An empty root creates a fresh temp dir.
func New(root string, logger *log.Logger) (*Store, error) {
	if root == "" {
		dir, err := os.MkdirTemp("", "backendyt_")
		if err != nil {
			return nil, fmt.Errorf("could not create temp directory: %w", err)
		}
		root = dir
	}
	if err := os.MkdirAll(filepath.Join(root, stagingDirName), 0755); err != nil {
		return nil, fmt.Errorf("could not create storage directory %s: %w", root, err)
	}
	logger.Printf("Using storage directory: %s", root)
	return &Store{root: root, logger: logger}, nil
}

func (s *Store) Root() string { return s.root }

// StagingDir creates the private download directory for one run.
func (s *Store) StagingDir(runID string) (string, error) {
	if runID == "" || filepath.Base(runID) != runID {
		return "", fmt.Errorf("%w: run id %q", ErrInvalidName, runID)
	}
	dir := filepath.Join(s.root, stagingDirName, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	return dir, nil
}

// ReleaseStaging removes a staging dir and everything in it. Failures are logged only.
func (s *Store) ReleaseStaging(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Printf("Warning: could not remove staging dir %s: %v", dir, err)
	}
}

// ArtifactPath is where an artifact with the given name lives.
func (s *Store) ArtifactPath(filename string) string {
	return filepath.Join(s.root, filename)
}

// Resolve maps an artifact name to its path. Hidden names (partials, staging)
// and anything that is not a plain base name are never resolvable.
func (s *Store) Resolve(filename string) (string, fs.FileInfo, error) {
	if filename == "" || filepath.Base(filename) != filename || strings.HasPrefix(filename, ".") {
		return "", nil, ErrInvalidName
	}
	path := s.ArtifactPath(filename)
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, fs.ErrNotExist
	}
	return path, info, nil
}

// Remove deletes a file, treating an already-missing file as success.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep removes artifacts, partial outputs and staging dirs whose mtime is older
// than maxAge. It returns the removed paths.
func (s *Store) Sweep(maxAge time.Duration, now time.Time) []string {
	var removed []string
	cutoff := now.Add(-maxAge)

	sweepDir := func(dir string, dirs bool) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Printf("Warning: could not list %s: %v", dir, err)
			return
		}
		for _, e := range entries {
			if e.IsDir() != dirs || (!dirs && e.Name() == stagingDirName) {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				s.logger.Printf("Warning: could not sweep %s: %v", path, err)
				continue
			}
			removed = append(removed, path)
		}
	}

	sweepDir(s.root, false)
	sweepDir(filepath.Join(s.root, stagingDirName), true)
	return removed
}
