// Package imagestore resolves where expected, processed and diff screenshots
// live on disk and reads and writes their bytes.
package imagestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Extension is appended to every screenshot name.
const Extension = ".png"

// Layout names the screenshot directories relative to a suite's base directory.
type Layout struct {
	ExpectedDir  string
	ProcessedDir string
	DiffDir      string
	// RepoRoot, when set, replaces the suite base directory for processed and
	// diff screenshots. Expected screenshots always stay with the suite.
	RepoRoot string
}

// Store is the filesystem-backed image store.
type Store struct {
	fs     afero.Fs
	layout Layout
}

// New creates a Store over fs. A nil fs means the OS filesystem.
func New(fs afero.Fs, layout Layout) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, layout: layout}
}

// Fs exposes the underlying filesystem so collaborators write through the same view.
func (s *Store) Fs() afero.Fs { return s.fs }

// Layout returns the directory layout the store was built with.
func (s *Store) Layout() Layout { return s.layout }

func (s *Store) artifactRoot(baseDir string) string {
	if s.layout.RepoRoot != "" {
		return s.layout.RepoRoot
	}
	return baseDir
}

// ExpectedDir is the directory holding accepted baselines for a suite.
func (s *Store) ExpectedDir(baseDir string) string {
	return filepath.Join(baseDir, s.layout.ExpectedDir)
}

// ProcessedDir is the directory freshly rendered screenshots are written to.
func (s *Store) ProcessedDir(baseDir string) string {
	return filepath.Join(s.artifactRoot(baseDir), s.layout.ProcessedDir)
}

// DiffDir is the directory diff images are written to.
func (s *Store) DiffDir(baseDir string) string {
	return filepath.Join(s.artifactRoot(baseDir), s.layout.DiffDir)
}

// ExpectedPath is the baseline file for baseline.
func (s *Store) ExpectedPath(baseDir, baseline string) string {
	return filepath.Join(s.ExpectedDir(baseDir), baseline+Extension)
}

// ProcessedPath is the capture file for screen.
func (s *Store) ProcessedPath(baseDir, screen string) string {
	return filepath.Join(s.ProcessedDir(baseDir), screen+Extension)
}

// DiffPath is the diff image file for screen.
func (s *Store) DiffPath(baseDir, screen string) string {
	return filepath.Join(s.DiffDir(baseDir), screen+Extension)
}

// IsDirectory reports whether path exists and is a directory.
func (s *Store) IsDirectory(path string) bool {
	ok, err := afero.DirExists(s.fs, path)
	return err == nil && ok
}

// MakeTree creates path and any missing parents. An existing directory is not an error.
func (s *Store) MakeTree(path string) error {
	if err := s.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates path unless it already is a directory.
func (s *Store) EnsureDir(path string) error {
	if s.IsDirectory(path) {
		return nil
	}
	return s.MakeTree(path)
}

// IsFile reports whether path exists and is a regular file.
func (s *Store) IsFile(path string) bool {
	info, err := s.fs.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Read returns the full content of path.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the content of path, creating its directory if needed.
func (s *Store) Write(path string, data []byte) error {
	if err := s.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Remove deletes path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
