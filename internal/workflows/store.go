package workflows

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gateway/internal/domain"
)

// Store persists named job-graph documents as JSON files under a fixed
// directory. Names are sanitized so a caller can never address files outside
// the workflow root.
type Store struct {
	basePath string
}

// NewStore initializes a Store rooted at basePath.
func NewStore(basePath string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("workflows: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("workflows: ensure base path: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// List returns the stored workflow file names in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("workflows: list: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the named workflow document.
func (s *Store) Read(name string) (json.RawMessage, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: workflow %q", domain.ErrNotFound, name)
		}
		return nil, fmt.Errorf("workflows: read %q: %w", name, err)
	}
	return raw, nil
}

// Write validates that the document is JSON and saves it atomically.
func (s *Store) Write(name string, doc json.RawMessage) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if !json.Valid(doc) {
		return fmt.Errorf("%w: workflow body must be valid JSON", domain.ErrClientInput)
	}
	tmp, err := os.CreateTemp(s.basePath, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("workflows: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("workflows: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("workflows: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("workflows: replace %q: %w", name, err)
	}
	return nil
}

// Delete removes the named workflow document.
func (s *Store) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: workflow %q", domain.ErrNotFound, name)
		}
		return fmt.Errorf("workflows: delete %q: %w", name, err)
	}
	return nil
}

// resolve sanitizes a workflow name into an absolute path under the root.
// The name is reduced to its final path element, so traversal sequences and
// separators cannot escape the directory.
func (s *Store) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: workflow name is required", domain.ErrClientInput)
	}
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == ".." || base == "/" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: invalid workflow name %q", domain.ErrClientInput, name)
	}
	if !strings.HasSuffix(base, ".json") {
		base += ".json"
	}
	return filepath.Join(s.basePath, base), nil
}
