package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known secret names.
const (
	ProviderOpenAI  = "openai"
	ProviderTextGen = "textgen"
)

const secretsFile = "secrets.json"

// Store holds named API keys in a JSON document under the data directory.
// Reads are served from memory; writes rewrite the file atomically.
type Store struct {
	mu   sync.RWMutex
	path string
	keys map[string]string
}

// NewStore loads (or initializes) the secret file under dataDir.
func NewStore(dataDir string) (*Store, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, errors.New("secrets: data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("secrets: ensure data dir: %w", err)
	}
	s := &Store{path: filepath.Join(dataDir, secretsFile), keys: map[string]string{}}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("secrets: read %s: %w", secretsFile, err)
	}
	if err := json.Unmarshal(raw, &s.keys); err != nil {
		return nil, fmt.Errorf("secrets: parse %s: %w", secretsFile, err)
	}
	return s, nil
}

// Token returns the named key, empty when not configured.
func (s *Store) Token(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.TrimSpace(s.keys[name])
}

// Has reports whether a non-empty key is configured under name.
func (s *Store) Has(name string) bool {
	return s.Token(name) != ""
}

// SetToken stores the named key and persists the file atomically.
func (s *Store) SetToken(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("secrets: name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value = strings.TrimSpace(value)
	if value == "" {
		delete(s.keys, name)
	} else {
		s.keys[name] = value
	}
	return s.flushLocked()
}

// flushLocked writes the secret file via a temp file and rename so a crash
// mid-write never leaves a truncated document.
func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.keys, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), secretsFile+".*")
	if err != nil {
		return fmt.Errorf("secrets: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("secrets: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: replace %s: %w", secretsFile, err)
	}
	return nil
}
