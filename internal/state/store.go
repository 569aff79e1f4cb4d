package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Store persists the state aggregate as a single JSON document.
// Saves are atomic: the document is written to a temporary file in the same
// directory and renamed over the previous one, so an interrupted save never
// corrupts durable state.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewStore creates a store backed by the given file path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.Named("state_store"),
	}
}

// Load reads the persisted state. A missing or malformed file yields a fresh
// zeroed state rather than an error; malformed content is logged and replaced
// on the next save.
func (s *Store) Load() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read state file, starting fresh",
				zap.String("path", s.path),
				zap.Error(err))
		}

		return New()
	}

	st := New()
	if err := sonic.Unmarshal(data, st); err != nil {
		s.logger.Warn("State file is malformed, starting fresh",
			zap.String("path", s.path),
			zap.Error(err))

		return New()
	}

	st.normalize()

	return st
}

// Save durably writes the state document.
func (s *Store) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := sonic.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
