// Package artifact implements the local PDF store for the download
// variant, with an on-disk duplicate-skip guard.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const ext = ".pdf"

// Store writes one artifact per identifier under a single directory.
// Identifiers whose file already exists are never fetched again; the
// existing set is scanned once at open.
type Store struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// Open creates the directory if needed and indexes existing artifacts.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan artifact dir %s: %w", dir, err)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		seen[strings.TrimSuffix(name, ext)] = struct{}{}
	}

	return &Store{dir: dir, logger: logger, seen: seen}, nil
}

// Seen reports whether the identifier's artifact is already on disk.
func (s *Store) Seen(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[code]
	return ok
}

// Put writes the artifact and marks the identifier seen.
func (s *Store) Put(code string, data []byte) error {
	if code == "" {
		return fmt.Errorf("empty artifact identifier")
	}
	path := filepath.Join(s.dir, code+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	s.mu.Lock()
	s.seen[code] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("artifact stored", zap.String("code", code), zap.Int("bytes", len(data)))
	return nil
}

// Count returns the number of artifacts known to the store.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
