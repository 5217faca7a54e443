package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/registry"
)

// FileStore persists snapshots as JSON on disk.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore returns a JSON-backed snapshot store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Load reads the snapshot from disk. Missing or corrupt files return an
// empty snapshot with a warning.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Str("path", s.path).Msg("state file missing, starting fresh")
			return Snapshot{Statuses: map[string]registry.Status{}}, nil
		}
		return Snapshot{}, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.logger.Warn().Str("path", s.path).Err(err).Msg("state file corrupt, starting fresh")
		return Snapshot{Statuses: map[string]registry.Status{}}, nil
	}
	if snapshot.Statuses == nil {
		snapshot.Statuses = map[string]registry.Status{}
	}
	return snapshot, nil
}

// Save writes the snapshot to disk atomically.
func (s *FileStore) Save(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot.Statuses == nil {
		snapshot.Statuses = map[string]registry.Status{}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	encoder := json.NewEncoder(tempFile)
	if err := encoder.Encode(snapshot); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		cleanup()
		return err
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return nil
}
