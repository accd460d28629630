package filestore

import (
	"fmt"
	"log/slog"
	"os"
)

// StagingDir is a scoped handle to a unique temporary directory under the
// store's tmp root. It must be released on every exit path (spec §5:
// "staging directories are tied to a scoped handle that removes the
// directory on all exit paths") — callers should `defer dir.Release()`
// immediately after NewStagingDir returns.
type StagingDir struct {
	Path   string
	logger *slog.Logger
}

// NewStagingDir creates a unique staging directory under <root>/tmp.
func (s *Store) NewStagingDir() (*StagingDir, error) {
	path, err := os.MkdirTemp(s.tmpRoot(), "stage-*")
	if err != nil {
		return nil, fmt.Errorf("filestore: creating staging dir: %w", err)
	}

	return &StagingDir{Path: path, logger: s.logger}, nil
}

// Release removes the staging directory and everything staged inside it.
// Safe to call more than once.
func (d *StagingDir) Release() {
	if err := os.RemoveAll(d.Path); err != nil {
		d.logger.Warn("failed to remove staging dir", slog.String("path", d.Path), slog.String("error", err.Error()))
	}
}
