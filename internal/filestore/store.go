// Package filestore implements the content-addressed, per-user file store
// (spec component B): a directory tree keyed by lowercased SHA-256, a
// staging area for uploads-in-progress, and quota-enforced atomic
// promotion from staging to permanent storage.
package filestore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
)

// dirPerms matches tokenfile.DirPerms / pidfile.go's pidDirPermissions.
const dirPerms = 0o755

// filePerms is the standard permission for non-sensitive content (sync
// file bytes are not credentials).
const filePerms = 0o644

// Store is the content-addressed store rooted at a data directory. Safe
// for concurrent use: permanent-file writes rely on filename-as-hash plus
// atomic rename rather than locking (spec §5).
type Store struct {
	root   string
	logger *slog.Logger
}

// Open creates a Store rooted at root, clearing and recreating the tmp
// staging root on every process start (spec §5).
func Open(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{root: root, logger: logger}

	if err := os.MkdirAll(s.usersRoot(), dirPerms); err != nil {
		return nil, fmt.Errorf("filestore: creating users root: %w", err)
	}

	tmp := s.tmpRoot()
	if err := os.RemoveAll(tmp); err != nil {
		return nil, fmt.Errorf("filestore: clearing tmp root: %w", err)
	}

	if err := os.MkdirAll(tmp, dirPerms); err != nil {
		return nil, fmt.Errorf("filestore: recreating tmp root: %w", err)
	}

	// promote relies on os.Rename for atomic staging→permanent moves,
	// which only works within a single filesystem. Spec §9 requires
	// either this fail-fast check or a copy-then-fsync-then-rename
	// fallback; a rename across mounts fails with a clear os error, but
	// checking up front at startup surfaces a misconfiguration before any
	// fetch or upload depends on it.
	if err := requireSameMount(tmp, s.usersRoot()); err != nil {
		return nil, err
	}

	s.logger.Info("filestore ready", slog.String("root", root))

	return s, nil
}

// requireSameMount fails fast if a and b live on different filesystems,
// since promote's os.Rename cannot move files across a mount boundary.
func requireSameMount(a, b string) error {
	infoA, err := os.Stat(a)
	if err != nil {
		return fmt.Errorf("filestore: checking mount for %s: %w", a, err)
	}

	infoB, err := os.Stat(b)
	if err != nil {
		return fmt.Errorf("filestore: checking mount for %s: %w", b, err)
	}

	statA, ok := infoA.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	statB, ok := infoB.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	if statA.Dev != statB.Dev {
		return fmt.Errorf("filestore: tmp root %s and users root %s are on different mounts; "+
			"atomic rename during promotion requires them to share a filesystem", a, b)
	}

	return nil
}

func (s *Store) usersRoot() string {
	return filepath.Join(s.root, "users")
}

func (s *Store) tmpRoot() string {
	return filepath.Join(s.root, "tmp")
}

// userDir returns <root>/users/<uid>/sync_files.
func (s *Store) userDir(userID int64) string {
	return filepath.Join(s.usersRoot(), fmt.Sprintf("%d", userID), "sync_files")
}

// permanentPath returns the on-disk path for a given user's content by
// SHA-256 digest. The digest is not validated here — callers (AddFiles,
// HasFile, OpenFile) are responsible for passing lowercased hex.
func (s *Store) permanentPath(userID int64, sha256Hex string) string {
	return filepath.Join(s.userDir(userID), sha256Hex)
}
