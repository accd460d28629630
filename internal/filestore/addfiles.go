package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrHashMismatch is returned when a staged file's actual content digest
// disagrees with its declared SHA-256 — spec property 2: no file is
// promoted and the whole AddFiles call fails.
var ErrHashMismatch = errors.New("filestore: staged file hash mismatch")

// ErrQuotaExceeded is returned when promoting the given items would push
// the user's store past their storage quota.
var ErrQuotaExceeded = errors.New("filestore: out of sync file storage quota")

// StagedItem is one file waiting to be promoted into permanent storage:
// its declared content digest and the path it currently lives at (inside
// a StagingDir, though AddFiles does not require that).
type StagedItem struct {
	SHA256     string
	StagedPath string
}

// AddFiles verifies, quota-checks, and atomically promotes staged files
// into the user's permanent store. Per spec §4.B:
//  1. Hash every staged file; fail the whole call on any mismatch.
//  2. Compute current user directory size; fail if adding these files
//     would exceed quotaPerUser.
//  3. Rename each staged file into place if not already present —
//     concurrent adds of the same digest race benignly since content is
//     keyed by its own hash.
func (s *Store) AddFiles(userID int64, items []StagedItem, quotaPerUser int64) error {
	var addedSize int64

	for _, item := range items {
		size, err := verifyDigest(item.StagedPath, item.SHA256)
		if err != nil {
			return err
		}

		// Only digests not already present in the user's store count
		// against quota — re-adding identical content must not
		// double-charge (spec property 3).
		if !s.HasFile(userID, item.SHA256) {
			addedSize += size
		}
	}

	if len(items) == 0 {
		return nil
	}

	currentSize, err := s.userDirSize(userID)
	if err != nil {
		return fmt.Errorf("filestore: computing current usage for user %d: %w", userID, err)
	}

	if currentSize+addedSize > quotaPerUser {
		return fmt.Errorf("%w: user %d would use %d of %d bytes", ErrQuotaExceeded, userID, currentSize+addedSize, quotaPerUser)
	}

	dir := s.userDir(userID)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("filestore: creating user dir for %d: %w", userID, err)
	}

	for _, item := range items {
		if err := s.promote(userID, item); err != nil {
			return err
		}
	}

	return nil
}

// promote renames a validated staged file into permanent storage. If the
// destination already exists (another concurrent AddFiles promoted the
// same digest first), this is a no-op — content is keyed by its own hash
// so either rename winning is correct.
func (s *Store) promote(userID int64, item StagedItem) error {
	dest := s.permanentPath(userID, item.SHA256)

	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	if err := os.Rename(item.StagedPath, dest); err != nil {
		// Benign race: another writer promoted the same digest between our
		// Stat and Rename. Treat "destination now exists" as success.
		if _, statErr := os.Stat(dest); statErr == nil {
			return nil
		}

		return fmt.Errorf("filestore: promoting %s for user %d: %w", item.SHA256, userID, err)
	}

	if err := os.Chmod(dest, filePerms); err != nil {
		return fmt.Errorf("filestore: setting permissions on %s: %w", dest, err)
	}

	return nil
}

// verifyDigest recomputes the SHA-256 of a staged file and compares it,
// case-sensitively, to the declared lowercase hex digest. Returns the
// file size on success.
func verifyDigest(path, declared string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("filestore: opening staged file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()

	size, err := io.Copy(h, f)
	if err != nil {
		return 0, fmt.Errorf("filestore: hashing staged file %s: %w", path, err)
	}

	computed := hex.EncodeToString(h.Sum(nil))
	if computed != declared {
		return 0, fmt.Errorf("%w: staged %s computed=%s declared=%s", ErrHashMismatch, path, computed, declared)
	}

	return size, nil
}

// userDirSize walks a user's permanent storage directory and sums file
// sizes. No background GC is specified — quota sizing is always computed
// fresh from the filesystem (spec §4.B).
func (s *Store) userDirSize(userID int64) (int64, error) {
	dir := s.userDir(userID)

	var total int64

	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		total += info.Size()

		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}

	return total, nil
}
