package filestore

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotFound is returned by OpenFile when the requested digest is not
// present in the user's store.
var ErrNotFound = errors.New("filestore: file not found")

// HasFile reports whether the user's store already contains content with
// the given lowercased SHA-256 digest.
func (s *Store) HasFile(userID int64, sha256Hex string) bool {
	_, err := os.Stat(s.permanentPath(userID, sha256Hex))
	return err == nil
}

// OpenFile opens a readable handle to previously-stored content. Returns
// ErrNotFound if absent.
func (s *Store) OpenFile(userID int64, sha256Hex string) (*os.File, error) {
	f, err := os.Open(s.permanentPath(userID, sha256Hex))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: user=%d sha256=%s", ErrNotFound, userID, sha256Hex)
	}

	if err != nil {
		return nil, fmt.Errorf("filestore: opening %s: %w", sha256Hex, err)
	}

	return f, nil
}
