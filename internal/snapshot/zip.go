package snapshot

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/memolanes/memolanes-server/internal/syncfile"
)

// buildSyncFilesZIP materializes a snapshot's sync files as a ZIP archive
// rooted at "sync/", the inverse of Create's upload parsing — used for
// snapshot downloads and, via internal/archive, delta ZIPs fed to the
// map-engine.
func (s *Service) buildSyncFilesZIP(syncFiles map[int]string, userID int64) ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for id, sha := range syncFiles {
		name, err := syncfile.Filename(id)
		if err != nil {
			return nil, fmt.Errorf("snapshot: re-deriving filename for id %d: %w", id, err)
		}

		if err := s.writeZIPEntry(zw, userID, sha, "sync/"+name); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: finalizing zip: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *Service) writeZIPEntry(zw *zip.Writer, userID int64, sha256Hex, entryName string) error {
	f, err := s.files.OpenFile(userID, sha256Hex)
	if err != nil {
		return fmt.Errorf("snapshot: opening stored file %s: %w", sha256Hex, err)
	}
	defer f.Close()

	w, err := zw.Create(entryName)
	if err != nil {
		return fmt.Errorf("snapshot: adding zip entry %s: %w", entryName, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("snapshot: writing zip entry %s: %w", entryName, err)
	}

	return nil
}
