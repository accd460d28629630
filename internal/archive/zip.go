package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/syncfile"
)

// buildSyncFilesZIP materializes a set of sync files as a ZIP archive
// rooted at "sync/", the same shape internal/snapshot builds for
// downloads — the map-engine's LoadCoverage parses this shape.
func buildSyncFilesZIP(files *filestore.Store, userID int64, syncFiles map[int]string) ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for id, sha := range syncFiles {
		name, err := syncfile.Filename(id)
		if err != nil {
			return nil, fmt.Errorf("archive: re-deriving filename for id %d: %w", id, err)
		}

		if err := writeEntry(zw, files, userID, sha, "sync/"+name); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalizing zip: %w", err)
	}

	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, files *filestore.Store, userID int64, sha256Hex, entryName string) error {
	f, err := files.OpenFile(userID, sha256Hex)
	if err != nil {
		return fmt.Errorf("archive: opening stored file %s: %w", sha256Hex, err)
	}
	defer f.Close()

	w, err := zw.Create(entryName)
	if err != nil {
		return fmt.Errorf("archive: adding zip entry %s: %w", entryName, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("archive: writing zip entry %s: %w", entryName, err)
	}

	return nil
}
