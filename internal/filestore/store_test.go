package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	return s
}

func stageBytes(t *testing.T, s *Store, content []byte) StagedItem {
	t.Helper()

	dir, err := s.NewStagingDir()
	require.NoError(t, err)
	t.Cleanup(dir.Release)

	path := filepath.Join(dir.Path, "staged")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum := sha256.Sum256(content)

	return StagedItem{SHA256: hex.EncodeToString(sum[:]), StagedPath: path}
}

func TestAddFilesPromotesAndDedups(t *testing.T) {
	s := mustOpen(t)
	item := stageBytes(t, s, []byte{0x00})

	require.NoError(t, s.AddFiles(1, []StagedItem{item}, 1<<20))
	require.True(t, s.HasFile(1, item.SHA256))

	f, err := s.OpenFile(1, item.SHA256)
	require.NoError(t, err)
	f.Close()

	// Re-adding the same digest (dedup idempotence, spec property 3) must
	// not double-charge quota or error.
	item2 := stageBytes(t, s, []byte{0x00})
	require.NoError(t, s.AddFiles(1, []StagedItem{item2}, 1))
}

func TestAddFilesRejectsHashMismatch(t *testing.T) {
	s := mustOpen(t)
	item := stageBytes(t, s, []byte{0x01})
	item.SHA256 = strings.Repeat("0", 64)

	err := s.AddFiles(1, []StagedItem{item}, 1<<20)
	require.ErrorIs(t, err, ErrHashMismatch)
	require.False(t, s.HasFile(1, item.SHA256))
}

func TestAddFilesEnforcesQuota(t *testing.T) {
	s := mustOpen(t)
	item := stageBytes(t, s, make([]byte, 200))

	err := s.AddFiles(7, []StagedItem{item}, 100)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.False(t, s.HasFile(7, item.SHA256))
}

func TestOpenFileNotFound(t *testing.T) {
	s := mustOpen(t)

	_, err := s.OpenFile(1, "deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenClearsTmpRootOnStart(t *testing.T) {
	root := t.TempDir()

	s1, err := Open(root, nil)
	require.NoError(t, err)

	leftover := filepath.Join(s1.tmpRoot(), "leftover")
	require.NoError(t, os.WriteFile(leftover, []byte("x"), 0o644))

	s2, err := Open(root, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(s2.tmpRoot(), "leftover"))
	require.True(t, os.IsNotExist(statErr))
}
