package tokenstore

// DownloadIntent is what a download token resolves to (spec §4.D). Exactly
// one of SnapshotID or ArchiveForUser is set, mirroring the tagged-union
// style store.Source uses for snapshot task sources.
type DownloadIntent struct {
	SnapshotID     int64
	ArchiveForUser int64
	Timezone       string // IANA name, only meaningful when ArchiveForUser is set

	// Artifact memoizes a generated payload (e.g. the archive zip bytes)
	// the first time this token is served, so subsequent hits reuse it
	// instead of regenerating (spec §4.H).
	Artifact []byte
}

// IsArchive reports whether the intent is an archive-for-user download
// rather than a single snapshot download.
func (d DownloadIntent) IsArchive() bool {
	return d.ArchiveForUser != 0
}
