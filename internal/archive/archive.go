// Package archive implements the archive exporter (spec component H):
// diffing successive snapshots into per-day coverage bitmaps via the
// map-engine library, and exporting the result to the .mldx format.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/mapengine"
	"github.com/memolanes/memolanes-server/internal/store"
)

// journeySyncDelayOffset is the 6-hour offset spec §4.H step 4.e applies
// before resolving a snapshot's timestamp to a timezone-local date, to
// approximate the delay between device recording and cloud sync.
const journeySyncDelayOffset = -6 * time.Hour

// minBlockCount is the noise filter spec §4.H step 4.d applies: a
// snapshot's delta bitmap is skipped unless it has more than this many
// set blocks.
const minBlockCount = 4

// Exporter produces a user's consolidated archive by diffing successive
// snapshots' sync files (spec §4.H).
type Exporter struct {
	repos  store.Repositories
	files  *filestore.Store
	engine mapengine.Engine
}

// NewExporter constructs an Exporter.
func NewExporter(repos store.Repositories, files *filestore.Store, engine mapengine.Engine) *Exporter {
	return &Exporter{repos: repos, files: files, engine: engine}
}

// Export builds and serializes the consolidated archive for userID in
// the given IANA timezone. Returns an empty archive (no journeys) if the
// user has no snapshots.
func (e *Exporter) Export(ctx context.Context, userID int64, tz *time.Location) ([]byte, error) {
	snapshots, err := e.loadSnapshots(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(snapshots) == 0 {
		return e.engine.Export(&mapengine.Archive{})
	}

	finalBitmap, err := e.coverageFor(userID, snapshots[len(snapshots)-1].SyncFiles)
	if err != nil {
		return nil, err
	}

	archive := &mapengine.Archive{}

	var (
		prevSyncFiles  map[int]string
		prevFullBitmap mapengine.Bitmap
		havePrev       bool
	)

	for _, snap := range snapshots {
		deltaFiles := diffSyncFiles(snap.SyncFiles, prevSyncFiles)
		if len(deltaFiles) == 0 {
			continue
		}

		fullBitmapOfDelta, err := e.coverageFor(userID, deltaFiles)
		if err != nil {
			return nil, err
		}

		bitmap := fullBitmapOfDelta

		if havePrev {
			bitmap = fullBitmapOfDelta.Sub(prevFullBitmap.Intersect(fullBitmapOfDelta))
		}

		bitmap = bitmap.Intersect(finalBitmap)

		if !bitmap.IsEmpty() && bitmap.BlockCount() > minBlockCount {
			archive.AppendJourney(mapengine.Journey{
				Date:   snap.Timestamp.Add(journeySyncDelayOffset).In(tz),
				End:    snap.Timestamp,
				Kind:   mapengine.JourneyDefault,
				Note:   snap.Note,
				Bitmap: bitmap,
			})
		}

		prevSyncFiles = snap.SyncFiles
		prevFullBitmap = fullBitmapOfDelta
		havePrev = true
	}

	return e.engine.Export(archive)
}

func (e *Exporter) loadSnapshots(ctx context.Context, userID int64) ([]store.Snapshot, error) {
	tx, err := e.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	snapshots, err := e.repos.Snapshots.AllOrdered(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("archive: loading snapshots for user %d: %w", userID, err)
	}

	return snapshots, tx.Commit()
}

// coverageFor builds a ZIP of the given sync files from the content store
// and asks the map-engine to compute their coverage bitmap.
func (e *Exporter) coverageFor(userID int64, syncFiles map[int]string) (mapengine.Bitmap, error) {
	zipData, err := buildSyncFilesZIP(e.files, userID, syncFiles)
	if err != nil {
		return nil, err
	}

	bitmap, err := e.engine.LoadCoverage(zipData)
	if err != nil {
		return nil, fmt.Errorf("archive: computing coverage: %w", err)
	}

	return bitmap, nil
}

// diffSyncFiles returns the entries of current whose (id, sha256) do not
// match previous — spec §4.H step 4.a's delta_files.
func diffSyncFiles(current, previous map[int]string) map[int]string {
	delta := make(map[int]string)

	for id, sha := range current {
		if previous[id] != sha {
			delta[id] = sha
		}
	}

	return delta
}
