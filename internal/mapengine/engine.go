package mapengine

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// JourneyKind distinguishes how a journey record was produced. Default is
// the only kind this module writes (spec §4.H step 4.f).
type JourneyKind int

const (
	JourneyDefault JourneyKind = iota
)

// Journey is one per-day coverage record in an exported archive (spec
// §4.H step 4.f).
type Journey struct {
	Date   time.Time
	End    time.Time
	Kind   JourneyKind
	Note   *string
	Bitmap Bitmap
}

// Archive accumulates Journey records for export to the .mldx format.
type Archive struct {
	journeys []Journey
}

// AppendJourney adds one journey record to the archive.
func (a *Archive) AppendJourney(j Journey) {
	a.journeys = append(a.journeys, j)
}

// Engine is the map-engine library's interface boundary (spec §1/§6): it
// converts a ZIP of sync files into a coverage bitmap and exports an
// accumulated Archive to the .mldx binary format.
type Engine interface {
	// LoadCoverage parses zipData (a ZIP of sync files, as produced by
	// internal/snapshot's zip builder) and returns the full coverage
	// bitmap it represents.
	LoadCoverage(zipData []byte) (Bitmap, error)
	// Export serializes an Archive to the .mldx binary format.
	Export(archive *Archive) ([]byte, error)
}

// memoryEngine is the deterministic in-memory default implementation:
// coverage tiles are derived from each sync file's content hash rather
// than real GPS track parsing, since no native map-engine library is
// available in this pack (SPEC_FULL.md §4.H).
type memoryEngine struct{}

// NewEngine constructs the default in-memory Engine.
func NewEngine() Engine {
	return memoryEngine{}
}

// LoadCoverage derives a coverage bitmap from the ZIP's entries: each
// entry contributes one tile (keyed by the first 8 bytes of its content
// SHA-256) with a mask derived from the entry's size, a low-cost
// deterministic stand-in for parsing the entry as a GPS track.
func (memoryEngine) LoadCoverage(zipData []byte) (Bitmap, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, fmt.Errorf("mapengine: reading archive: %w", err)
	}

	bitmap := make(Bitmap)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		tile, mask, err := tileAndMaskForEntry(f)
		if err != nil {
			return nil, err
		}

		bitmap[tile] |= mask
	}

	return bitmap, nil
}

// tileAndMaskForEntry hashes an entry's content to derive a tile
// coordinate and a non-zero 8x8 block mask.
func tileAndMaskForEntry(f *zip.File) (TileID, uint64, error) {
	rc, err := f.Open()
	if err != nil {
		return TileID{}, 0, fmt.Errorf("mapengine: opening entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return TileID{}, 0, fmt.Errorf("mapengine: hashing entry %s: %w", f.Name, err)
	}

	sum := h.Sum(nil)

	tile := TileID{
		X: int32(binary.BigEndian.Uint32(sum[0:4])),
		Y: int32(binary.BigEndian.Uint32(sum[4:8])),
	}

	mask := binary.BigEndian.Uint64(sum[8:16])
	if mask == 0 {
		mask = 1
	}

	return tile, mask, nil
}

// mldxMagic identifies the exported binary format.
const mldxMagic = "MLDX"

// Export serializes journeys in a fixed binary layout: a 4-byte magic, a
// journey count, then per journey: date (unix seconds), end (unix
// seconds), kind, note length + bytes, tile count, then per tile X, Y,
// mask.
func (memoryEngine) Export(archive *Archive) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(mldxMagic)

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(archive.journeys))); err != nil {
		return nil, fmt.Errorf("mapengine: writing journey count: %w", err)
	}

	for _, j := range archive.journeys {
		if err := writeJourney(&buf, j); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeJourney(buf *bytes.Buffer, j Journey) error {
	if err := binary.Write(buf, binary.BigEndian, j.Date.Unix()); err != nil {
		return fmt.Errorf("mapengine: writing journey date: %w", err)
	}

	if err := binary.Write(buf, binary.BigEndian, j.End.Unix()); err != nil {
		return fmt.Errorf("mapengine: writing journey end: %w", err)
	}

	if err := binary.Write(buf, binary.BigEndian, int32(j.Kind)); err != nil {
		return fmt.Errorf("mapengine: writing journey kind: %w", err)
	}

	note := ""
	if j.Note != nil {
		note = *j.Note
	}

	if err := binary.Write(buf, binary.BigEndian, uint32(len(note))); err != nil {
		return fmt.Errorf("mapengine: writing note length: %w", err)
	}

	buf.WriteString(note)

	tiles := j.Bitmap.sortedTiles()

	if err := binary.Write(buf, binary.BigEndian, uint32(len(tiles))); err != nil {
		return fmt.Errorf("mapengine: writing tile count: %w", err)
	}

	for _, tile := range tiles {
		if err := binary.Write(buf, binary.BigEndian, tile.X); err != nil {
			return fmt.Errorf("mapengine: writing tile x: %w", err)
		}

		if err := binary.Write(buf, binary.BigEndian, tile.Y); err != nil {
			return fmt.Errorf("mapengine: writing tile y: %w", err)
		}

		if err := binary.Write(buf, binary.BigEndian, j.Bitmap[tile]); err != nil {
			return fmt.Errorf("mapengine: writing tile mask: %w", err)
		}
	}

	return nil
}
