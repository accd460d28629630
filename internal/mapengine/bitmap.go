// Package mapengine models the third-party map-engine library spec §1/§6
// names as an external collaborator: a coverage-bitmap computation and
// .mldx export engine. Engine is the interface boundary; memoryEngine is
// the deterministic in-memory default implementation used both in
// production (no native library is wired in this module) and in tests.
package mapengine

import "sort"

// TileID identifies one coarse geographic tile in the map-engine's
// coverage grid. The real library's tiling scheme is opaque to this
// module; this is a stand-in sparse key.
type TileID struct {
	X, Y int32
}

// Bitmap is a sparse per-tile coverage bitmap: each tile maps to a 64-bit
// mask of the visited 8x8 sub-blocks within it (spec SPEC_FULL.md §4.H:
// "map[TileID]uint64, one word per 8x8 block grid cell").
type Bitmap map[TileID]uint64

// Sub returns a-b: the coverage present in a but absent from b, per tile
// and per bit.
func (a Bitmap) Sub(b Bitmap) Bitmap {
	out := make(Bitmap, len(a))

	for tile, mask := range a {
		remaining := mask &^ b[tile]
		if remaining != 0 {
			out[tile] = remaining
		}
	}

	return out
}

// Intersect returns a∩b: the coverage present in both.
func (a Bitmap) Intersect(b Bitmap) Bitmap {
	out := make(Bitmap, len(a))

	for tile, mask := range a {
		common := mask & b[tile]
		if common != 0 {
			out[tile] = common
		}
	}

	return out
}

// BlockCount returns the total number of set 8x8 blocks across every
// tile — the noise filter in spec §4.H step 4 ("blocks ≤ 4" is skipped).
func (a Bitmap) BlockCount() int {
	total := 0

	for _, mask := range a {
		total += popcount(mask)
	}

	return total
}

// IsEmpty reports whether the bitmap has no set blocks at all.
func (a Bitmap) IsEmpty() bool {
	return len(a) == 0
}

func popcount(mask uint64) int {
	count := 0

	for mask != 0 {
		mask &= mask - 1
		count++
	}

	return count
}

// sortedTiles returns a's tiles in a deterministic order, used only by
// tests that need to assert on enumeration order.
func (a Bitmap) sortedTiles() []TileID {
	tiles := make([]TileID, 0, len(a))
	for t := range a {
		tiles = append(tiles, t)
	}

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}

		return tiles[i].Y < tiles[j].Y
	})

	return tiles
}
