// Package syncfile implements the bijection between a sync file's numeric
// id and its obfuscated on-disk filename. Leaf package, no internal
// imports — mirrors driveid's own zero-dependency layering, consumed
// from every layer above it.
package syncfile

import (
	"crypto/md5" //nolint:gosec // obfuscation only, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// MaxID is the highest valid sync file id: a 512x512 tile grid.
const MaxID = 512 * 512

// digitToBody maps a decimal digit to its obfuscated letter for the
// filename body (encodes every digit of the id).
const digitToBody = "olhwjsktri"

// digitToSuffix maps a decimal digit to its obfuscated letter for the
// filename suffix (encodes only the last two digits of the id).
const digitToSuffix = "eizxdwknmo"

// prefixLen is the number of hex characters of MD5(id) used as the
// filename prefix.
const prefixLen = 4

// suffixLen is the number of trailing decimal digits encoded into the suffix.
const suffixLen = 2

// minNameLen is the minimum filename length accepted before any other
// validation runs.
const minNameLen = 6

// ErrInvalidName is returned when a filename cannot be parsed into a
// valid sync file id.
var ErrInvalidName = errors.New("syncfile: invalid filename")

// ErrIDOutOfRange is returned when an id is negative or exceeds MaxID.
var ErrIDOutOfRange = errors.New("syncfile: id out of range")

// Filename derives the obfuscated on-disk filename for a sync file id.
func Filename(id int) (string, error) {
	if id < 0 || id > MaxID {
		return "", fmt.Errorf("%w: %d", ErrIDOutOfRange, id)
	}

	s := strconv.Itoa(id)

	body, err := substitute(s, digitToBody)
	if err != nil {
		return "", err
	}

	// The suffix always encodes exactly the last two decimal digits of the
	// id (zero-padded), regardless of how many digits s itself has — this
	// keeps the prefix/body/suffix split fixed-width at the tail, which is
	// what Parse relies on when it slices name[4:len-2].
	suffix, err := substitute(fmt.Sprintf("%02d", id%100), digitToSuffix)
	if err != nil {
		return "", err
	}

	prefix := md5Prefix(s)

	return prefix + body + suffix, nil
}

// Parse recovers the id encoded in an obfuscated filename. It rejects any
// name that is too short, contains body characters outside the encoding
// alphabet, or does not round-trip back to the exact same filename.
func Parse(name string) (int, error) {
	if len(name) < minNameLen {
		return 0, fmt.Errorf("%w: %q too short", ErrInvalidName, name)
	}

	body := name[prefixLen : len(name)-suffixLen]

	s, err := unsubstitute(body, digitToBody)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidName, name, err)
	}

	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidName, name, err)
	}

	canonical, err := Filename(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidName, name, err)
	}

	if canonical != name {
		return 0, fmt.Errorf("%w: %q does not round-trip (want %q)", ErrInvalidName, name, canonical)
	}

	return id, nil
}

// substitute maps each decimal digit character of s to table[digit].
func substitute(s, table string) (string, error) {
	out := make([]byte, len(s))

	for i := 0; i < len(s); i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return "", fmt.Errorf("%w: non-digit %q", ErrInvalidName, s)
		}

		out[i] = table[d-'0']
	}

	return string(out), nil
}

// unsubstitute reverses substitute: maps each letter back to its digit
// using table, rejecting characters absent from the alphabet.
func unsubstitute(s, table string) (string, error) {
	out := make([]byte, len(s))

	for i := 0; i < len(s); i++ {
		idx := indexByte(table, s[i])
		if idx < 0 {
			return "", fmt.Errorf("%w: character %q outside encoding alphabet", ErrInvalidName, s[i])
		}

		out[i] = byte('0' + idx)
	}

	return string(out), nil
}

func indexByte(table string, b byte) int {
	for i := 0; i < len(table); i++ {
		if table[i] == b {
			return i
		}
	}

	return -1
}

// md5Prefix computes the first prefixLen lowercase hex characters of
// MD5(decimal ASCII representation of the id).
func md5Prefix(decimal string) string {
	sum := md5.Sum([]byte(decimal)) //nolint:gosec // obfuscation only
	return hex.EncodeToString(sum[:])[:prefixLen]
}
