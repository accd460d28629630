package syncfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameKnownVector(t *testing.T) {
	name, err := Filename(117660)
	require.NoError(t, err)
	assert.Equal(t, "23e4lltkkoke", name)
}

func TestParseKnownVector(t *testing.T) {
	id, err := Parse("23e4lltkkoke")
	require.NoError(t, err)
	assert.Equal(t, 117660, id)
}

func TestParseRejectsNonRoundTrippingSuffix(t *testing.T) {
	_, err := Parse("23e4lltkkoki")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestParseRejectsShortNames(t *testing.T) {
	_, err := Parse("abcd")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestParseRejectsCharactersOutsideAlphabet(t *testing.T) {
	// 'z' does not appear in digitToBody ("olhwjsktri").
	_, err := Parse("23e4zzzzzzke")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestBijectionOverFullRange(t *testing.T) {
	for id := 0; id <= MaxID; id += 37 { // sampled stride keeps the test fast
		name, err := Filename(id)
		require.NoError(t, err)

		got, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestFilenameRejectsOutOfRange(t *testing.T) {
	_, err := Filename(-1)
	require.ErrorIs(t, err, ErrIDOutOfRange)

	_, err = Filename(MaxID + 1)
	require.ErrorIs(t, err, ErrIDOutOfRange)
}

func TestParseRoundTripAnyString(t *testing.T) {
	// Property 1's converse: if Parse(s) = id, then Filename(id) = s.
	s := "23e4lltkkoke"

	id, err := Parse(s)
	require.NoError(t, err)

	name, err := Filename(id)
	require.NoError(t, err)
	assert.Equal(t, s, name)
}
