package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeAbsentHeader(t *testing.T) {
	w, err := parseRange("", 5242880)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.from)
	assert.Equal(t, int64(5242879), w.until)
	assert.Equal(t, http.StatusOK, w.status)
}

func TestParseRangeWithExplicitEnd(t *testing.T) {
	w, err := parseRange("bytes=1000-2000", 5242880)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.from)
	assert.Equal(t, int64(2000), w.until)
	assert.Equal(t, http.StatusPartialContent, w.status)
}

func TestParseRangeWithOpenEnd(t *testing.T) {
	w, err := parseRange("bytes=1000-", 5242880)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.from)
	assert.Equal(t, int64(5242879), w.until)
}

func TestParseRangeOutOfBoundsIsNotSatisfiable(t *testing.T) {
	_, err := parseRange("bytes=6000000-", 5242880)
	assert.Error(t, err)
}

func TestParseRangeMalformedIsNotSatisfiable(t *testing.T) {
	_, err := parseRange("not-a-range", 5242880)
	assert.Error(t, err)
}

func TestFilenameFallback(t *testing.T) {
	name := filenameFallback("0000000000abcd", "video/mp4")
	assert.Equal(t, "abcd.mp4", name)
}

func TestFilenameFallbackUnknownMime(t *testing.T) {
	name := filenameFallback("ab", "")
	assert.Equal(t, "00ab.unknown", name)
}
