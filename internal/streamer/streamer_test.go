package streamer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkSizeCapsAtOneMiB(t *testing.T) {
	assert.Equal(t, int64(defaultChunkSize), ChunkSize(100*1024*1024))
}

func TestChunkSizeShrinksForSmallFiles(t *testing.T) {
	assert.Equal(t, int64(5*1024*1024/10), ChunkSize(5*1024*1024))
}

func TestPropsCacheExpiry(t *testing.T) {
	c := newPropsCache()
	loc := FileLocator{ChatID: 1, MessageID: 2}

	_, ok := c.get(loc)
	assert.False(t, ok)

	c.set(loc, FileProperties{Size: 123})
	props, ok := c.get(loc)
	assert.True(t, ok)
	assert.Equal(t, int64(123), props.Size)

	removed := c.Clean()
	assert.Equal(t, 0, removed)
}
