package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelnn/streamvault/internal/apierr"
)

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "The Movie", SanitizeTitle("@promo_channel The Movie"))
	assert.Equal(t, "The Movie", SanitizeTitle("[@somebot.xyz] The Movie"))
	assert.Equal(t, "The Movie", SanitizeTitle("www.example.com - The Movie"))
}

func TestParseTitleMovie(t *testing.T) {
	p, err := ParseTitle("Arrival 2016")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Season)
	assert.Equal(t, 2016, p.Year)
}

func TestParseTitleEpisode(t *testing.T) {
	p, err := ParseTitle("Breaking Bad S02E05")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Season)
	assert.Equal(t, 5, p.Episode)
}

func TestParseTitleSeasonWithoutEpisodeIsError(t *testing.T) {
	_, err := ParseTitle("Breaking Bad S02")
	assert.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrValidation)
}

type countingHandler struct {
	calls atomic.Int64
	err   error
}

func (h *countingHandler) Handle(ctx context.Context, item *Item) error {
	h.calls.Add(1)
	return h.err
}

func TestQueueProcessesAndDrains(t *testing.T) {
	handler := &countingHandler{}
	q := New(handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		q.Enqueue(ctx, &Item{ChatID: 1, MessageID: i})
	}

	joinCtx, joinCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer joinCancel()
	require.NoError(t, q.Join(joinCtx))

	assert.Equal(t, int64(5), handler.calls.Load())
	assert.Equal(t, int64(0), q.Pending())
}

func TestQueueProcessesItemEnqueuedAfterDrain(t *testing.T) {
	handler := &countingHandler{}
	q := New(handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Enqueue(ctx, &Item{ChatID: 1, MessageID: 1})
	joinCtx, joinCancel := context.WithTimeout(context.Background(), time.Second)
	require.NoError(t, q.Join(joinCtx))
	joinCancel()

	q.Enqueue(ctx, &Item{ChatID: 1, MessageID: 2})
	joinCtx2, joinCancel2 := context.WithTimeout(context.Background(), time.Second)
	defer joinCancel2()
	require.NoError(t, q.Join(joinCtx2))

	assert.Equal(t, int64(2), handler.calls.Load())
}

func TestQueueHandlesRejection(t *testing.T) {
	handler := &countingHandler{err: errors.New("boom")}
	q := New(handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	item := &Item{ChatID: 1, MessageID: 1}
	q.Enqueue(ctx, item)

	joinCtx, joinCancel := context.WithTimeout(context.Background(), time.Second)
	defer joinCancel()
	require.NoError(t, q.Join(joinCtx))

	assert.Equal(t, StateRejected, item.State)
}
