// Package cache implements the catalog cache (C8): a periodically refreshed,
// read-mostly snapshot of the hero slider, latest listings, and trending
// cards, so the hot read path never touches the store directly.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelnn/streamvault/internal/catalog"
)

const (
	refreshInterval = 180 * time.Second
	refreshTimeout  = 60 * time.Second
	refreshersLimit = 2
)

// Snapshot is the immutable result of one successful refresh. A failed
// refresh never produces a new Snapshot — the previous one stays live.
type Snapshot struct {
	HeroMovies   []catalog.CardRecord
	HeroShows    []catalog.CardRecord
	LatestMovies []catalog.CardRecord
	LatestShows  []catalog.CardRecord
	TrendingMovies []catalog.CardRecord
	TrendingShows  []catalog.CardRecord
	RefreshedAt  time.Time
}

const (
	heroCount   = 3
	latestCount = 21
)

// Cache holds the current Snapshot and knows how to refresh it from a Store.
type Cache struct {
	store   *catalog.Store
	current atomic.Pointer[Snapshot]
}

// New creates a Cache with an empty initial snapshot.
func New(store *catalog.Store) *Cache {
	c := &Cache{store: store}
	c.current.Store(&Snapshot{RefreshedAt: time.Time{}})
	return c
}

// Get returns the current snapshot. Never touches the store.
func (c *Cache) Get() *Snapshot {
	return c.current.Load()
}

// GetHeroSlider reads the snapshot's hero slider: the hero movies followed by
// the hero shows. Each group is in descending internal-id order (the query
// order); the two groups are concatenated, not interleaved by id.
func (c *Cache) GetHeroSlider() []catalog.CardRecord {
	s := c.Get()
	merged := make([]catalog.CardRecord, 0, len(s.HeroMovies)+len(s.HeroShows))
	merged = append(merged, s.HeroMovies...)
	merged = append(merged, s.HeroShows...)
	return merged
}

// GetLatest reads the snapshot's latest listing for the given media type,
// truncated to limit.
func (c *Cache) GetLatest(mediaType string, limit int) []catalog.CardRecord {
	s := c.Get()
	src := s.LatestMovies
	if mediaType == "show" {
		src = s.LatestShows
	}
	if limit > 0 && limit < len(src) {
		return src[:limit]
	}
	return src
}

// GetTrending reads the snapshot's trending cards.
func (c *Cache) GetTrending() (movies, shows []catalog.CardRecord) {
	s := c.Get()
	return s.TrendingMovies, s.TrendingShows
}

// Refresh runs the three work items concurrently, bounded by refreshersLimit
// goroutines and refreshTimeout wall clock. On any failure the previous
// snapshot is left intact and the error is logged, never propagated — a
// refresh failure must never take down the scheduler loop.
func (c *Cache) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	var heroMovies, heroShows, latestMovies, latestShows, trendingMovies, trendingShows []catalog.CardRecord

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshersLimit)

	g.Go(func() error {
		var err error
		heroMovies, err = c.store.FindNewest(gctx, "movie", heroCount)
		if err != nil {
			return err
		}
		heroShows, err = c.store.FindNewest(gctx, "show", heroCount)
		return err
	})

	g.Go(func() error {
		var err error
		latestMovies, err = c.store.FindNewest(gctx, "movie", latestCount)
		if err != nil {
			return err
		}
		latestShows, err = c.store.FindNewest(gctx, "show", latestCount)
		return err
	})

	g.Go(func() error {
		var err error
		trendingMovies, trendingShows, err = c.store.ResolveTrendingCards(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Warn("catalog cache refresh failed, keeping previous snapshot", "error", err)
		return
	}

	c.current.Store(&Snapshot{
		HeroMovies:     heroMovies,
		HeroShows:      heroShows,
		LatestMovies:   latestMovies,
		LatestShows:    latestShows,
		TrendingMovies: trendingMovies,
		TrendingShows:  trendingShows,
		RefreshedAt:    time.Now(),
	})
}

// Run blocks, refreshing on a 180-second ticker until ctx is cancelled. It
// recovers from a panic inside a single refresh so one bad refresh can't
// kill the whole background loop — the next tick simply tries again.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	c.safeRefresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.safeRefresh(ctx)
		}
	}
}

func (c *Cache) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("catalog cache refresh panicked, supervisor continuing", "panic", r)
		}
	}()
	c.Refresh(ctx)
}
