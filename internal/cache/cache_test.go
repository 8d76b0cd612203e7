package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reelnn/streamvault/internal/catalog"
)

func TestGetLatestTruncatesToLimit(t *testing.T) {
	c := New(nil)
	c.current.Store(&Snapshot{
		LatestMovies: []catalog.CardRecord{{ID: "1"}, {ID: "2"}, {ID: "3"}},
	})

	got := c.GetLatest("movie", 2)
	assert.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
}

func TestGetHeroSliderMergesMoviesAndShows(t *testing.T) {
	c := New(nil)
	c.current.Store(&Snapshot{
		HeroMovies: []catalog.CardRecord{{ID: "m1"}},
		HeroShows:  []catalog.CardRecord{{ID: "s1"}},
	})

	got := c.GetHeroSlider()
	assert.Len(t, got, 2)
}

func TestGetTrending(t *testing.T) {
	c := New(nil)
	c.current.Store(&Snapshot{
		TrendingMovies: []catalog.CardRecord{{ID: "m1"}},
		TrendingShows:  []catalog.CardRecord{{ID: "s1"}},
	})

	movies, shows := c.GetTrending()
	assert.Len(t, movies, 1)
	assert.Len(t, shows, 1)
}
