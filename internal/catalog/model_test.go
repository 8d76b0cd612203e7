package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYear(t *testing.T) {
	assert.Equal(t, "2014", Year("2014-07-16"))
	assert.Equal(t, "", Year("14"))
	assert.Equal(t, "", Year(""))
}

func TestNormalizeSortMode(t *testing.T) {
	assert.Equal(t, SortMost, NormalizeSortMode("most"))
	assert.Equal(t, SortDate, NormalizeSortMode("date"))
	assert.Equal(t, SortNew, NormalizeSortMode("new"))
	assert.Equal(t, SortNew, NormalizeSortMode("garbage"))
}

func TestMergeVariantsByType(t *testing.T) {
	existing := []QualityVariant{{Type: "720p", FileHash: "aaa"}}
	incoming := []QualityVariant{{Type: "720p", FileHash: "bbb"}, {Type: "1080p", FileHash: "ccc"}}

	merged := mergeVariantsByType(existing, incoming)

	assert.Len(t, merged, 2)
	assert.Equal(t, "bbb", merged[0].FileHash, "a colliding type is replaced, not appended")
	assert.Equal(t, "ccc", merged[1].FileHash)
}

func TestMergeEpisodesMergesQualitiesAndScalars(t *testing.T) {
	existing := []Episode{{EpisodeNumber: 1, Name: "old name", Qualities: []QualityVariant{{Type: "480p"}}}}
	incoming := []Episode{{EpisodeNumber: 1, Name: "new name", Qualities: []QualityVariant{{Type: "1080p"}}}, {EpisodeNumber: 2, Name: "ep2"}}

	merged := mergeEpisodes(existing, incoming)

	assert.Len(t, merged, 2)
	assert.Equal(t, "new name", merged[0].Name)
	assert.Len(t, merged[0].Qualities, 2)
	assert.Equal(t, 2, merged[1].EpisodeNumber)
}

func TestCountSeasonsEpisodes(t *testing.T) {
	seasons := []Season{
		{SeasonNumber: 1, Episodes: []Episode{{EpisodeNumber: 1}, {EpisodeNumber: 2}}},
		{SeasonNumber: 2, Episodes: []Episode{{EpisodeNumber: 1}}},
	}
	totalSeasons, totalEpisodes := countSeasonsEpisodes(seasons)
	assert.Equal(t, 2, totalSeasons)
	assert.Equal(t, 3, totalEpisodes)
}
