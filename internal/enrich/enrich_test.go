package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityLabel(t *testing.T) {
	cases := []struct {
		height int
		want   string
	}{
		{240, "360p"},
		{480, "480p"},
		{720, "720p"},
		{1080, "1080p"},
		{2160, "2160p"},
		{4320, "4320p"},
		{8000, "8640p"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, qualityLabel(tc.height))
	}
}

func TestParseFFProbeOutput(t *testing.T) {
	raw := "stream,video,h264,1080\nstream,audio,aac\nformat,matroska,webm\n"
	res := parseFFProbeOutput(raw)

	assert.Equal(t, "h264", res.VideoCodec)
	assert.Equal(t, "aac", res.Audio)
	assert.Equal(t, "1080p", res.Quality)
	assert.Equal(t, "video/x-matroska", res.FileType)
}

func TestParseFFProbeOutputUnknownFormatFallsBackToOctetStream(t *testing.T) {
	res := parseFFProbeOutput("stream,video,h264,720\n")

	assert.Equal(t, "application/octet-stream", res.FileType)
}

func TestContainerMimeType(t *testing.T) {
	cases := []struct {
		formatName string
		want       string
	}{
		{"mov,mp4,m4a,3gp,3g2,mj2", "video/mp4"},
		{"matroska,webm", "video/x-matroska"},
		{"avi", "video/x-msvideo"},
		{"flv", "video/x-flv"},
		{"asf", "video/x-ms-wmv"},
		{"ogg", "video/ogg"},
		{"", "application/octet-stream"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, containerMimeType(tc.formatName))
	}
}

func TestQueryCacheKeyDistinguishesEpisodes(t *testing.T) {
	movie := Query{Title: "Arrival", Year: 2016}
	episode := Query{Title: "Breaking Bad", Season: 2, Episode: 5}

	assert.NotEqual(t, movie.cacheKey(), episode.cacheKey())
}
