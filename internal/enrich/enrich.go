// Package enrich implements the enrichment client (C9): it resolves a parsed
// title into catalog metadata via an injected provider, probes the media
// file for track/quality information, and composes the final record the
// ingestion worker upserts into the catalog store.
package enrich

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reelnn/streamvault/internal/apierr"
	"github.com/reelnn/streamvault/internal/catalog"
)

const lruCapacity = 100

// Query is the key used to look up metadata: a movie query carries only
// Title/Year, a show/episode query additionally carries Season/Episode.
type Query struct {
	Title   string
	Year    int
	Season  int
	Episode int
}

func (q Query) cacheKey() string {
	return fmt.Sprintf("%s|%d|%d|%d", q.Title, q.Year, q.Season, q.Episode)
}

// Metadata is the provider-agnostic result of a lookup, already narrowed to
// the fields the catalog model needs.
type Metadata struct {
	ID            string
	Title         string
	OriginalTitle string
	ReleaseDate   string
	Overview      string
	Poster        string
	Backdrop      string
	Runtime       int
	Popularity    float64
	VoteAverage   float64
	VoteCount     int
	Genres        []string
	Cast          []catalog.Person
	Directors     []catalog.Person
	Studios       []string
	Logo          string
	Trailer       string
	IMDbLink      string

	// Episode-only fields, populated when the query carried Season/Episode.
	EpisodeName      string
	EpisodeOverview  string
	EpisodeStillPath string
	EpisodeAirDate   string

	IsShow bool
}

// MetadataProvider is injected so the external metadata source stays a pure
// interface boundary, per spec.md's non-goal of not mandating a specific
// provider implementation.
type MetadataProvider interface {
	Lookup(ctx context.Context, q Query) (Metadata, error)
}

// Client resolves queries via a MetadataProvider with an LRU cache in front
// of it, and probes media files for quality/track information.
type Client struct {
	provider MetadataProvider
	cache    *lru.Cache[string, Metadata]
}

// New creates a Client. provider must not be nil.
func New(provider MetadataProvider) (*Client, error) {
	cache, err := lru.New[string, Metadata](lruCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: create lru cache: %s", apierr.ErrInternal, err)
	}
	return &Client{provider: provider, cache: cache}, nil
}

// Lookup resolves q via the cache, falling back to the provider on a miss.
func (c *Client) Lookup(ctx context.Context, q Query) (Metadata, error) {
	key := q.cacheKey()
	if md, ok := c.cache.Get(key); ok {
		return md, nil
	}

	md, err := c.provider.Lookup(ctx, q)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: metadata lookup: %s", apierr.ErrUpstreamUnavailable, err)
	}

	c.cache.Add(key, md)
	return md, nil
}

// ProbeResult is what ProbeMedia extracts from the first streamed chunk of a
// file: enough to build a catalog.QualityVariant.
type ProbeResult struct {
	FileType   string
	VideoCodec string
	Audio      string
	Subtitle   string
	Quality    string
}

// qualityLabel maps a pixel height to the spec's fixed label ladder.
func qualityLabel(height int) string {
	switch {
	case height <= 360:
		return "360p"
	case height <= 480:
		return "480p"
	case height <= 540:
		return "540p"
	case height <= 720:
		return "720p"
	case height <= 1080:
		return "1080p"
	case height <= 2160:
		return "2160p"
	case height <= 4320:
		return "4320p"
	default:
		return "8640p"
	}
}

// ProbeMedia writes the first chunk to a sandboxed temp file, invokes
// ffprobe against it, and always removes the temp file before returning —
// on every exit path, including a probe failure.
func ProbeMedia(ctx context.Context, firstChunk []byte) (ProbeResult, error) {
	id := uuid.New().String()[:12]
	dir := filepath.Join(os.TempDir(), "mediainfo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: create probe dir: %s", apierr.ErrInternal, err)
	}
	path := filepath.Join(dir, "sample_"+id)

	f, err := os.Create(path)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: create sample file: %s", apierr.ErrInternal, err)
	}
	defer os.Remove(path)

	if _, err := f.Write(firstChunk); err != nil {
		f.Close()
		return ProbeResult{}, fmt.Errorf("%w: write sample file: %s", apierr.ErrInternal, err)
	}
	if err := f.Close(); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: close sample file: %s", apierr.ErrInternal, err)
	}

	return runFFProbe(ctx, path)
}

func runFFProbe(ctx context.Context, path string) (ProbeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,height:format=format_name",
		"-of", "csv=p=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: ffprobe: %s", apierr.ErrInternal, err)
	}

	res := parseFFProbeOutput(string(out))
	return res, nil
}

// parseFFProbeOutput is split out from runFFProbe so it can be unit tested
// without shelling out. With section names printed (csv=p=1), a stream line
// is "stream,<codec_type>,<codec_name>,<height>" and the format line is
// "format,<format_name>" — the container format the original client reads
// off the parsed General track (original_source/utils/mediainfo.py).
func parseFFProbeOutput(raw string) ProbeResult {
	var res ProbeResult
	height := 0

	lines := splitLines(raw)
	for _, line := range lines {
		fields := splitCSV(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "stream":
			if len(fields) < 2 {
				continue
			}
			switch fields[1] {
			case "video":
				if len(fields) > 2 {
					res.VideoCodec = fields[2]
				}
				if len(fields) > 3 {
					if h := atoiSafe(fields[3]); h > height {
						height = h
					}
				}
			case "audio":
				if len(fields) > 2 {
					res.Audio = fields[2]
				}
			case "subtitle":
				if len(fields) > 2 {
					res.Subtitle = fields[2]
				}
			}
		case "format":
			if len(fields) > 1 && fields[1] != "" {
				res.FileType = containerMimeType(fields[1])
			}
		}
	}

	res.Quality = qualityLabel(height)
	if res.FileType == "" {
		res.FileType = "application/octet-stream"
	}
	return res
}

// containerMimeType maps ffprobe's format_name — often a comma-separated
// list of aliases, e.g. "mov,mp4,m4a,3gp,3g2,mj2" — to the mime type stored
// on the catalog entry, covering the container formats Telegram media
// actually arrives in.
func containerMimeType(formatName string) string {
	primary := formatName
	if i := strings.IndexByte(formatName, ','); i >= 0 {
		primary = formatName[:i]
	}
	switch primary {
	case "mov", "mp4", "m4a", "3gp", "3g2", "mj2":
		return "video/mp4"
	case "matroska", "webm":
		return "video/x-matroska"
	case "avi":
		return "video/x-msvideo"
	case "flv":
		return "video/x-flv"
	case "asf":
		return "video/x-ms-wmv"
	case "":
		return "application/octet-stream"
	default:
		return "video/" + primary
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func splitCSV(line string) []string {
	var out []string
	start := 0
	for i, c := range line {
		if c == ',' {
			out = append(out, line[start:i])
			start = i + 1
		}
	}
	out = append(out, line[start:])
	return out
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// ReadFirstChunk reads up to budget bytes from r, the bytes ProbeMedia needs,
// without importing the streamer package; callers pass a reader already
// positioned at the start of the file. A reader shorter than budget is not
// an error: the bytes read are returned.
func ReadFirstChunk(r io.Reader, budget int) ([]byte, error) {
	buf := make([]byte, budget)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
