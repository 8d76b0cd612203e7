package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reelnn/streamvault/internal/apierr"
	"github.com/reelnn/streamvault/internal/catalog"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// TMDBProvider is a MetadataProvider backed by TMDB's REST API. No example
// repo in the corpus wires a dedicated TMDB SDK, and the API surface needed
// here (search + images + credits + videos, each a plain GET) doesn't
// justify pulling in a generic OpenAPI or GraphQL client library — this is
// the one place in the service where net/http is used directly rather than
// through a higher-level client, and it is confined to this single file.
type TMDBProvider struct {
	apiKey string
	client *http.Client
}

// NewTMDBProvider creates a TMDBProvider.
func NewTMDBProvider(apiKey string) *TMDBProvider {
	return &TMDBProvider{apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *TMDBProvider) get(ctx context.Context, path string, query url.Values, out any) error {
	query.Set("api_key", p.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", tmdbBaseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: tmdb request: %s", apierr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: tmdb responded %d", apierr.ErrUpstreamUnavailable, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type tmdbSearchResult struct {
	Results []struct {
		ID            int     `json:"id"`
		Title         string  `json:"title"`
		Name          string  `json:"name"`
		OriginalTitle string  `json:"original_title"`
		ReleaseDate   string  `json:"release_date"`
		FirstAirDate  string  `json:"first_air_date"`
		Overview      string  `json:"overview"`
		PosterPath    string  `json:"poster_path"`
		BackdropPath  string  `json:"backdrop_path"`
		Popularity    float64 `json:"popularity"`
		VoteAverage   float64 `json:"vote_average"`
		VoteCount     int     `json:"vote_count"`
		GenreIDs      []int   `json:"genre_ids"`
	} `json:"results"`
}

// Lookup implements MetadataProvider. It searches by title/year, then
// fetches images, external ids, credits, and videos in sequence, tolerating
// a failure in any one of them per spec.md §4.8 step 3.
func (p *TMDBProvider) Lookup(ctx context.Context, q Query) (Metadata, error) {
	isShow := q.Season > 0

	endpoint := "/search/movie"
	if isShow {
		endpoint = "/search/tv"
	}
	query := url.Values{"query": {q.Title}}
	if q.Year > 0 && !isShow {
		query.Set("year", strconv.Itoa(q.Year))
	}

	var search tmdbSearchResult
	if err := p.get(ctx, endpoint, query, &search); err != nil {
		return Metadata{}, err
	}
	if len(search.Results) == 0 {
		return Metadata{}, fmt.Errorf("%w: no tmdb match for %q", apierr.ErrNotFound, q.Title)
	}
	top := search.Results[0]

	md := Metadata{
		ID:          strconv.Itoa(top.ID),
		Title:       firstNonEmpty(top.Title, top.Name),
		Overview:    top.Overview,
		Poster:      top.PosterPath,
		Backdrop:    top.BackdropPath,
		Popularity:  top.Popularity,
		VoteAverage: top.VoteAverage,
		VoteCount:   top.VoteCount,
		IsShow:      isShow,
	}
	md.ReleaseDate = firstNonEmpty(top.ReleaseDate, top.FirstAirDate)
	md.OriginalTitle = top.OriginalTitle

	detailEndpoint := fmt.Sprintf("/movie/%d", top.ID)
	if isShow {
		detailEndpoint = fmt.Sprintf("/tv/%d", top.ID)
	}

	p.fetchImages(ctx, detailEndpoint, &md)
	p.fetchExternalIDs(ctx, detailEndpoint, &md)
	p.fetchCredits(ctx, detailEndpoint, &md, isShow)
	p.fetchVideos(ctx, detailEndpoint, &md)

	if isShow && q.Episode > 0 {
		p.fetchEpisodeDetails(ctx, top.ID, q.Season, q.Episode, &md)
	}

	return md, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *TMDBProvider) fetchImages(ctx context.Context, detailEndpoint string, md *Metadata) {
	var out struct {
		Logos []struct {
			FilePath   string `json:"file_path"`
			Iso639_1   string `json:"iso_639_1"`
		} `json:"logos"`
	}
	if err := p.get(ctx, detailEndpoint+"/images", url.Values{}, &out); err != nil {
		return
	}
	var indo string
	for _, logo := range out.Logos {
		if logo.Iso639_1 == "en" {
			md.Logo = logo.FilePath
			return
		}
		if logo.Iso639_1 == "id" && indo == "" {
			indo = logo.FilePath
		}
	}
	md.Logo = indo
}

func (p *TMDBProvider) fetchExternalIDs(ctx context.Context, detailEndpoint string, md *Metadata) {
	var out struct {
		IMDbID string `json:"imdb_id"`
	}
	if err := p.get(ctx, detailEndpoint+"/external_ids", url.Values{}, &out); err != nil {
		return
	}
	if out.IMDbID != "" {
		md.IMDbLink = "https://www.imdb.com/title/" + out.IMDbID
	}
}

func (p *TMDBProvider) fetchCredits(ctx context.Context, detailEndpoint string, md *Metadata, isShow bool) {
	var out struct {
		Cast []struct {
			Name        string `json:"name"`
			Character   string `json:"character"`
			ProfilePath string `json:"profile_path"`
		} `json:"cast"`
		Crew []struct {
			Name        string `json:"name"`
			Job         string `json:"job"`
			ProfilePath string `json:"profile_path"`
		} `json:"crew"`
	}
	if err := p.get(ctx, detailEndpoint+"/credits", url.Values{}, &out); err != nil {
		return
	}

	limit := 20
	if len(out.Cast) < limit {
		limit = len(out.Cast)
	}
	for _, c := range out.Cast[:limit] {
		md.Cast = append(md.Cast, catalog.Person{Name: c.Name, Character: c.Character, ProfilePath: c.ProfilePath})
	}

	if !isShow {
		for _, c := range out.Crew {
			if c.Job == "Director" {
				md.Directors = append(md.Directors, catalog.Person{Name: c.Name, ProfilePath: c.ProfilePath})
			}
		}
	}
}

func (p *TMDBProvider) fetchVideos(ctx context.Context, detailEndpoint string, md *Metadata) {
	var out struct {
		Results []struct {
			Key  string `json:"key"`
			Name string `json:"name"`
			Site string `json:"site"`
			Type string `json:"type"`
		} `json:"results"`
	}
	if err := p.get(ctx, detailEndpoint+"/videos", url.Values{}, &out); err != nil {
		return
	}

	var first, official string
	for _, v := range out.Results {
		if v.Site != "YouTube" || v.Type != "Trailer" {
			continue
		}
		if first == "" {
			first = v.Key
		}
		if official == "" && strings.Contains(strings.ToLower(v.Name), "official") {
			official = v.Key
		}
	}
	trailer := official
	if trailer == "" {
		trailer = first
	}
	if trailer != "" {
		md.Trailer = "https://www.youtube.com/watch?v=" + trailer
	}
}

func (p *TMDBProvider) fetchEpisodeDetails(ctx context.Context, showID, season, episode int, md *Metadata) {
	endpoint := fmt.Sprintf("/tv/%d/season/%d/episode/%d", showID, season, episode)
	var out struct {
		Name      string `json:"name"`
		Overview  string `json:"overview"`
		StillPath string `json:"still_path"`
		AirDate   string `json:"air_date"`
		Runtime   int    `json:"runtime"`
	}
	if err := p.get(ctx, endpoint, url.Values{}, &out); err != nil {
		return
	}
	md.EpisodeName = out.Name
	md.EpisodeOverview = out.Overview
	md.EpisodeStillPath = out.StillPath
	md.EpisodeAirDate = out.AirDate
	md.Runtime = out.Runtime
}
