package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reelnn/streamvault/internal/apierr"
)

const trendingConfigKey = "trending"

// Store abstracts the movies/shows/users/configs collections with the unique
// secondary keys and paginated/aggregation queries the core issues. It holds
// no business logic beyond what spec.md §4.6 names explicitly.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	movies  *mongo.Collection
	shows   *mongo.Collection
	users   *mongo.Collection
	configs *mongo.Collection
}

// Connect dials Mongo, pings it, and ensures the mandatory unique indices
// from spec.md §6.4 exist. It logs and keeps serving on an index-creation
// failure rather than refusing to start, matching the teacher's
// fail-loud-but-keep-serving posture in NewServer.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: mongo connect: %s", apierr.ErrUpstreamUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("%w: mongo ping: %s", apierr.ErrUpstreamUnavailable, err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:  client,
		db:      db,
		movies:  db.Collection("movies"),
		shows:   db.Collection("shows"),
		users:   db.Collection("users"),
		configs: db.Collection("configs"),
	}

	s.ensureIndices(ctx)
	return s, nil
}

func (s *Store) ensureIndices(ctx context.Context) {
	type indexSpec struct {
		coll *mongo.Collection
		key  string
	}
	specs := []indexSpec{
		{s.movies, "mid"},
		{s.shows, "sid"},
		{s.users, "user_id"},
		{s.configs, "key"},
	}
	for _, sp := range specs {
		model := mongo.IndexModel{
			Keys:    bson.D{{Key: sp.key, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := sp.coll.Indexes().CreateOne(ctx, model); err != nil {
			slog.Error("failed to ensure unique index",
				"collection", sp.coll.Name(), "key", sp.key, "error", err)
		}
	}
}

// Close disconnects the underlying Mongo client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ---------------------------------------------------------------------------
// Movies
// ---------------------------------------------------------------------------

// UpsertMovie inserts a new movie or, if mid already exists, overwrites the
// allowlisted scalar fields and appends quality variants. Qualities are
// appended WITHOUT dedup by default (the historical append-without-dedup
// quirk from spec.md §9); set mergeQualities to switch to merge-by-type.
func (s *Store) UpsertMovie(ctx context.Context, rec MovieRecord, mergeQualities bool) error {
	if rec.MID == "" {
		return fmt.Errorf("%w: mid is required", apierr.ErrInvalidRequest)
	}

	existing, err := s.FindMovieByID(ctx, rec.MID)
	if err != nil && !strings.Contains(err.Error(), apierr.ErrNotFound.Error()) {
		return err
	}

	if existing == nil {
		_, err := s.movies.InsertOne(ctx, rec)
		if err != nil {
			return fmt.Errorf("%w: insert movie: %s", apierr.ErrInternal, err)
		}
		return nil
	}

	update := bson.M{
		"title":          rec.Title,
		"original_title": rec.OriginalTitle,
		"release_date":   rec.ReleaseDate,
		"overview":       rec.Overview,
		"poster":         rec.Poster,
		"backdrop":       rec.Backdrop,
		"runtime":        rec.Runtime,
		"popularity":     rec.Popularity,
		"vote_average":   rec.VoteAverage,
		"vote_count":     rec.VoteCount,
		"genres":         rec.Genres,
		"cast":           rec.Cast,
		"directors":      rec.Directors,
		"studios":        rec.Studios,
		"links":          rec.Links,
		"logo":           rec.Logo,
		"trailer":        rec.Trailer,
	}

	var qualities []QualityVariant
	if mergeQualities {
		qualities = mergeVariantsByType(existing.Qualities, rec.Qualities)
	} else {
		qualities = append(append([]QualityVariant{}, existing.Qualities...), rec.Qualities...)
	}
	update["qualities"] = qualities

	_, err = s.movies.UpdateOne(ctx, bson.M{"mid": rec.MID}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("%w: update movie: %s", apierr.ErrInternal, err)
	}
	return nil
}

func mergeVariantsByType(existing, incoming []QualityVariant) []QualityVariant {
	byType := make(map[string]QualityVariant, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if _, ok := byType[v.Type]; !ok {
			order = append(order, v.Type)
		}
		byType[v.Type] = v
	}
	for _, v := range incoming {
		if _, ok := byType[v.Type]; !ok {
			order = append(order, v.Type)
		}
		byType[v.Type] = v
	}
	out := make([]QualityVariant, 0, len(order))
	for _, t := range order {
		out = append(out, byType[t])
	}
	return out
}

// FindMovieByID returns the movie with the given mid, or ErrNotFound.
func (s *Store) FindMovieByID(ctx context.Context, mid string) (*MovieRecord, error) {
	var rec MovieRecord
	err := s.movies.FindOne(ctx, bson.M{"mid": mid}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: movie %s", apierr.ErrNotFound, mid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find movie: %s", apierr.ErrInternal, err)
	}
	return &rec, nil
}

// DeleteMovie removes a movie by mid.
func (s *Store) DeleteMovie(ctx context.Context, mid string) DeleteResult {
	res, err := s.movies.DeleteOne(ctx, bson.M{"mid": mid})
	if err != nil {
		return DeleteResult{Status: DeleteError}
	}
	if res.DeletedCount == 0 {
		return DeleteResult{Status: DeleteNotFound}
	}
	return DeleteResult{Status: DeleteSuccess, Count: res.DeletedCount}
}

// ---------------------------------------------------------------------------
// Shows
// ---------------------------------------------------------------------------

// UpsertShow inserts a new show or merges by season number, then by episode
// number; within an episode, qualities are merged by type (replace on
// collision). Unknown seasons/episodes are appended.
func (s *Store) UpsertShow(ctx context.Context, rec ShowRecord) error {
	if rec.SID == "" {
		return fmt.Errorf("%w: sid is required", apierr.ErrInvalidRequest)
	}

	existing, err := s.FindShowByID(ctx, rec.SID)
	if err != nil && !strings.Contains(err.Error(), apierr.ErrNotFound.Error()) {
		return err
	}

	if existing == nil {
		rec.TotalSeasons, rec.TotalEpisodes = countSeasonsEpisodes(rec.Seasons)
		_, err := s.shows.InsertOne(ctx, rec)
		if err != nil {
			return fmt.Errorf("%w: insert show: %s", apierr.ErrInternal, err)
		}
		return nil
	}

	mergedSeasons := mergeSeasons(existing.Seasons, rec.Seasons)
	totalSeasons, totalEpisodes := countSeasonsEpisodes(mergedSeasons)

	update := bson.M{
		"title":          rec.Title,
		"original_title": rec.OriginalTitle,
		"release_date":   rec.ReleaseDate,
		"overview":       rec.Overview,
		"poster":         rec.Poster,
		"backdrop":       rec.Backdrop,
		"popularity":     rec.Popularity,
		"vote_average":   rec.VoteAverage,
		"vote_count":     rec.VoteCount,
		"genres":         rec.Genres,
		"cast":           rec.Cast,
		"studios":        rec.Studios,
		"links":          rec.Links,
		"logo":           rec.Logo,
		"trailer":        rec.Trailer,
		"seasons":        mergedSeasons,
		"total_seasons":  totalSeasons,
		"total_episodes": totalEpisodes,
		"status":         rec.Status,
	}

	_, err = s.shows.UpdateOne(ctx, bson.M{"sid": rec.SID}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("%w: update show: %s", apierr.ErrInternal, err)
	}
	return nil
}

func mergeSeasons(existing, incoming []Season) []Season {
	bySeason := make(map[int]Season, len(existing))
	order := make([]int, 0, len(existing))
	for _, sn := range existing {
		bySeason[sn.SeasonNumber] = sn
		order = append(order, sn.SeasonNumber)
	}
	for _, sn := range incoming {
		cur, ok := bySeason[sn.SeasonNumber]
		if !ok {
			order = append(order, sn.SeasonNumber)
			bySeason[sn.SeasonNumber] = sn
			continue
		}
		cur.Episodes = mergeEpisodes(cur.Episodes, sn.Episodes)
		bySeason[sn.SeasonNumber] = cur
	}
	sort.Ints(order)
	out := make([]Season, 0, len(order))
	for _, n := range order {
		out = append(out, bySeason[n])
	}
	return out
}

func mergeEpisodes(existing, incoming []Episode) []Episode {
	byEp := make(map[int]Episode, len(existing))
	order := make([]int, 0, len(existing))
	for _, ep := range existing {
		byEp[ep.EpisodeNumber] = ep
		order = append(order, ep.EpisodeNumber)
	}
	for _, ep := range incoming {
		cur, ok := byEp[ep.EpisodeNumber]
		if !ok {
			order = append(order, ep.EpisodeNumber)
			byEp[ep.EpisodeNumber] = ep
			continue
		}
		// Merge scalar fields from the incoming episode, and merge qualities
		// keyed by type (replace on collision).
		if ep.Name != "" {
			cur.Name = ep.Name
		}
		if ep.Overview != "" {
			cur.Overview = ep.Overview
		}
		if ep.StillPath != "" {
			cur.StillPath = ep.StillPath
		}
		if ep.AirDate != "" {
			cur.AirDate = ep.AirDate
		}
		cur.Qualities = mergeVariantsByType(cur.Qualities, ep.Qualities)
		byEp[ep.EpisodeNumber] = cur
	}
	sort.Ints(order)
	out := make([]Episode, 0, len(order))
	for _, n := range order {
		out = append(out, byEp[n])
	}
	return out
}

func countSeasonsEpisodes(seasons []Season) (int, int) {
	total := 0
	for _, sn := range seasons {
		total += len(sn.Episodes)
	}
	return len(seasons), total
}

// FindShowByID returns the show with the given sid, or ErrNotFound.
func (s *Store) FindShowByID(ctx context.Context, sid string) (*ShowRecord, error) {
	var rec ShowRecord
	err := s.shows.FindOne(ctx, bson.M{"sid": sid}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: show %s", apierr.ErrNotFound, sid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find show: %s", apierr.ErrInternal, err)
	}
	return &rec, nil
}

// DeleteShow removes a show by sid.
func (s *Store) DeleteShow(ctx context.Context, sid string) DeleteResult {
	res, err := s.shows.DeleteOne(ctx, bson.M{"sid": sid})
	if err != nil {
		return DeleteResult{Status: DeleteError}
	}
	if res.DeletedCount == 0 {
		return DeleteResult{Status: DeleteNotFound}
	}
	return DeleteResult{Status: DeleteSuccess, Count: res.DeletedCount}
}

// ---------------------------------------------------------------------------
// Pagination
// ---------------------------------------------------------------------------

func sortSpec(mode SortMode) bson.D {
	switch mode {
	case SortMost:
		return bson.D{{Key: "vote_average", Value: -1}}
	case SortDate:
		return bson.D{{Key: "release_date", Value: -1}}
	default:
		return bson.D{{Key: "_id", Value: -1}}
	}
}

// FindMoviesPaginated returns a page of movie cards and the total count.
func (s *Store) FindMoviesPaginated(ctx context.Context, skip, limit int64, sort SortMode) ([]CardRecord, int64, error) {
	return s.findPaginated(ctx, s.movies, "movie", skip, limit, sort)
}

// FindShowsPaginated returns a page of show cards and the total count.
func (s *Store) FindShowsPaginated(ctx context.Context, skip, limit int64, sort SortMode) ([]CardRecord, int64, error) {
	return s.findPaginated(ctx, s.shows, "show", skip, limit, sort)
}

func (s *Store) findPaginated(ctx context.Context, coll *mongo.Collection, mediaType string, skip, limit int64, mode SortMode) ([]CardRecord, int64, error) {
	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count: %s", apierr.ErrInternal, err)
	}

	opts := options.Find().SetSkip(skip).SetLimit(limit).SetSort(sortSpec(mode))
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: find: %s", apierr.ErrInternal, err)
	}
	defer cur.Close(ctx)

	cards := make([]CardRecord, 0, limit)
	for cur.Next(ctx) {
		card, err := decodeCard(cur, mediaType)
		if err != nil {
			return nil, 0, err
		}
		cards = append(cards, card)
	}
	return cards, total, nil
}

// cardProjection is the shared subset of fields movies and shows carry, used
// to decode a bson document directly into a CardRecord.
type cardProjection struct {
	MID         string  `bson:"mid"`
	SID         string  `bson:"sid"`
	Title       string  `bson:"title"`
	ReleaseDate string  `bson:"release_date"`
	Poster      string  `bson:"poster"`
	VoteAverage float64 `bson:"vote_average"`
	VoteCount   int     `bson:"vote_count"`
}

func decodeCard(cur *mongo.Cursor, mediaType string) (CardRecord, error) {
	var proj cardProjection
	if err := cur.Decode(&proj); err != nil {
		return CardRecord{}, fmt.Errorf("%w: decode card: %s", apierr.ErrInternal, err)
	}
	id := proj.MID
	if id == "" {
		id = proj.SID
	}
	return CardRecord{
		ID:          id,
		Title:       proj.Title,
		Year:        Year(proj.ReleaseDate),
		Poster:      proj.Poster,
		VoteAverage: proj.VoteAverage,
		VoteCount:   proj.VoteCount,
		MediaType:   mediaType,
	}, nil
}

// ---------------------------------------------------------------------------
// Fuzzy search
// ---------------------------------------------------------------------------

// Search performs a provider-specific fuzzy title search across both movies
// and shows, merging and re-sorting results by score descending.
func (s *Store) Search(ctx context.Context, query string, limit int64) ([]CardRecord, error) {
	movieResults, err := s.searchCollection(ctx, s.movies, "movie", query, limit)
	if err != nil {
		return nil, err
	}
	showResults, err := s.searchCollection(ctx, s.shows, "show", query, limit)
	if err != nil {
		return nil, err
	}

	merged := append(movieResults, showResults...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if int64(len(merged)) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *Store) searchCollection(ctx context.Context, coll *mongo.Collection, mediaType, query string, limit int64) ([]CardRecord, error) {
	filter := bson.M{"$text": bson.M{"$search": query}}
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(limit)

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: text search: %s", apierr.ErrInternal, err)
	}
	defer cur.Close(ctx)

	type searchProjection struct {
		cardProjection `bson:",inline"`
		Score          float64 `bson:"score"`
	}

	out := make([]CardRecord, 0, limit)
	for cur.Next(ctx) {
		var proj searchProjection
		if err := cur.Decode(&proj); err != nil {
			return nil, fmt.Errorf("%w: decode search result: %s", apierr.ErrInternal, err)
		}
		id := proj.MID
		if id == "" {
			id = proj.SID
		}
		out = append(out, CardRecord{
			ID:          id,
			Title:       proj.Title,
			Year:        Year(proj.ReleaseDate),
			Poster:      proj.Poster,
			VoteAverage: proj.VoteAverage,
			VoteCount:   proj.VoteCount,
			MediaType:   mediaType,
			Score:       proj.Score,
		})
	}
	return out, nil
}

// SearchSubstring performs a plain substring title search within one media
// type, used by GET /api/v1/search/{media_type}.
func (s *Store) SearchSubstring(ctx context.Context, mediaType, query string) ([]CardRecord, error) {
	coll := s.movies
	if mediaType == "show" {
		coll = s.shows
	}
	filter := bson.M{"title": bson.M{"$regex": query, "$options": "i"}}
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: substring search: %s", apierr.ErrInternal, err)
	}
	defer cur.Close(ctx)

	out := []CardRecord{}
	for cur.Next(ctx) {
		card, err := decodeCard(cur, mediaType)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Similar / genre lookup
// ---------------------------------------------------------------------------

// FindSimilar returns cards of the given media type sharing at least one of
// the requested genres (1–2 genres per spec.md §6.1).
func (s *Store) FindSimilar(ctx context.Context, mediaType string, genres []string, limit int64) ([]CardRecord, error) {
	coll := s.movies
	if mediaType == "show" {
		coll = s.shows
	}
	filter := bson.M{"genres": bson.M{"$in": genres}}
	cur, err := coll.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: find similar: %s", apierr.ErrInternal, err)
	}
	defer cur.Close(ctx)

	out := []CardRecord{}
	for cur.Next(ctx) {
		card, err := decodeCard(cur, mediaType)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Trending config
// ---------------------------------------------------------------------------

// SaveTrendingConfig upserts the single "trending" config document.
func (s *Store) SaveTrendingConfig(ctx context.Context, movieIDs, showIDs []string) error {
	filter := bson.M{"key": trendingConfigKey}
	update := bson.M{"$set": bson.M{
		"key":   trendingConfigKey,
		"movie": movieIDs,
		"show":  showIDs,
	}}
	_, err := s.configs.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: save trending config: %s", apierr.ErrInternal, err)
	}
	return nil
}

// GetTrendingConfig reads the "trending" config document. A missing document
// is treated as an empty config rather than an error.
func (s *Store) GetTrendingConfig(ctx context.Context) (TrendingConfig, error) {
	var cfg TrendingConfig
	err := s.configs.FindOne(ctx, bson.M{"key": trendingConfigKey}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return TrendingConfig{Key: trendingConfigKey}, nil
	}
	if err != nil {
		return TrendingConfig{}, fmt.Errorf("%w: get trending config: %s", apierr.ErrInternal, err)
	}
	return cfg, nil
}

// ResolveTrendingCards resolves the ids in the trending config into card
// records, preserving the configured order.
func (s *Store) ResolveTrendingCards(ctx context.Context) ([]CardRecord, []CardRecord, error) {
	cfg, err := s.GetTrendingConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	movies := make([]CardRecord, 0, len(cfg.Movie))
	for _, id := range cfg.Movie {
		rec, err := s.FindMovieByID(ctx, id)
		if err != nil {
			continue
		}
		movies = append(movies, CardRecord{ID: rec.MID, Title: rec.Title, Year: Year(rec.ReleaseDate), Poster: rec.Poster, VoteAverage: rec.VoteAverage, VoteCount: rec.VoteCount, MediaType: "movie"})
	}

	shows := make([]CardRecord, 0, len(cfg.Show))
	for _, id := range cfg.Show {
		rec, err := s.FindShowByID(ctx, id)
		if err != nil {
			continue
		}
		shows = append(shows, CardRecord{ID: rec.SID, Title: rec.Title, Year: Year(rec.ReleaseDate), Poster: rec.Poster, VoteAverage: rec.VoteAverage, VoteCount: rec.VoteCount, MediaType: "show"})
	}

	return movies, shows, nil
}

// ---------------------------------------------------------------------------
// Hero slider / latest
// ---------------------------------------------------------------------------

// FindNewest returns the n newest cards of the given media type by internal
// insertion order (descending _id), metadata-lite (used for both the hero
// slider and the latest listings).
func (s *Store) FindNewest(ctx context.Context, mediaType string, n int64) ([]CardRecord, error) {
	coll := s.movies
	if mediaType == "show" {
		coll = s.shows
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(n)
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find newest: %s", apierr.ErrInternal, err)
	}
	defer cur.Close(ctx)

	out := make([]CardRecord, 0, n)
	for cur.Next(ctx) {
		card, err := decodeCard(cur, mediaType)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// UpsertUser inserts or updates a user record keyed by user_id.
func (s *Store) UpsertUser(ctx context.Context, rec UserRecord) error {
	filter := bson.M{"user_id": rec.UserID}
	update := bson.M{"$set": rec}
	_, err := s.users.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: upsert user: %s", apierr.ErrInternal, err)
	}
	return nil
}

// FindUserByID returns the user with the given user_id, or ErrNotFound.
func (s *Store) FindUserByID(ctx context.Context, userID int64) (*UserRecord, error) {
	var rec UserRecord
	err := s.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: user %d", apierr.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find user: %s", apierr.ErrInternal, err)
	}
	return &rec, nil
}

// ResolveQuality looks up the QualityVariant a stream token's coordinates
// name: for a movie, the qualityIndex'th entry in its Qualities; for a show,
// the qualityIndex'th entry of the named season/episode. The caller is
// responsible for the actual hash-mismatch check (spec.md §3's invariant)
// once it has resolved a live FileLocator for the returned variant — this
// only resolves which stored variant the token is claiming.
func (s *Store) ResolveQuality(ctx context.Context, mediaType, id string, qualityIndex int, seasonNumber, episodeNumber *int) (*QualityVariant, error) {
	switch mediaType {
	case "movie":
		rec, err := s.FindMovieByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if qualityIndex < 0 || qualityIndex >= len(rec.Qualities) {
			return nil, fmt.Errorf("%w: quality index out of range", apierr.ErrNotFound)
		}
		q := rec.Qualities[qualityIndex]
		return &q, nil
	case "show":
		if seasonNumber == nil || episodeNumber == nil {
			return nil, fmt.Errorf("%w: season and episode are required for a show", apierr.ErrInvalidRequest)
		}
		rec, err := s.FindShowByID(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, sn := range rec.Seasons {
			if sn.SeasonNumber != *seasonNumber {
				continue
			}
			for _, ep := range sn.Episodes {
				if ep.EpisodeNumber != *episodeNumber {
					continue
				}
				if qualityIndex < 0 || qualityIndex >= len(ep.Qualities) {
					return nil, fmt.Errorf("%w: quality index out of range", apierr.ErrNotFound)
				}
				q := ep.Qualities[qualityIndex]
				return &q, nil
			}
		}
		return nil, fmt.Errorf("%w: season %d episode %d not found", apierr.ErrNotFound, *seasonNumber, *episodeNumber)
	default:
		return nil, fmt.Errorf("%w: unknown media type %q", apierr.ErrInvalidRequest, mediaType)
	}
}
