package ingest

import (
	"context"

	"github.com/reelnn/streamvault/internal/apierr"
	"github.com/reelnn/streamvault/internal/catalog"
	"github.com/reelnn/streamvault/internal/enrich"
	"github.com/reelnn/streamvault/internal/streamer"
)

// Notifier delivers user-facing feedback: an error reply to the chat that
// produced a rejected item, and an optional formatted poster card to the
// broadcast channel when POST_UPDATES is enabled.
type Notifier interface {
	NotifyError(ctx context.Context, chatID int64, messageID int, reason string) error
	NotifyPosted(ctx context.Context, title string, quality string, mediaType string) error
}

// MediaFetcher resolves and probes the media attached to an Item, producing
// the locator and the bytes needed for format/quality probing.
type MediaFetcher interface {
	ResolveLocator(ctx context.Context, chatID int64, messageID int) (streamer.FileLocator, streamer.FileProperties, error)
	FirstChunk(ctx context.Context, props streamer.FileProperties, budget int) ([]byte, error)
}

// Worker implements Handler, gluing together title parsing, enrichment,
// media probing, and the catalog store upsert described in spec.md §4.5.
type Worker struct {
	enrich       *enrich.Client
	store        *catalog.Store
	fetcher      MediaFetcher
	notifier     Notifier
	postUpdates  bool
	mergeQuality bool
	onUpsert     func()
}

// WorkerConfig supplies Worker's dependencies.
type WorkerConfig struct {
	Enrich              *enrich.Client
	Store               *catalog.Store
	Fetcher             MediaFetcher
	Notifier            Notifier
	PostUpdatesEnabled  bool
	MergeMovieQualities bool
	// OnUpsert is invoked after every successful store upsert, wiring into
	// the catalog cache's manual update_all_caches() trigger.
	OnUpsert func()
}

// NewWorker creates a Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		enrich:       cfg.Enrich,
		store:        cfg.Store,
		fetcher:      cfg.Fetcher,
		notifier:     cfg.Notifier,
		postUpdates:  cfg.PostUpdatesEnabled,
		mergeQuality: cfg.MergeMovieQualities,
		onUpsert:     cfg.OnUpsert,
	}
}

// Handle implements Handler. Every failure, from title parsing onward, is
// reported to the originating chat, marks the item Rejected, and is returned
// so the queue loop logs it. A FloodWait while resolving the file is
// returned without a report, so the queue loop re-enqueues the item.
func (w *Worker) Handle(ctx context.Context, item *Item) error {
	title := item.FileName
	if item.UseCaption && item.Caption != "" {
		title = item.Caption
	} else if title == "" {
		title = item.Caption
	}
	if title == "" {
		title = item.FileID
	}

	sanitized := SanitizeTitle(title)
	parsed, err := ParseTitle(sanitized)
	if err != nil {
		w.reject(ctx, item, err)
		return err
	}
	item.State = StateParsed

	locator, props, err := w.fetcher.ResolveLocator(ctx, item.ChatID, item.MessageID)
	if err != nil {
		if fw, ok := apierr.AsFloodWait(err); ok {
			return fw
		}
		w.reject(ctx, item, err)
		return err
	}

	query := enrich.Query{Title: parsed.Title, Year: parsed.Year, Season: parsed.Season, Episode: parsed.Episode}
	metadata, err := w.enrich.Lookup(ctx, query)
	if err != nil {
		w.reject(ctx, item, err)
		return err
	}
	item.State = StateEnriched

	chunk, err := w.fetcher.FirstChunk(ctx, props, 256*1024)
	if err != nil {
		w.reject(ctx, item, err)
		return err
	}
	probe, err := enrich.ProbeMedia(ctx, chunk)
	if err != nil {
		w.reject(ctx, item, err)
		return err
	}

	variant := catalog.QualityVariant{
		Type:       probe.Quality,
		Size:       props.Size,
		Audio:      probe.Audio,
		VideoCodec: probe.VideoCodec,
		FileType:   probe.FileType,
		Subtitle:   probe.Subtitle,
		FileHash:   fileHashPrefix(props),
		MsgID:      locator.MessageID,
		ChatID:     locator.ChatID,
	}

	mediaType := "movie"
	if parsed.Season > 0 {
		mediaType = "show"
	}

	if err := w.upsert(ctx, metadata, parsed, variant, mediaType); err != nil {
		w.reject(ctx, item, err)
		return err
	}
	item.State = StateStored

	if w.onUpsert != nil {
		w.onUpsert()
	}

	if w.postUpdates {
		if err := w.notifier.NotifyPosted(ctx, metadata.Title, variant.Type, mediaType); err != nil {
			// A failed broadcast post doesn't roll back the upsert.
			item.State = StateDone
			return nil
		}
		item.State = StatePosted
	}

	item.State = StateDone
	return nil
}

func (w *Worker) upsert(ctx context.Context, md enrich.Metadata, parsed ParsedTitle, variant catalog.QualityVariant, mediaType string) error {
	if mediaType == "movie" {
		rec := catalog.MovieRecord{
			MID:           md.ID,
			Title:         md.Title,
			OriginalTitle: md.OriginalTitle,
			ReleaseDate:   md.ReleaseDate,
			Overview:      md.Overview,
			Poster:        md.Poster,
			Backdrop:      md.Backdrop,
			Runtime:       md.Runtime,
			Popularity:    md.Popularity,
			VoteAverage:   md.VoteAverage,
			VoteCount:     md.VoteCount,
			Genres:        md.Genres,
			Cast:          md.Cast,
			Directors:     md.Directors,
			Studios:       md.Studios,
			Logo:          md.Logo,
			Trailer:       md.Trailer,
			Qualities:     []catalog.QualityVariant{variant},
		}
		if md.IMDbLink != "" {
			rec.Links = []string{md.IMDbLink}
		}
		return w.store.UpsertMovie(ctx, rec, w.mergeQuality)
	}

	variant.Runtime = md.Runtime
	episode := catalog.Episode{
		EpisodeNumber: parsed.Episode,
		Name:          md.EpisodeName,
		Overview:      md.EpisodeOverview,
		StillPath:     md.EpisodeStillPath,
		AirDate:       md.EpisodeAirDate,
		Qualities:     []catalog.QualityVariant{variant},
	}
	rec := catalog.ShowRecord{
		SID:           md.ID,
		Title:         md.Title,
		OriginalTitle: md.OriginalTitle,
		ReleaseDate:   md.ReleaseDate,
		Overview:      md.Overview,
		Poster:        md.Poster,
		Backdrop:      md.Backdrop,
		Popularity:    md.Popularity,
		VoteAverage:   md.VoteAverage,
		VoteCount:     md.VoteCount,
		Genres:        md.Genres,
		Cast:          md.Cast,
		Studios:       md.Studios,
		Logo:          md.Logo,
		Trailer:       md.Trailer,
		Seasons:       []catalog.Season{{SeasonNumber: parsed.Season, Episodes: []catalog.Episode{episode}}},
	}
	if md.IMDbLink != "" {
		rec.Links = []string{md.IMDbLink}
	}
	return w.store.UpsertShow(ctx, rec)
}

func (w *Worker) reject(ctx context.Context, item *Item, err error) {
	item.State = StateRejected
	item.Err = err
	if w.notifier != nil {
		_ = w.notifier.NotifyError(ctx, item.ChatID, item.MessageID, err.Error())
	}
}

// fileHashPrefix derives the 6-character file_hash from the resolved file's
// upstream unique_id, matching the spec's "prefix of the upstream unique id"
// rule (spec.md §3) — the same identifier the streaming path later
// re-resolves and compares against.
func fileHashPrefix(props streamer.FileProperties) string {
	id := props.UniqueID
	if len(id) >= 6 {
		return id[:6]
	}
	for len(id) < 6 {
		id += "0"
	}
	return id
}
