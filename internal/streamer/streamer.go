// Package streamer implements the byte streamer (C2) and the in-memory file
// properties cache (C3): given a FileLocator it resolves the remote file's
// size and content-type, then yields it chunk by chunk over an HTTP Range
// window using a client picked from the worker pool.
package streamer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gotd/td/tg"

	"github.com/reelnn/streamvault/internal/apierr"
	"github.com/reelnn/streamvault/internal/workerpool"
)

// defaultChunkSize is the spec's 1MiB cap; the effective chunk size is
// min(defaultChunkSize, fileSize/10) so small files still get several
// progress updates instead of one giant read.
const defaultChunkSize = 1024 * 1024

// propsCacheTTL bounds how long a resolved FileProperties entry is trusted
// before a fresh lookup is forced.
const propsCacheTTL = 30 * time.Minute

// FileLocator identifies exactly which Telegram message/chat holds the file
// to stream. It is the payload that a verified stream token resolves to.
type FileLocator struct {
	ChatID     int64
	MessageID  int
	AccessHash int64
}

// LocatorKind is which upstream InputXFileLocation shape a resolved file
// needs, per spec.md §3's FileLocator.kind. Only photo and document are ever
// produced by get_file_properties(chat_id, message_id): chat-photo addresses
// a peer's profile photo directly and isn't reachable from a message lookup,
// so no code path here constructs it.
type LocatorKind string

const (
	KindDocument  LocatorKind = "document"
	KindPhoto     LocatorKind = "photo"
	KindChatPhoto LocatorKind = "chat-photo"
)

// FileProperties is what get_file_properties resolves: everything the HTTP
// layer needs to build headers and compute ranges, without re-fetching the
// message on every byte request. UniqueID is the upstream identifier whose
// first 6 characters every ingested QualityVariant.FileHash must prefix-match
// (spec.md §3's data-model invariant).
type FileProperties struct {
	Size       int64
	MimeType   string
	FileName   string
	Kind       LocatorKind
	UniqueID   string
	InputLoc   tg.InputFileLocationClass
	DCID       int
}

type cacheEntry struct {
	props   FileProperties
	expires time.Time
}

// PropsCache memoizes FileProperties by (chatID, messageID) so repeated
// Range requests for the same file (the common case: a browser issuing many
// small range requests while scrubbing) don't re-resolve the message.
type PropsCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newPropsCache() *PropsCache {
	return &PropsCache{entries: make(map[string]cacheEntry)}
}

func cacheKey(loc FileLocator) string {
	return fmt.Sprintf("%d:%d", loc.ChatID, loc.MessageID)
}

func (c *PropsCache) get(loc FileLocator) (FileProperties, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(loc)]
	if !ok || time.Now().After(e.expires) {
		return FileProperties{}, false
	}
	return e.props, true
}

func (c *PropsCache) set(loc FileLocator, props FileProperties) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(loc)] = cacheEntry{props: props, expires: time.Now().Add(propsCacheTTL)}
}

// Clean drops every expired entry. It's invoked on a 30-minute ticker from
// Streamer.RunCacheCleaner, mirroring the periodic-cleanup pattern the
// teacher uses for its playlist scheduler.
func (c *PropsCache) Clean() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Streamer resolves file metadata and streams byte ranges using clients
// picked from the worker pool.
type Streamer struct {
	pool  *workerpool.Pool
	cache *PropsCache
}

// New creates a Streamer backed by the given pool.
func New(pool *workerpool.Pool) *Streamer {
	return &Streamer{pool: pool, cache: newPropsCache()}
}

// RunCacheCleaner blocks, cleaning the properties cache every 30 minutes,
// until ctx is cancelled.
func (s *Streamer) RunCacheCleaner(ctx context.Context) {
	ticker := time.NewTicker(propsCacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.cache.Clean()
			if n > 0 {
				slog.Debug("file properties cache swept", "entries_removed", n)
			}
		}
	}
}

// GetFileProperties resolves size/mime/input-location for loc, consulting
// the cache first. The message lookup (the remote RPC call) is attempted up
// to 6 times with an exponential backoff starting at 250ms and capped at 5s.
func (s *Streamer) GetFileProperties(ctx context.Context, loc FileLocator) (FileProperties, error) {
	if props, ok := s.cache.get(loc); ok {
		return props, nil
	}

	slot := s.pool.Pick()
	defer slot.Release()

	var props FileProperties
	err := retry.Do(
		func() error {
			resolved, err := resolveMessage(ctx, slot, loc)
			if err != nil {
				return err
			}
			props = resolved
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(6),
		retry.Delay(250*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return FileProperties{}, fmt.Errorf("%w: resolve file: %s", apierr.ErrUpstreamUnavailable, err)
	}

	s.cache.set(loc, props)
	return props, nil
}

// resolveMessage fetches the message and extracts the media's size, mime
// type, file name, and input location. It handles both media kinds a channel
// post can carry: a document (the common case, video/audio files) or a bare
// photo, mirroring get_location's kind switch in the reference implementation.
func resolveMessage(ctx context.Context, slot *workerpool.Slot, loc FileLocator) (FileProperties, error) {
	api := slot.Client.API()

	msgs, err := api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{ChannelID: loc.ChatID, AccessHash: loc.AccessHash},
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: loc.MessageID}},
	})
	if err != nil {
		return FileProperties{}, err
	}

	msgSlice, ok := msgs.(*tg.MessagesChannelMessages)
	if !ok || len(msgSlice.Messages) == 0 {
		return FileProperties{}, fmt.Errorf("%w: message %d not found", apierr.ErrNotFound, loc.MessageID)
	}

	message, ok := msgSlice.Messages[0].(*tg.Message)
	if !ok || message.Media == nil {
		return FileProperties{}, fmt.Errorf("%w: message %d has no media", apierr.ErrNotFound, loc.MessageID)
	}

	switch media := message.Media.(type) {
	case *tg.MessageMediaDocument:
		return documentProperties(media)
	case *tg.MessageMediaPhoto:
		return photoProperties(media)
	default:
		return FileProperties{}, fmt.Errorf("%w: message %d media kind %T is not streamable", apierr.ErrNotFound, loc.MessageID, media)
	}
}

func documentProperties(media *tg.MessageMediaDocument) (FileProperties, error) {
	tgDoc, ok := media.Document.(*tg.Document)
	if !ok {
		return FileProperties{}, fmt.Errorf("%w: document payload missing", apierr.ErrNotFound)
	}

	fileName := ""
	for _, attr := range tgDoc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			fileName = fn.FileName
		}
	}

	return FileProperties{
		Size:     tgDoc.Size,
		MimeType: tgDoc.MimeType,
		FileName: fileName,
		Kind:     KindDocument,
		UniqueID: uniqueID(KindDocument, tgDoc.ID),
		DCID:     tgDoc.DCID,
		InputLoc: &tg.InputDocumentFileLocation{
			ID:            tgDoc.ID,
			AccessHash:    tgDoc.AccessHash,
			FileReference: tgDoc.FileReference,
		},
	}, nil
}

func photoProperties(media *tg.MessageMediaPhoto) (FileProperties, error) {
	tgPhoto, ok := media.Photo.(*tg.Photo)
	if !ok {
		return FileProperties{}, fmt.Errorf("%w: photo payload missing", apierr.ErrNotFound)
	}

	return FileProperties{
		Size:     largestPhotoSize(tgPhoto.Sizes),
		MimeType: "image/jpeg",
		Kind:     KindPhoto,
		UniqueID: uniqueID(KindPhoto, tgPhoto.ID),
		DCID:     tgPhoto.DCID,
		InputLoc: &tg.InputPhotoFileLocation{
			ID:            tgPhoto.ID,
			AccessHash:    tgPhoto.AccessHash,
			FileReference: tgPhoto.FileReference,
		},
	}, nil
}

// largestPhotoSize picks the byte size of the largest available rendition,
// since Telegram returns several thumbnails per photo.
func largestPhotoSize(sizes []tg.PhotoSizeClass) int64 {
	var best int64
	for _, sz := range sizes {
		if ps, ok := sz.(*tg.PhotoSize); ok && int64(ps.Size) > best {
			best = int64(ps.Size)
		}
	}
	return best
}

// uniqueID derives the stable upstream identifier a QualityVariant's
// file_hash is a 6-character prefix of. Telegram's document/photo id is
// itself a globally unique, immutable identifier for the underlying file, so
// it is a faithful stand-in for the reference client's opaque unique_id.
func uniqueID(kind LocatorKind, mediaID int64) string {
	return fmt.Sprintf("%s%016x", string(kind[0]), uint64(mediaID))
}

// ChunkSize returns the effective chunk size for a file of the given size:
// the spec's 1MiB cap, or size/10 for files smaller than ~10MiB.
func ChunkSize(fileSize int64) int64 {
	c := int64(defaultChunkSize)
	if fileSize/10 < c {
		c = fileSize / 10
	}
	if c < 1 {
		c = fileSize
	}
	return c
}

// Yield streams [start, end] (inclusive) of the file identified by props to
// w, in ChunkSize(props.Size)-sized parts. Each part fetch is retried up to
// 3 times with exponential backoff (1s, 2s, 4s) before giving up. Per spec.md §4.2's
// session protocol, bytes are fetched through the MediaSession authenticated
// for props.DCID, which may require bootstrapping a session distinct from
// the picked slot's home connection.
func (s *Streamer) Yield(ctx context.Context, props FileProperties, start, end int64, w io.Writer) error {
	slot := s.pool.Pick()
	defer slot.Release()

	api, err := slot.MediaAPI(ctx, props.DCID)
	if err != nil {
		return err
	}
	chunkSize := ChunkSize(props.Size)

	offset := start - (start % chunkSize)
	firstCut := start - offset
	lastCut := (end % chunkSize) + 1
	partCount := int((end-offset)/chunkSize) + 1

	currentOffset := offset
	for part := 0; part < partCount; part++ {
		var buf []byte
		err := retry.Do(
			func() error {
				b, err := fetchChunk(ctx, api, props.InputLoc, currentOffset, int(chunkSize))
				if err != nil {
					return err
				}
				buf = b
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(4),
			retry.Delay(time.Second),
			retry.MaxDelay(4*time.Second),
			retry.DelayType(retry.BackOffDelay),
		)
		if err != nil {
			return fmt.Errorf("%w: fetch chunk at offset %d: %s", apierr.ErrUpstreamUnavailable, currentOffset, err)
		}

		if part == 0 && partCount == 1 {
			buf = buf[firstCut:lastCut]
		} else if part == 0 {
			buf = buf[firstCut:]
		} else if part == partCount-1 {
			if int64(len(buf)) > lastCut {
				buf = buf[:lastCut]
			}
		}

		if _, err := w.Write(buf); err != nil {
			return err
		}
		currentOffset += chunkSize
	}

	return nil
}

func fetchChunk(ctx context.Context, api *tg.Client, loc tg.InputFileLocationClass, offset int64, limit int) ([]byte, error) {
	res, err := api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
		Location: loc,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	file, ok := res.(*tg.UploadFile)
	if !ok {
		return nil, fmt.Errorf("unexpected upload response type %T", res)
	}
	return file.Bytes, nil
}
