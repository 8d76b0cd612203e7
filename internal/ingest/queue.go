// Package ingest implements the ingestion queue and worker (C6): the single
// FIFO that turns inbound media messages into catalog entries, plus the
// administrative batch seeder that backfills a channel's message history
// into the same queue.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelnn/streamvault/internal/apierr"
)

// State is one node of the ingestion item state machine from spec.md §4.8.
type State string

const (
	StateReceived  State = "received"
	StateParsed    State = "parsed"
	StateEnriched  State = "enriched"
	StateStored    State = "stored"
	StatePosted    State = "posted"
	StateDone      State = "done"
	StateRejected  State = "rejected"
	StateFloodWait State = "flood_wait"
)

// Item is one inbound media message moving through the queue.
type Item struct {
	ChatID     int64
	MessageID  int
	Caption    string
	FileName   string
	FileID     string
	UseCaption bool

	State State
	Err   error
}

// titleStripPatterns is the fixed, ordered regex set used to strip a
// username/promo prefix from a raw title before parsing it into
// {title, year, season, episode}. Per the source behavior this ports, the
// first pattern that matches wins and the rest are skipped entirely —
// preserving that exact ordering avoids observable changes in derived
// titles, so this must never become an apply-all-in-sequence loop.
var titleStripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*@\w+[\s:|-]*`),
	regexp.MustCompile(`(?i)\[\s*@?\w+\.\w+\s*\]`),
	regexp.MustCompile(`(?i)www\.\S+\.\w+\s*[-:]?\s*`),
	regexp.MustCompile(`(?i)\btelegram\b\s*[-:]?\s*`),
}

// trimPattern removes leftover separator/whitespace residue at either end,
// applied after title stripping regardless of which (if any) strip pattern
// matched.
var trimPattern = regexp.MustCompile(`^\s*[-_.\s]+|[-_.\s]+$`)

// SanitizeTitle applies the first matching entry of titleStripPatterns, then
// trims separator residue.
func SanitizeTitle(raw string) string {
	out := raw
	for _, re := range titleStripPatterns {
		if re.MatchString(out) {
			out = re.ReplaceAllString(out, "")
			break
		}
	}
	return trimPattern.ReplaceAllString(out, "")
}

// ParsedTitle is the result of routing a sanitized title into its media
// coordinates.
type ParsedTitle struct {
	Title   string
	Year    int
	Season  int
	Episode int
}

var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)\bS(\d{1,2})E(\d{1,3})\b`)
	seasonOnlyRe    = regexp.MustCompile(`(?i)\bS(\d{1,2})\b`)
	yearRe          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// ParseTitle extracts {title, year?, season?, episode?} from a sanitized
// title string. No season present routes to a movie; a season with no
// episode is an error (ambiguous); both present routes to an episode.
func ParseTitle(sanitized string) (ParsedTitle, error) {
	var p ParsedTitle

	if m := seasonEpisodeRe.FindStringSubmatch(sanitized); m != nil {
		p.Season = atoiSafe(m[1])
		p.Episode = atoiSafe(m[2])
		p.Title = sanitized[:seasonEpisodeRe.FindStringIndex(sanitized)[0]]
	} else if m := seasonOnlyRe.FindStringSubmatch(sanitized); m != nil {
		return ParsedTitle{}, fmt.Errorf("%w: season %s present without an episode number", apierr.ErrValidation, m[1])
	} else {
		p.Title = sanitized
	}

	if m := yearRe.FindString(sanitized); m != "" {
		p.Year = atoiSafe(m)
	}

	p.Title = trimPattern.ReplaceAllString(p.Title, "")
	return p, nil
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Handler processes a single dequeued Item. Implemented by the service that
// wires together enrichment, media probing, and the catalog store; kept as
// an interface here so the queue has no dependency on those packages.
type Handler interface {
	Handle(ctx context.Context, item *Item) error
}

// Queue is the single in-memory FIFO shared by real-time ingestion and the
// batch seeder. Exactly one consumer goroutine drains it; it is spawned
// lazily on the first Enqueue and respawned if it ever exits.
type Queue struct {
	mu      sync.Mutex
	items   []*Item
	notify  chan struct{}
	pending atomic.Int64

	started atomic.Bool
	handler Handler

	joinMu sync.Mutex
	joinCh chan struct{}
}

// New creates a Queue bound to the given Handler.
func New(handler Handler) *Queue {
	return &Queue{
		notify:  make(chan struct{}, 1),
		handler: handler,
	}
}

// Enqueue appends item to the tail and ensures a consumer is running.
func (q *Queue) Enqueue(ctx context.Context, item *Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.pending.Add(1)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	if q.started.CompareAndSwap(false, true) {
		go q.run(ctx)
	}
}

func (q *Queue) dequeue() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// run is the single consumer loop. It always calls taskDone exactly once
// per dequeued item, including on FloodWait re-enqueue (the re-enqueued
// item is a distinct queue entry with its own taskDone).
func (q *Queue) run(ctx context.Context) {
	defer q.started.Store(false)
	for {
		item := q.dequeue()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		item.State = StateReceived
		err := q.handler.Handle(ctx, item)
		if fw, ok := apierr.AsFloodWait(err); ok {
			item.State = StateFloodWait
			q.taskDone()
			go func() {
				time.Sleep(time.Duration(fw.Seconds) * time.Second)
				item.State = StateReceived
				q.Enqueue(ctx, item)
			}()
			continue
		}
		if err != nil {
			item.State = StateRejected
			item.Err = err
			slog.Warn("ingestion item rejected", "chat_id", item.ChatID, "message_id", item.MessageID, "error", err)
		} else {
			item.State = StateDone
		}
		q.taskDone()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (q *Queue) taskDone() {
	if q.pending.Add(-1) == 0 {
		q.joinMu.Lock()
		if q.joinCh != nil {
			close(q.joinCh)
			q.joinCh = nil
		}
		q.joinMu.Unlock()
	}
}

// Join blocks until every enqueued item has been processed (pending count
// reaches zero), or ctx is cancelled. Used during graceful shutdown to drain
// in-flight work before the process exits.
func (q *Queue) Join(ctx context.Context) error {
	if q.pending.Load() == 0 {
		return nil
	}

	q.joinMu.Lock()
	// Re-check under joinMu: taskDone takes joinMu after the count reaches
	// zero, so a drain that finished before this point is seen here.
	if q.pending.Load() == 0 {
		q.joinMu.Unlock()
		return nil
	}
	if q.joinCh == nil {
		q.joinCh = make(chan struct{})
	}
	ch := q.joinCh
	q.joinMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many items are enqueued or in flight.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// MessageRef identifies one message in a chat, used by the batch seeder.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// MessageEnumerator lists messages in a chat between two message ids,
// inclusive, in ascending order. Implemented by the Telegram client wrapper.
type MessageEnumerator interface {
	EnumerateMessages(ctx context.Context, chatID int64, fromID, toID int) ([]MessageRef, error)
	LoadItem(ctx context.Context, ref MessageRef, useCaption bool) (*Item, error)
}

// Seeder backfills a channel's message range into the ingestion queue,
// pacing itself between enqueued messages so it never looks like a burst
// to the upstream rate limiter.
type Seeder struct {
	queue *Queue
	enum  MessageEnumerator
}

// NewSeeder creates a Seeder.
func NewSeeder(queue *Queue, enum MessageEnumerator) *Seeder {
	return &Seeder{queue: queue, enum: enum}
}

// Run enumerates [fromID, toID] (swapped if given in reverse) and enqueues
// every matched message, sleeping 30-60s (randomized) after each enqueued
// message. A FloodWait from the enumeration is honored by sleeping its
// duration and enumerating again.
func (s *Seeder) Run(ctx context.Context, chatID int64, fromID, toID int, useCaption bool) error {
	if fromID > toID {
		fromID, toID = toID, fromID
	}

	refs, err := s.enum.EnumerateMessages(ctx, chatID, fromID, toID)
	if err != nil {
		if fw, ok := apierr.AsFloodWait(err); ok {
			select {
			case <-time.After(time.Duration(fw.Seconds) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			return s.Run(ctx, chatID, fromID, toID, useCaption)
		}
		return err
	}

	for _, ref := range refs {
		item, err := s.enum.LoadItem(ctx, ref, useCaption)
		if err != nil {
			slog.Warn("seeder failed to load message", "chat_id", ref.ChatID, "message_id", ref.MessageID, "error", err)
			continue
		}
		s.queue.Enqueue(ctx, item)

		sleep := time.Duration(30+rand.IntN(31)) * time.Second
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
