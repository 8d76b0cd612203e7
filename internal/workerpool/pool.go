// Package workerpool implements the Telegram client pool (C1): one primary
// client plus zero or more auxiliary clients, load-balanced by picking the
// slot with the fewest in-flight requests at the moment of the request.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"golang.org/x/sync/errgroup"

	"github.com/reelnn/streamvault/internal/apierr"
)

// mediaSessionRetries is the spec's bound on the export/import-authorization
// handshake: AuthBytesInvalid is retriable, everything else is fatal.
const mediaSessionRetries = 6

// Slot wraps one connected Telegram client and tracks how many streaming
// requests are currently being served by it. It also owns the per-dc_id
// MediaSession cache described in spec.md §4.2: a file whose dc_id differs
// from the slot's home data center needs its own authenticated session,
// bootstrapped once and reused for every later byte fetch against that dc.
type Slot struct {
	ID       int
	Client   *telegram.Client
	inFlight atomic.Int64

	apiID       int
	apiHash     string
	sessionPath string
	homeDC      int

	mediaMu       sync.Mutex
	mediaSessions map[int]*tg.Client
}

// Acquire increments the slot's in-flight counter. Callers must call Release
// exactly once for every successful Acquire.
func (s *Slot) Acquire() {
	s.inFlight.Add(1)
}

// Release decrements the slot's in-flight counter.
func (s *Slot) Release() {
	s.inFlight.Add(-1)
}

func (s *Slot) load() int64 {
	return s.inFlight.Load()
}

// Pool holds every connected client. Slot 0 is always the primary; the rest
// are auxiliaries used purely to spread streaming load.
type Pool struct {
	mu    sync.Mutex
	slots []*Slot
}

// Config supplies the credentials needed to connect the primary and any
// auxiliary clients.
type Config struct {
	APIID   int
	APIHash string

	// PrimarySessionPath is the session file backing the primary client,
	// the only one authorized to post new uploads to the media channel.
	PrimarySessionPath string

	// AuxSessionPaths are extra pre-authorized session files used only to
	// fan out read-only streaming load.
	AuxSessionPaths []string
}

// Connect dials the primary client and every auxiliary client concurrently,
// returning a Pool ready to serve. An auxiliary that fails to connect is
// logged and skipped rather than failing the whole startup; the primary
// failing to connect is fatal.
func Connect(ctx context.Context, cfg Config) (*Pool, error) {
	primary, homeDC, err := dial(ctx, cfg.APIID, cfg.APIHash, cfg.PrimarySessionPath, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: primary client: %s", apierr.ErrUpstreamUnavailable, err)
	}

	p := &Pool{
		slots: []*Slot{newSlot(0, primary, cfg.APIID, cfg.APIHash, cfg.PrimarySessionPath, homeDC)},
	}

	if len(cfg.AuxSessionPaths) == 0 {
		return p, nil
	}

	type auxResult struct {
		id     int
		client *telegram.Client
		homeDC int
	}
	results := make([]auxResult, len(cfg.AuxSessionPaths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range cfg.AuxSessionPaths {
		i, path := i, path
		g.Go(func() error {
			client, dc, err := dial(gctx, cfg.APIID, cfg.APIHash, path, 0)
			if err != nil {
				// An auxiliary that can't connect is non-fatal: the pool
				// keeps going with one fewer slot.
				slog.Warn("auxiliary client failed to connect, slot omitted", "slot", i+1, "error", err)
				return nil
			}
			results[i] = auxResult{id: i + 1, client: client, homeDC: dc}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		if r.client != nil {
			p.slots = append(p.slots, newSlot(r.id, r.client, cfg.APIID, cfg.APIHash, cfg.AuxSessionPaths[i], r.homeDC))
		}
	}

	return p, nil
}

func newSlot(id int, client *telegram.Client, apiID int, apiHash, sessionPath string, homeDC int) *Slot {
	return &Slot{
		ID:          id,
		Client:      client,
		apiID:       apiID,
		apiHash:     apiHash,
		sessionPath: sessionPath,
		homeDC:      homeDC,
	}
}

// dial connects a client, optionally pinned to dcID (0 means the session's
// own default), and reports the data center it actually landed on.
func dial(ctx context.Context, apiID int, apiHash, sessionPath string, dcID int) (*telegram.Client, int, error) {
	opts := telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: sessionPath},
	}
	if dcID != 0 {
		opts.DC = dcID
	}
	client := telegram.NewClient(apiID, apiHash, opts)

	ready := make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		// Leave the background goroutine running with the client connected;
		// the caller owns runCtx's lifetime through the Pool's lifetime.
		_ = cancel
		home, err := resolveHomeDC(ctx, client)
		if err != nil {
			home = dcID
		}
		return client, home, nil
	case err := <-errCh:
		cancel()
		return nil, 0, err
	case <-ctx.Done():
		cancel()
		return nil, 0, ctx.Err()
	}
}

// resolveHomeDC asks the upstream which data center authenticated this
// connection, so MediaAPI knows when a file's dc_id requires bootstrapping a
// separate session instead of reusing the client's own auth key.
func resolveHomeDC(ctx context.Context, client *telegram.Client) (int, error) {
	cfg, err := client.API().HelpGetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.ThisDC, nil
}

// MediaAPI returns an invoker authenticated against dcID, per spec.md §4.2's
// session protocol: the slot's own connection is reused when dcID matches its
// home data center; otherwise a dedicated client is dialed against dcID and
// bootstrapped by exporting authorization from the home connection and
// importing it into the new one. AuthBytesInvalid is retried up to
// mediaSessionRetries times; any other import error is fatal. The resulting
// session is cached on the slot, indexed by dc_id, for reuse by later fetches.
func (s *Slot) MediaAPI(ctx context.Context, dcID int) (*tg.Client, error) {
	if dcID == 0 || dcID == s.homeDC {
		return s.Client.API(), nil
	}

	s.mediaMu.Lock()
	defer s.mediaMu.Unlock()

	if api, ok := s.mediaSessions[dcID]; ok {
		return api, nil
	}

	mediaClient, _, err := dial(ctx, s.apiID, s.apiHash, mediaSessionPath(s.sessionPath, dcID), dcID)
	if err != nil {
		return nil, fmt.Errorf("%w: media session dc %d: %s", apierr.ErrUpstreamUnavailable, dcID, err)
	}
	mediaAPI := mediaClient.API()

	var lastErr error
	imported := false
	for attempt := 0; attempt < mediaSessionRetries; attempt++ {
		exported, err := s.Client.API().AuthExportAuthorization(ctx, &tg.AuthExportAuthorizationRequest{DCID: dcID})
		if err != nil {
			return nil, fmt.Errorf("%w: export authorization for dc %d: %s", apierr.ErrUpstreamUnavailable, dcID, err)
		}
		_, err = mediaAPI.AuthImportAuthorization(ctx, &tg.AuthImportAuthorizationRequest{
			ID:    exported.ID,
			Bytes: exported.Bytes,
		})
		if err == nil {
			imported = true
			break
		}
		if !tgerr.Is(err, "AUTH_BYTES_INVALID") {
			return nil, fmt.Errorf("%w: import authorization for dc %d: %s", apierr.ErrUpstreamUnavailable, dcID, err)
		}
		lastErr = err
	}
	if !imported {
		return nil, fmt.Errorf("%w: import authorization for dc %d exhausted retries: %s", apierr.ErrUpstreamUnavailable, dcID, lastErr)
	}

	if s.mediaSessions == nil {
		s.mediaSessions = make(map[int]*tg.Client)
	}
	s.mediaSessions[dcID] = mediaAPI
	return mediaAPI, nil
}

// mediaSessionPath derives a distinct session file per dc_id so a slot's
// media sessions don't clash with its primary session or each other.
func mediaSessionPath(base string, dcID int) string {
	return fmt.Sprintf("%s.media.dc%d", base, dcID)
}

// Pick selects the least-loaded slot and acquires it atomically so two
// concurrent callers never both believe they picked the emptiest slot and
// then collide. The caller must call Release on the returned Slot when done.
func (p *Pool) Pick() *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := p.slots[0]
	for _, s := range p.slots[1:] {
		if s.load() < best.load() {
			best = s
		}
	}
	best.Acquire()
	return best
}

// Primary returns the primary client slot, the only one permitted to post
// uploads and notifications.
func (p *Pool) Primary() *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[0]
}

// Size returns how many clients are currently in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Close does nothing itself: every client's background connection runs under
// the context passed to Connect and stops when the caller cancels it (main
// cancels it on SIGINT/SIGTERM), so Close exists mainly as an explicit, named
// shutdown step in main.
func (p *Pool) Close() {}
