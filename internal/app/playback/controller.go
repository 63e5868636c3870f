package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"gapless/internal/app/prefetch"
	"gapless/internal/domain/track"
)

// Errors
var (
	ErrNoTrack    = errors.New("no track playing")
	ErrQueueEmpty = errors.New("queue is empty")
	ErrNotPlaying = errors.New("not playing")
	ErrNotPaused  = errors.New("not paused")
	ErrClosed     = errors.New("controller closed")
)

// Enricher resolves a stub into a playable track.
type Enricher interface {
	Enrich(ctx context.Context, stub track.Stub) (*track.Enriched, error)
}

// Prefetcher is the single-slot background preparation the controller
// draws from before resorting to synchronous enrichment.
type Prefetcher interface {
	Schedule(stub track.Stub)
	Status(index int) prefetch.Status
	Consume(index int) (*track.Enriched, error)
	Done(index int) <-chan struct{}
	CancelSlot()
}

// Config holds controller configuration.
type Config struct {
	// GraceWait bounds how long the controller waits on a still-running
	// prefetch before cancelling it and enriching synchronously.
	GraceWait time.Duration
	// MaxConsecutiveFailures is the run of unplayable tracks that stops
	// playback with a degraded-queue event.
	MaxConsecutiveFailures int
}

// Controller plays a stub queue through a sink in strict order. A single
// driver goroutine owns all loading, so at most one enrichment (prefetch
// aside) is ever in flight.
type Controller struct {
	mu sync.RWMutex

	cfg      Config
	sink     Sink
	enricher Enricher
	prefetch Prefetcher

	// Queue state
	stubs        []track.Stub
	currentIndex int
	current      *track.Enriched
	state        State

	// loadCtx covers one queue generation; Stop and Start cancel it so
	// in-flight synchronous enrichment unwinds promptly.
	loadCtx    context.Context
	loadCancel context.CancelFunc

	eventCh chan Event
	loadCh  chan int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a playback controller and starts its driver.
func NewController(cfg Config, sink Sink, enricher Enricher, prefetch Prefetcher) *Controller {
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		sink:     sink,
		enricher: enricher,
		prefetch: prefetch,
		state:    StateIdle,
		eventCh:  make(chan Event, 10),
		loadCh:   make(chan int, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.loadCtx, c.loadCancel = context.WithCancel(ctx)

	go c.run()

	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Start replaces the queue wholesale and begins playback from the first
// track. Any current track and armed prefetch are discarded.
func (c *Controller) Start(stubs []track.Stub) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	c.mu.Lock()
	c.loadCancel()
	c.loadCtx, c.loadCancel = context.WithCancel(c.ctx)
	cur := c.current
	c.current = nil
	c.stubs = stubs
	c.currentIndex = 0
	c.state = StateLoading
	c.mu.Unlock()

	c.prefetch.CancelSlot()
	_ = c.sink.Stop()
	if cur != nil {
		cur.Stream.Close()
	}

	if len(stubs) == 0 {
		c.setState(StateIdle)
		c.sendEvent(Event{Type: EventQueueEmpty, State: StateIdle})
		return ErrQueueEmpty
	}

	zlog.Info().Msgf("playback: starting queue with %d tracks", len(stubs))
	c.requestLoad(0)
	return nil
}

// Pause pauses the current playback. The prefetch delay timer keeps
// running; pausing postpones consumption, not preparation.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	if c.state != StatePlaying {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	c.state = StatePaused
	stub := c.current.Stub
	c.mu.Unlock()

	if err := c.sink.Pause(); err != nil {
		return errors.Wrap(err, "sink pause failed")
	}
	c.sendEvent(Event{Type: EventStateChanged, Stub: &stub, State: StatePaused})
	return nil
}

// Resume resumes paused playback.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	if c.state != StatePaused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	c.state = StatePlaying
	stub := c.current.Stub
	c.mu.Unlock()

	if err := c.sink.Resume(); err != nil {
		return errors.Wrap(err, "sink resume failed")
	}
	c.sendEvent(Event{Type: EventStateChanged, Stub: &stub, State: StatePlaying})
	return nil
}

// Skip abandons the current track and advances to the next one. A
// prefetch already armed for the next track stays valid and is picked
// up as usual.
func (c *Controller) Skip() error {
	c.mu.Lock()
	if c.current == nil || (c.state != StatePlaying && c.state != StatePaused) {
		c.mu.Unlock()
		return ErrNoTrack
	}
	cur := c.current
	c.current = nil
	next := c.currentIndex + 1
	c.state = StateLoading
	c.mu.Unlock()

	_ = c.sink.Stop()
	cur.Stream.Close()

	stub := cur.Stub
	c.sendEvent(Event{Type: EventTrackSkipped, Stub: &stub, State: StateLoading})
	c.requestLoad(next)
	return nil
}

// Stop stops playback and releases the current stream and any armed
// prefetch. After Stop returns no further enrichment work starts.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.loadCancel()
	cur := c.current
	c.current = nil
	c.state = StateStopped
	c.mu.Unlock()

	c.prefetch.CancelSlot()
	_ = c.sink.Stop()
	if cur != nil {
		cur.Stream.Close()
	}

	c.sendEvent(Event{Type: EventStateChanged, State: StateStopped})
	return nil
}

// GetState returns the current playback state.
func (c *Controller) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// GetCurrentTrack returns the stub of the currently playing track.
func (c *Controller) GetCurrentTrack() (track.Stub, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return track.Stub{}, false
	}
	return c.current.Stub, true
}

// GetCurrentIndex returns the queue index of the current track.
func (c *Controller) GetCurrentIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentIndex
}

// GetQueueSize returns the total number of tracks in the queue.
func (c *Controller) GetQueueSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stubs)
}

// Close stops playback and releases the controller.
func (c *Controller) Close() {
	_ = c.Stop()
	c.cancel()
}

// run is the driver loop. It alone loads and plays tracks; commands and
// sink events only enqueue work for it.
func (c *Controller) run() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case idx := <-c.loadCh:
			c.advance(idx)
		case ev := <-c.sink.Events():
			c.handleSinkEvent(ev)
		}
	}
}

func (c *Controller) handleSinkEvent(ev SinkEvent) {
	if ev.Type == SinkErrored {
		zlog.Warn().Err(ev.Err).Msg("playback: sink reported an error, advancing")
	}

	c.mu.Lock()
	if c.current == nil || (c.state != StatePlaying && c.state != StatePaused) {
		c.mu.Unlock()
		return
	}
	cur := c.current
	c.current = nil
	next := c.currentIndex + 1
	c.state = StateLoading
	c.mu.Unlock()

	cur.Stream.Close()
	c.advance(next)
}

// advance loads and plays the track at start, skipping over unplayable
// tracks until one plays, the queue ends, or too many fail in a row.
func (c *Controller) advance(start int) {
	failures := 0

	for i := start; ; i++ {
		c.mu.RLock()
		state := c.state
		stubs := c.stubs
		loadCtx := c.loadCtx
		c.mu.RUnlock()

		if state == StateStopped || loadCtx.Err() != nil {
			return
		}

		if i >= len(stubs) {
			c.prefetch.CancelSlot()
			c.setState(StateStopped)
			c.sendEvent(Event{Type: EventQueueEmpty, State: StateStopped})
			return
		}

		stub := stubs[i]
		enriched, err := c.acquire(loadCtx, i, stub)
		if err == nil {
			if playErr := c.sink.Play(enriched.Stream, enriched.Duration); playErr != nil {
				enriched.Stream.Close()
				err = errors.Wrap(playErr, "sink rejected track")
			}
		}

		if err != nil {
			if loadCtx.Err() != nil {
				return
			}
			failures++
			zlog.Warn().Err(err).Msgf("playback: skipping unplayable track: index=%d query=%q (failure %d/%d)",
				i, stub.Query(), failures, c.cfg.MaxConsecutiveFailures)
			if failures >= c.cfg.MaxConsecutiveFailures {
				c.prefetch.CancelSlot()
				c.setState(StateStopped)
				c.sendEvent(Event{Type: EventQueueDegraded, Stub: &stub, State: StateStopped})
				return
			}
			continue
		}

		c.mu.Lock()
		if c.state == StateStopped || loadCtx.Err() != nil {
			// Stopped while the sink was starting; unwind the track.
			c.mu.Unlock()
			_ = c.sink.Stop()
			enriched.Stream.Close()
			return
		}
		c.currentIndex = i
		c.current = enriched
		c.state = StatePlaying
		// Armed under the same lock as the state transition so a
		// concurrent Stop either sees the slot and cancels it or wins
		// the lock first and the check above unwinds the track. The
		// scheduler takes only its own lock, so no ordering hazard.
		if i+1 < len(stubs) {
			c.prefetch.Schedule(stubs[i+1])
		}
		c.mu.Unlock()

		c.sendEvent(Event{Type: EventTrackChanged, Stub: &stub, State: StatePlaying})
		return
	}
}

// acquire obtains an enriched track for the given index: a Ready
// prefetch is handed off directly, a Running one gets a bounded grace
// wait, anything else falls back to synchronous enrichment. A slot whose
// delay timer has not yet fired is cancelled outright; it cannot settle
// within the grace, so waiting would only widen the inter-track gap.
func (c *Controller) acquire(ctx context.Context, index int, stub track.Stub) (*track.Enriched, error) {
	enriched, err := c.prefetch.Consume(index)
	if enriched != nil {
		return c.freshen(ctx, enriched)
	}
	if err != nil {
		zlog.Debug().Err(err).Msgf("playback: prefetch failed earlier, retrying synchronously: index=%d", index)
		return c.enricher.Enrich(ctx, stub)
	}

	switch c.prefetch.Status(index) {
	case prefetch.StatusRunning:
		if done := c.prefetch.Done(index); done != nil {
			grace := time.NewTimer(c.cfg.GraceWait)
			select {
			case <-done:
				grace.Stop()
				if enriched, err := c.prefetch.Consume(index); enriched != nil {
					return c.freshen(ctx, enriched)
				} else if err != nil {
					zlog.Debug().Err(err).Msgf("playback: prefetch settled as failed during grace: index=%d", index)
				}
			case <-grace.C:
				// The slot is still running; at most one enrichment may
				// be in flight, so it is cancelled before the sync path.
				zlog.Debug().Msgf("playback: grace elapsed, cancelling prefetch: index=%d", index)
				c.prefetch.CancelSlot()
			case <-ctx.Done():
				grace.Stop()
				return nil, ctx.Err()
			}
		}

	case prefetch.StatusScheduled:
		zlog.Debug().Msgf("playback: prefetch still in delay, going synchronous: index=%d", index)
		c.prefetch.CancelSlot()

	case prefetch.StatusReady, prefetch.StatusFailed:
		// Settled between the consume above and the status read.
		if enriched, err := c.prefetch.Consume(index); enriched != nil {
			return c.freshen(ctx, enriched)
		} else if err != nil {
			zlog.Debug().Err(err).Msgf("playback: prefetch settled as failed: index=%d", index)
		}
	}

	return c.enricher.Enrich(ctx, stub)
}

// freshen re-enriches a prefetched track whose stream URL expired while
// it sat in the slot.
func (c *Controller) freshen(ctx context.Context, enriched *track.Enriched) (*track.Enriched, error) {
	expiry := enriched.Stream.ExpiresAt
	if expiry.IsZero() || time.Now().Before(expiry) {
		return enriched, nil
	}
	zlog.Debug().Msgf("playback: prefetched stream expired, re-enriching: index=%d", enriched.Stub.Index)
	enriched.Stream.Close()
	return c.enricher.Enrich(ctx, enriched.Stub)
}

// requestLoad hands an index to the driver, superseding any load request
// it has not picked up yet.
func (c *Controller) requestLoad(index int) {
	for {
		select {
		case <-c.loadCh:
			continue
		default:
		}
		break
	}
	select {
	case c.loadCh <- index:
	case <-c.ctx.Done():
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// sendEvent sends an event without blocking.
func (c *Controller) sendEvent(e Event) {
	select {
	case c.eventCh <- e:
		// Successfully sent
	case <-c.ctx.Done():
		// Controller closed, don't send
	default:
		// Channel full, drop event
	}
}
