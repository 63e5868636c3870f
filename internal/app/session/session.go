// Package session ties one guild's playback pipeline together: resolver
// chain, enricher, prefetch scheduler, playback controller and event
// fan-out, with a shared lifetime.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"gapless/internal/app/notify"
	"gapless/internal/app/playback"
	"gapless/internal/app/prefetch"
	"gapless/internal/app/resolve"
	"gapless/internal/domain/track"
	"gapless/internal/infra/config"
)

var ErrSessionClosed = errors.New("session is closed")

// Session is one guild's playback pipeline.
type Session struct {
	mu sync.RWMutex

	// Identity
	GuildID   snowflake.ID
	ID        string
	CreatedAt time.Time

	// Components
	config     *config.Config
	resolver   *resolve.Chain
	scheduler  *prefetch.Scheduler
	controller *playback.Controller
	notifier   *notify.Manager

	closeOnce sync.Once
	closed    bool
	done      chan struct{}
}

// New creates a session for a guild. The enricher feeds both the
// prefetch scheduler and the controller's synchronous fallback, so one
// component owns all platform traffic.
func New(guildID snowflake.ID, cfg *config.Config, resolver *resolve.Chain, enricher playback.Enricher, sink playback.Sink) *Session {
	scheduler := prefetch.New(enricher, cfg.PrefetchDelay())
	controller := playback.NewController(playback.Config{
		GraceWait:              cfg.PrefetchGraceWait(),
		MaxConsecutiveFailures: cfg.Playback.MaxConsecutiveFailures,
	}, sink, enricher, scheduler)

	s := &Session{
		GuildID:    guildID,
		ID:         uuid.New().String(),
		CreatedAt:  time.Now(),
		config:     cfg,
		resolver:   resolver,
		scheduler:  scheduler,
		controller: controller,
		notifier:   notify.NewManager(16),
		done:       make(chan struct{}),
	}

	go s.forwardEvents()

	zlog.Info().Msgf("session created: guild=%s id=%s", guildID, s.ID)
	return s
}

// forwardEvents relays controller events to subscribers until the
// controller's event channel drains on close.
func (s *Session) forwardEvents() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.controller.Events():
			zlog.Debug().Msgf("session event: guild=%s type=%s state=%s", s.GuildID, ev.Type, ev.State)
			s.notifier.Broadcast(ev)
		}
	}
}

// Play resolves a source reference and starts playback from its first
// track, replacing any queue the session already had. A resolution
// failure leaves the previous queue untouched.
func (s *Session) Play(ctx context.Context, ref string) (int, error) {
	if s.isClosed() {
		return 0, ErrSessionClosed
	}

	stubs, err := s.resolver.Resolve(ctx, ref, s.config.Resolver.MaxStubsPerPlaylist)
	if err != nil {
		return 0, err
	}

	if err := s.controller.Start(stubs); err != nil {
		if errors.Is(err, playback.ErrQueueEmpty) {
			return 0, nil
		}
		return 0, err
	}
	return len(stubs), nil
}

// Skip advances to the next track.
func (s *Session) Skip() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.controller.Skip()
}

// Pause pauses playback. Background preparation keeps running.
func (s *Session) Pause() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.controller.Pause()
}

// Resume resumes paused playback.
func (s *Session) Resume() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.controller.Resume()
}

// Stop stops playback and releases streams; the session stays usable.
func (s *Session) Stop() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.controller.Stop()
}

// State returns the playback state.
func (s *Session) State() playback.State {
	return s.controller.GetState()
}

// NowPlaying returns the current track's stub.
func (s *Session) NowPlaying() (track.Stub, bool) {
	return s.controller.GetCurrentTrack()
}

// QueuePosition returns the current index and total queue size.
func (s *Session) QueuePosition() (int, int) {
	return s.controller.GetCurrentIndex(), s.controller.GetQueueSize()
}

// Subscribe registers for playback events.
func (s *Session) Subscribe() (string, <-chan notify.Notification) {
	return s.notifier.Subscribe()
}

// Unsubscribe drops a subscription.
func (s *Session) Unsubscribe(id string) {
	s.notifier.Unsubscribe(id)
}

// Close stops playback and releases every session resource. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.controller.Close()
		s.scheduler.CancelSlot()
		s.notifier.Close()
		zlog.Info().Msgf("session closed: guild=%s id=%s", s.GuildID, s.ID)
	})
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
