// Package prefetch holds the single-slot predictive enrichment scheduler.
// At most one track (the one after the current track) is prepared ahead
// of time, and at most one enrichment runs in the background.
package prefetch

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"gapless/internal/domain/track"
)

// Status is the lifecycle state of the prefetch slot.
type Status int

const (
	// StatusIdle means no slot is armed.
	StatusIdle Status = iota
	// StatusScheduled means the delay timer is running; no work yet.
	StatusScheduled
	// StatusRunning means enrichment is in flight.
	StatusRunning
	// StatusReady means an enriched track is waiting to be consumed.
	StatusReady
	// StatusFailed means enrichment failed; the result is an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusScheduled:
		return "scheduled"
	case StatusRunning:
		return "running"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Enricher resolves a stub into a playable track.
type Enricher interface {
	Enrich(ctx context.Context, stub track.Stub) (*track.Enriched, error)
}

type slot struct {
	targetIndex int
	stub        track.Stub
	status      Status
	result      *track.Enriched
	err         error
	// done closes when the slot settles as Ready or Failed.
	done   chan struct{}
	cancel context.CancelFunc
}

// Scheduler arms, runs and hands off the prefetch slot. One goroutine
// writes results (the background task), one reads them (the playback
// driver); the mutex covers the handoff.
type Scheduler struct {
	mu       sync.Mutex
	enricher Enricher
	delay    time.Duration
	slot     *slot
}

// New creates a Scheduler. delay is the pause between arming the slot
// and starting enrichment, so prefetch I/O does not compete with the
// just-started track.
func New(enricher Enricher, delay time.Duration) *Scheduler {
	return &Scheduler{enricher: enricher, delay: delay}
}

// Schedule arms the slot for the given stub. Any previous slot is
// cancelled first; the delay timer runs on the wall clock from this
// moment, so pausing playback does not move it.
func (s *Scheduler) Schedule(stub track.Stub) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	ctx, cancel := context.WithCancel(context.Background())
	sl := &slot{
		targetIndex: stub.Index,
		stub:        stub,
		status:      StatusScheduled,
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	s.slot = sl
	zlog.Debug().Msgf("prefetch scheduled: index=%d query=%q delay=%s", stub.Index, stub.Query(), s.delay)

	go s.run(ctx, sl)
}

func (s *Scheduler) run(ctx context.Context, sl *slot) {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	if s.slot != sl {
		s.mu.Unlock()
		return
	}
	sl.status = StatusRunning
	s.mu.Unlock()

	result, err := s.enricher.Enrich(ctx, sl.stub)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot != sl || ctx.Err() != nil {
		// Slot was cancelled or replaced while enrichment ran; the
		// result has no consumer, so its stream must be released here.
		if result != nil && result.Stream != nil {
			result.Stream.Close()
		}
		return
	}
	if err != nil {
		sl.status = StatusFailed
		sl.err = err
		zlog.Warn().Err(err).Msgf("prefetch failed: index=%d", sl.targetIndex)
	} else {
		sl.status = StatusReady
		sl.result = result
		zlog.Debug().Msgf("prefetch ready: index=%d", sl.targetIndex)
	}
	close(sl.done)
}

// Status returns the slot status for the given queue index. A slot armed
// for a different index reads as Idle.
func (s *Scheduler) Status(index int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil || s.slot.targetIndex != index {
		return StatusIdle
	}
	return s.slot.status
}

// Done returns a channel that closes when the slot for index settles, or
// nil when no slot is armed for that index. A nil channel tells the
// caller to enrich synchronously right away.
func (s *Scheduler) Done(index int) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil || s.slot.targetIndex != index {
		return nil
	}
	return s.slot.done
}

// Consume hands off the slot result for the given index. It returns
// (result, nil) for a Ready slot, (nil, err) for a Failed slot, and
// (nil, nil) when the slot is absent or still settling. A slot armed for
// any other index is invalidated on the spot. Either way the slot is
// cleared, so a result is handed out exactly once.
func (s *Scheduler) Consume(index int) (*track.Enriched, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot == nil {
		return nil, nil
	}
	if s.slot.targetIndex != index {
		zlog.Debug().Msgf("prefetch invalidated: have=%d want=%d", s.slot.targetIndex, index)
		s.cancelLocked()
		return nil, nil
	}

	switch s.slot.status {
	case StatusReady:
		result := s.slot.result
		s.slot = nil
		return result, nil
	case StatusFailed:
		err := s.slot.err
		s.slot = nil
		return nil, err
	default:
		return nil, nil
	}
}

// CancelSlot cancels any armed slot and releases an unconsumed result.
func (s *Scheduler) CancelSlot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.slot == nil {
		return
	}
	s.slot.cancel()
	if s.slot.result != nil && s.slot.result.Stream != nil {
		s.slot.result.Stream.Close()
	}
	s.slot = nil
}
