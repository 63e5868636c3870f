// Package sink provides audio sink implementations for the playback
// controller.
package sink

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"gapless/internal/app/playback"
	"gapless/internal/domain/track"
)

// ClockSink plays tracks against the wall clock: a track "plays" for its
// duration and then ends. It stands in for a real voice connection when
// running headless, and doubles as the reference Sink implementation.
type ClockSink struct {
	mu sync.Mutex

	events      chan playback.SinkEvent
	timerCancel func()
	startedAt   time.Time
	remaining   time.Duration
	paused      bool
}

func NewClockSink() *ClockSink {
	return &ClockSink{events: make(chan playback.SinkEvent, 10)}
}

func (s *ClockSink) Events() <-chan playback.SinkEvent {
	return s.events
}

func (s *ClockSink) Play(handle *track.StreamHandle, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.paused = false
	s.remaining = duration
	s.startedAt = toWallTime(time.Now())
	zlog.Debug().Msgf("sink: playing %s for %s", handle.MediaURL, duration)
	s.startTimerLocked(duration)
	return nil
}

func (s *ClockSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.timerCancel == nil {
		return nil
	}
	s.stopTimerLocked()
	elapsed := toWallTime(time.Now()).Sub(s.startedAt)
	s.remaining -= elapsed
	if s.remaining < 0 {
		s.remaining = 0
	}
	s.paused = true
	return nil
}

func (s *ClockSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return nil
	}
	s.paused = false
	s.startedAt = toWallTime(time.Now())
	s.startTimerLocked(s.remaining)
	return nil
}

// Stop cancels the running track without emitting an end event.
func (s *ClockSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.paused = false
	s.remaining = 0
	return nil
}

func (s *ClockSink) stopTimerLocked() {
	if s.timerCancel != nil {
		s.timerCancel()
		s.timerCancel = nil
	}
}

func (s *ClockSink) startTimerLocked(duration time.Duration) {
	s.timerCancel = s.startWallClockTimer(duration, func() {
		s.mu.Lock()
		s.timerCancel = nil
		s.mu.Unlock()

		select {
		case s.events <- playback.SinkEvent{Type: playback.SinkTrackEnded}:
		default:
		}
	})
}

// startWallClockTimer triggers callback after duration measured on the
// wall clock. Monotonic time is stripped so a drifting monotonic clock
// cannot shift track boundaries over long sessions.
func (s *ClockSink) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).After(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
