package playback

import (
	"time"

	"gapless/internal/domain/track"
)

// SinkEventType represents an audio sink event type.
type SinkEventType int

const (
	// SinkTrackEnded means the sink played the track to completion.
	SinkTrackEnded SinkEventType = iota
	// SinkErrored means the sink failed mid-track.
	SinkErrored
)

// SinkEvent is emitted by a sink as playback progresses.
type SinkEvent struct {
	Type SinkEventType
	Err  error
}

// Sink is the audio output the controller plays into. Stop suppresses
// any pending end event for the stopped track; the controller relies on
// that when skipping.
type Sink interface {
	Play(handle *track.StreamHandle, duration time.Duration) error
	Pause() error
	Resume() error
	Stop() error
	Events() <-chan SinkEvent
}
