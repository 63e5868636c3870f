package playback

import "gapless/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged  EventType = iota // A new track started playing
	EventTrackSkipped                   // Track was skipped by request
	EventStateChanged                   // Playback state changed (pause/resume/stop)
	EventQueueEmpty                     // The queue ran out of tracks
	EventQueueDegraded                  // Too many consecutive unplayable tracks
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	case EventQueueDegraded:
		return "queue_degraded"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type  EventType
	Stub  *track.Stub // Track the event refers to (nil for some events)
	State State       // Playback state at the time of the event
}
