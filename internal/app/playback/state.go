// Package playback drives queue consumption: it plays tracks through a
// sink in strict queue order, picks up prefetched tracks when they are
// ready and falls back to synchronous enrichment when they are not.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No queue loaded
	StateLoading              // Next track is being prepared
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
	StateStopped              // Playback stopped (explicitly or queue degraded)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
