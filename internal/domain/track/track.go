// Package track provides the track domain entities shared by the pipeline.
package track

import (
	"sync"
	"time"
)

// SourcePlatform identifies the platform a stub originates from.
type SourcePlatform string

const (
	PlatformSpotify SourcePlatform = "spotify"
	PlatformYouTube SourcePlatform = "youtube"
	PlatformYTMusic SourcePlatform = "ytmusic"
	// PlatformSearch marks stubs produced from a free-text query with no
	// platform identity of their own.
	PlatformSearch SourcePlatform = "search"
)

// Stub is a lightweight, unresolved reference to one queue entry.
// Produced by the playlist resolver and never mutated afterwards.
type Stub struct {
	Index    int            // Position in the queue, dense from 0
	Platform SourcePlatform // Platform of origin
	SourceID string         // Platform track ID or canonical URL
	Title    string         // Display hint, may be empty
	Artist   string         // Display hint, may be empty
}

// Query returns the text-search form of the stub, built from its hints.
func (s Stub) Query() string {
	if s.Title == "" {
		return s.SourceID
	}
	if s.Artist == "" {
		return s.Title
	}
	return s.Artist + " " + s.Title
}

// StreamHandle is a playable audio source resolved for exactly one playback
// cycle. Ownership transfers to the playback controller on consumption; Close
// releases whatever the resolving platform acquired and is safe to call more
// than once.
type StreamHandle struct {
	MediaURL  string    // Direct audio URL
	Codec     string    // e.g. "opus", "m4a"; may be empty
	ExpiresAt time.Time // Zero if the URL does not expire

	closeOnce sync.Once
	release   func()
}

// NewStreamHandle creates a handle. release may be nil when the platform
// acquired nothing beyond the URL itself.
func NewStreamHandle(mediaURL, codec string, expiresAt time.Time, release func()) *StreamHandle {
	return &StreamHandle{
		MediaURL:  mediaURL,
		Codec:     codec,
		ExpiresAt: expiresAt,
		release:   release,
	}
}

// Close releases the handle's resources. Idempotent.
func (h *StreamHandle) Close() {
	h.closeOnce.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

// Enriched is the fully resolved, playable representation of a track.
type Enriched struct {
	Stub       Stub
	Stream     *StreamHandle
	Duration   time.Duration
	ArtworkURL string // Best-effort, empty when the side-fetch failed
	LyricsRef  string // Best-effort, empty when the side-fetch failed
	EnrichedAt time.Time
}
