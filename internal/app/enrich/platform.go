package enrich

import (
	"context"
	"time"

	"gapless/internal/domain/track"
	"gapless/internal/infra/youtube"
)

// Platform resolves a track stub into a playable stream.
type Platform interface {
	// Name returns the platform identifier used in config and logs.
	Name() string
	// CanResolve reports whether this platform can attempt the stub.
	CanResolve(stub track.Stub) bool
	// Resolve turns a stub into a stream handle and the track duration.
	Resolve(ctx context.Context, stub track.Stub) (*track.StreamHandle, time.Duration, error)
}

// StreamSource is the subset of the YouTube client the platforms need.
type StreamSource interface {
	SearchMusic(ctx context.Context, query string, limit int) ([]youtube.Hit, error)
	SearchVideos(ctx context.Context, query string, limit int) ([]youtube.Hit, error)
	ResolveStream(ctx context.Context, ref string) (*track.StreamHandle, time.Duration, error)
}

// YTMusicPlatform resolves stubs through YouTube Music search. Spotify stubs
// land here first because Spotify never hands out raw audio.
type YTMusicPlatform struct {
	source StreamSource
	limit  int
}

func NewYTMusicPlatform(source StreamSource, limit int) *YTMusicPlatform {
	if limit <= 0 {
		limit = 3
	}
	return &YTMusicPlatform{source: source, limit: limit}
}

func (p *YTMusicPlatform) Name() string { return string(track.PlatformYTMusic) }

func (p *YTMusicPlatform) CanResolve(stub track.Stub) bool {
	// Direct lookup needs a video ID; everything else goes through search,
	// which only needs a title.
	if stub.Platform == track.PlatformYTMusic && stub.SourceID != "" {
		return true
	}
	return stub.Title != ""
}

func (p *YTMusicPlatform) Resolve(ctx context.Context, stub track.Stub) (*track.StreamHandle, time.Duration, error) {
	if stub.Platform == track.PlatformYTMusic && stub.SourceID != "" {
		return p.source.ResolveStream(ctx, stub.SourceID)
	}
	hits, err := p.source.SearchMusic(ctx, stub.Query(), p.limit)
	if err != nil {
		return nil, 0, err
	}
	if len(hits) == 0 {
		return nil, 0, errNoMatch(stub)
	}
	return p.source.ResolveStream(ctx, hits[0].VideoID)
}

// YouTubePlatform resolves stubs that originated on YouTube, or falls back
// to a plain video search for stubs no other platform matched.
type YouTubePlatform struct {
	source StreamSource
	limit  int
}

func NewYouTubePlatform(source StreamSource, limit int) *YouTubePlatform {
	if limit <= 0 {
		limit = 3
	}
	return &YouTubePlatform{source: source, limit: limit}
}

func (p *YouTubePlatform) Name() string { return string(track.PlatformYouTube) }

// directRef reports whether the stub already names a YouTube video, in
// which case search is skipped. Search-produced stubs carry the video ID
// of the top hit.
func (p *YouTubePlatform) directRef(stub track.Stub) bool {
	if stub.SourceID == "" {
		return false
	}
	return stub.Platform == track.PlatformYouTube || stub.Platform == track.PlatformSearch
}

func (p *YouTubePlatform) CanResolve(stub track.Stub) bool {
	return p.directRef(stub) || stub.Title != ""
}

func (p *YouTubePlatform) Resolve(ctx context.Context, stub track.Stub) (*track.StreamHandle, time.Duration, error) {
	if p.directRef(stub) {
		return p.source.ResolveStream(ctx, stub.SourceID)
	}
	hits, err := p.source.SearchVideos(ctx, stub.Query(), p.limit)
	if err != nil {
		return nil, 0, err
	}
	if len(hits) == 0 {
		return nil, 0, errNoMatch(stub)
	}
	return p.source.ResolveStream(ctx, hits[0].VideoID)
}
