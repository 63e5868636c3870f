package enrich

import (
	"context"

	"github.com/cockroachdb/errors"

	"gapless/internal/domain/track"
)

// SpotifyArtwork is the subset of the Spotify client used for artwork.
type SpotifyArtwork interface {
	ArtworkURL(ctx context.Context, trackID string) (string, error)
}

// ThumbnailSource fetches a video thumbnail by video ID or URL.
type ThumbnailSource interface {
	Thumbnail(ctx context.Context, ref string) (string, error)
}

// ArtworkRouter picks the artwork source by the stub's platform of origin.
type ArtworkRouter struct {
	spotify SpotifyArtwork
	youtube ThumbnailSource
}

// NewArtworkRouter creates an ArtworkRouter. spotify may be nil when no
// Spotify credentials are configured.
func NewArtworkRouter(spotify SpotifyArtwork, youtube ThumbnailSource) *ArtworkRouter {
	return &ArtworkRouter{spotify: spotify, youtube: youtube}
}

func (r *ArtworkRouter) ArtworkURL(ctx context.Context, stub track.Stub) (string, error) {
	switch stub.Platform {
	case track.PlatformSpotify:
		if r.spotify == nil {
			return "", errors.New("spotify artwork source not configured")
		}
		return r.spotify.ArtworkURL(ctx, stub.SourceID)
	case track.PlatformYouTube, track.PlatformYTMusic:
		if stub.SourceID == "" {
			return "", errors.New("stub has no video ID")
		}
		return r.youtube.Thumbnail(ctx, stub.SourceID)
	default:
		return "", errors.Newf("no artwork source for platform %s", stub.Platform)
	}
}
