package resolve

import (
	"context"

	"github.com/cockroachdb/errors"

	"gapless/internal/domain/track"
	"gapless/internal/infra/spotify"
)

// SpotifyClient is the subset of the Spotify client the resolver needs.
type SpotifyClient interface {
	PlaylistStubs(ctx context.Context, playlistID string, limit int) ([]track.Stub, error)
	AlbumStubs(ctx context.Context, albumID string, limit int) ([]track.Stub, error)
	TrackStub(ctx context.Context, trackID string) (track.Stub, error)
}

// SpotifyResolver resolves Spotify playlist, album and track references.
type SpotifyResolver struct {
	client SpotifyClient
}

func NewSpotifyResolver(client SpotifyClient) *SpotifyResolver {
	return &SpotifyResolver{client: client}
}

func (r *SpotifyResolver) Name() string { return "spotify" }

func (r *SpotifyResolver) Matches(ref string) bool {
	kind, _ := spotify.ClassifyRef(ref)
	return kind != spotify.RefUnknown
}

func (r *SpotifyResolver) Resolve(ctx context.Context, ref string, limit int) ([]track.Stub, error) {
	kind, id := spotify.ClassifyRef(ref)
	switch kind {
	case spotify.RefPlaylist:
		return r.client.PlaylistStubs(ctx, id, limit)
	case spotify.RefAlbum:
		return r.client.AlbumStubs(ctx, id, limit)
	case spotify.RefTrack:
		stub, err := r.client.TrackStub(ctx, id)
		if err != nil {
			return nil, err
		}
		return []track.Stub{stub}, nil
	default:
		return nil, errors.Newf("not a spotify reference: %s", ref)
	}
}
