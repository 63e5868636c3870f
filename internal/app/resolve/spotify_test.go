package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapless/internal/domain/track"
)

type fakeSpotifyClient struct {
	playlistCalls int
	albumCalls    int
	trackCalls    int
}

func (f *fakeSpotifyClient) PlaylistStubs(_ context.Context, id string, _ int) ([]track.Stub, error) {
	f.playlistCalls++
	return []track.Stub{{Platform: track.PlatformSpotify, SourceID: id + "-1"}}, nil
}

func (f *fakeSpotifyClient) AlbumStubs(_ context.Context, id string, _ int) ([]track.Stub, error) {
	f.albumCalls++
	return []track.Stub{{Platform: track.PlatformSpotify, SourceID: id + "-1"}}, nil
}

func (f *fakeSpotifyClient) TrackStub(_ context.Context, id string) (track.Stub, error) {
	f.trackCalls++
	return track.Stub{Platform: track.PlatformSpotify, SourceID: id}, nil
}

func TestSpotifyResolver(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantCalls  func(f *fakeSpotifyClient) int
		wantSource string
	}{
		{
			name:       "playlist URL",
			ref:        "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			wantCalls:  func(f *fakeSpotifyClient) int { return f.playlistCalls },
			wantSource: "37i9dQZF1DXcBWIGoYBM5M-1",
		},
		{
			name:       "album URI",
			ref:        "spotify:album:4aawyAB9vmqN3uQ7FjRGTy",
			wantCalls:  func(f *fakeSpotifyClient) int { return f.albumCalls },
			wantSource: "4aawyAB9vmqN3uQ7FjRGTy-1",
		},
		{
			name:       "track URL",
			ref:        "https://open.spotify.com/track/11dFghVXANMlKmJXsNCbNl",
			wantCalls:  func(f *fakeSpotifyClient) int { return f.trackCalls },
			wantSource: "11dFghVXANMlKmJXsNCbNl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSpotifyClient{}
			r := NewSpotifyResolver(client)

			require.True(t, r.Matches(tt.ref))
			stubs, err := r.Resolve(context.Background(), tt.ref, 10)
			require.NoError(t, err)
			require.Len(t, stubs, 1)
			assert.Equal(t, 1, tt.wantCalls(client))
			assert.Equal(t, tt.wantSource, stubs[0].SourceID)
		})
	}
}

func TestSpotifyResolver_DoesNotMatchOtherURLs(t *testing.T) {
	r := NewSpotifyResolver(nil)
	assert.False(t, r.Matches("https://www.youtube.com/watch?v=x"))
	assert.False(t, r.Matches("free text query"))
}
