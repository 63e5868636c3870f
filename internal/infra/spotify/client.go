// Package spotify provides a client for the Spotify API.
//
// The client deliberately exposes two tiers of access: stub resolution,
// which reads names and IDs straight off playlist/album pages without
// touching individual tracks, and per-track lookups used only for
// best-effort artwork fetches.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"gapless/internal/domain/track"
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}

	// The HTTP client refreshes the access token automatically.
	httpClient := auth.Client(ctx, token)

	return &Client{
		client:     spotify.New(httpClient),
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// RefKind classifies a Spotify reference.
type RefKind int

const (
	RefUnknown RefKind = iota
	RefTrack
	RefAlbum
	RefPlaylist
)

// ClassifyRef reports what kind of Spotify reference the input is, along
// with the extracted ID. RefUnknown means the input is not a Spotify URL
// or URI at all.
func ClassifyRef(input string) (RefKind, string) {
	for _, k := range []struct {
		kind RefKind
		name string
	}{
		{RefPlaylist, "playlist"},
		{RefAlbum, "album"},
		{RefTrack, "track"},
	} {
		if id := extractID(input, k.name); id != "" {
			return k.kind, id
		}
	}
	return RefUnknown, ""
}

// PlaylistStubs returns up to limit stubs for the playlist, reading only
// the playlist-items pages. No per-track API calls are made.
func (c *Client) PlaylistStubs(ctx context.Context, playlistID string, limit int) ([]track.Stub, error) {
	var stubs []track.Stub
	offset := 0
	pageSize := 100

	for len(stubs) < limit {
		want := limit - len(stubs)
		if want > pageSize {
			want = pageSize
		}

		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(want),
				spotify.Offset(offset),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes come back with a nil track.
			t := item.Track.Track
			if t == nil || t.ID == "" {
				continue
			}
			stubs = append(stubs, track.Stub{
				Index:    len(stubs),
				Platform: track.PlatformSpotify,
				SourceID: string(t.ID),
				Title:    t.Name,
				Artist:   firstArtist(t.Artists),
			})
		}

		if len(page.Items) < want {
			break
		}
		offset += len(page.Items)
	}

	return stubs, nil
}

// AlbumStubs returns up to limit stubs for the album's tracks.
func (c *Client) AlbumStubs(ctx context.Context, albumID string, limit int) ([]track.Stub, error) {
	var page *spotify.SimpleTrackPage
	err := c.retry(func() error {
		p, err := c.client.GetAlbumTracks(ctx, spotify.ID(albumID), spotify.Limit(50))
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album tracks")
	}

	stubs := make([]track.Stub, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		if len(stubs) >= limit {
			break
		}
		stubs = append(stubs, track.Stub{
			Index:    len(stubs),
			Platform: track.PlatformSpotify,
			SourceID: string(t.ID),
			Title:    t.Name,
			Artist:   firstArtist(t.Artists),
		})
	}

	return stubs, nil
}

// TrackStub returns a single stub for a track reference.
func (c *Client) TrackStub(ctx context.Context, trackID string) (track.Stub, error) {
	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(trackID))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return track.Stub{}, errors.Wrap(err, "failed to get track")
	}

	return track.Stub{
		Platform: track.PlatformSpotify,
		SourceID: string(result.ID),
		Title:    result.Name,
		Artist:   firstArtist(result.Artists),
	}, nil
}

// ArtworkURL returns the album art URL for a track. Used as a best-effort
// side-fetch during enrichment.
func (c *Client) ArtworkURL(ctx context.Context, trackID string) (string, error) {
	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(trackID))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to get track artwork")
	}

	if len(result.Album.Images) == 0 {
		return "", nil
	}
	return result.Album.Images[0].URL, nil
}

func firstArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}

// retry retries an operation with linear backoff on retryable errors.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID extracts the ID for the given object kind from a Spotify URL
// or URI. Returns "" when the input does not reference that kind.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)

	// URI format: spotify:<kind>:<id>
	if id, ok := strings.CutPrefix(input, "spotify:"+kind+":"); ok {
		return id
	}

	// URL format: https://open.spotify.com/<kind>/<id> or /intl-XX/<kind>/<id>
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
		parts := strings.Split(input, "/"+kind+"/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return ""
}
