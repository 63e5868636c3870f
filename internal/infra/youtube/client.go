// Package youtube provides search and stream resolution against YouTube
// and YouTube Music.
//
// Searches use the native Go clients (ytsearch, ytmusic); anything that
// needs a playable media URL or playlist expansion goes through yt-dlp.
package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"golang.org/x/time/rate"

	"gapless/internal/domain/track"
)

// Client wraps the YouTube access paths behind a shared rate limiter so
// concurrent sessions cannot hammer the endpoints.
type Client struct {
	limiter *rate.Limiter
}

// New creates a new client.
func New() *Client {
	return &Client{
		// Burst of 3 covers a search plus its follow-up resolve.
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
	}
}

// Hit is one search or playlist result.
type Hit struct {
	VideoID      string
	Title        string
	Artist       string
	ThumbnailURL string
	Duration     time.Duration
}

// SearchMusic searches YouTube Music for tracks.
func (c *Client) SearchMusic(ctx context.Context, query string, limit int) ([]Hit, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	s := ytmusic.TrackSearch(query)
	result, err := s.Next()
	if err != nil {
		return nil, errors.Wrap(err, "ytmusic search failed")
	}

	hits := make([]Hit, 0, limit)
	for _, t := range result.Tracks {
		if t.VideoID == "" {
			continue
		}
		h := Hit{
			VideoID:  t.VideoID,
			Title:    t.Title,
			Duration: time.Duration(t.Duration) * time.Second,
		}
		if len(t.Artists) > 0 {
			h.Artist = t.Artists[0].Name
		}
		if len(t.Thumbnails) > 0 {
			h.ThumbnailURL = t.Thumbnails[len(t.Thumbnails)-1].URL
		}
		hits = append(hits, h)
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// SearchVideos searches plain YouTube.
func (c *Client) SearchVideos(ctx context.Context, query string, limit int) ([]Hit, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cl := ytsearch.NewClient(nil)
	result, err := cl.Search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "ytsearch failed")
	}

	hits := make([]Hit, 0, limit)
	for _, r := range result.Results {
		if r.VideoID == "" {
			continue
		}
		hits = append(hits, Hit{
			VideoID:  r.VideoID,
			Title:    r.Title,
			Artist:   r.Channel,
			Duration: parseColonDuration(r.Duration),
		})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// PlaylistEntries expands a playlist URL into flat entries without
// resolving any media. yt-dlp's flat-playlist mode returns names and IDs
// only, which keeps this fast for long playlists.
func (c *Client) PlaylistEntries(ctx context.Context, playlistURL string, limit int) ([]Hit, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cmd := newCommand()
	res, err := cmd.
		FlatPlaylist().
		Print("%(id)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Run(ctx, playlistURL)
	if err != nil {
		return nil, errors.Wrap(err, "yt-dlp playlist expansion failed")
	}

	var hits []Hit
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 || fields[0] == "" || fields[0] == "NA" {
			continue
		}
		h := Hit{VideoID: fields[0], Title: fields[1], Artist: fields[2]}
		if len(fields) >= 4 {
			if secs, err := strconv.ParseFloat(fields[3], 64); err == nil {
				h.Duration = time.Duration(secs * float64(time.Second))
			}
		}
		hits = append(hits, h)
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// ResolveStream resolves a video reference (ID or URL) into a direct audio
// stream handle plus the track duration.
func (c *Client) ResolveStream(ctx context.Context, ref string) (*track.StreamHandle, time.Duration, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	target := ref
	if !strings.HasPrefix(target, "http") {
		target = "https://www.youtube.com/watch?v=" + target
	}
	// yt-dlp handles music.youtube.com poorly for format selection.
	target = strings.Replace(target, "music.youtube.com", "www.youtube.com", 1)

	cmd := newCommand()
	res, err := cmd.
		NoPlaylist().
		Format("bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best").
		Print("%(url)s\t%(duration)s\t%(ext)s").
		SkipDownload().
		Run(ctx, target)
	if err != nil {
		return nil, 0, errors.Wrap(err, "yt-dlp stream resolution failed")
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "http") {
			continue
		}
		duration, _ := time.ParseDuration(fields[1] + "s")
		codec := ""
		if len(fields) >= 3 {
			codec = fields[2]
		}
		handle := track.NewStreamHandle(fields[0], codec, mediaURLExpiry(fields[0]), nil)
		return handle, duration, nil
	}
	return nil, 0, errors.New("yt-dlp returned no stream URL")
}

// Thumbnail resolves the artwork URL for a video reference.
func (c *Client) Thumbnail(ctx context.Context, ref string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	target := ref
	if !strings.HasPrefix(target, "http") {
		target = "https://www.youtube.com/watch?v=" + target
	}

	cmd := newCommand()
	res, err := cmd.
		NoPlaylist().
		Print("%(thumbnail)s").
		SkipDownload().
		Run(ctx, target)
	if err != nil {
		return "", errors.Wrap(err, "yt-dlp thumbnail lookup failed")
	}

	thumb := strings.TrimSpace(res.Stdout)
	if thumb == "" || thumb == "NA" {
		return "", errors.New("no thumbnail")
	}
	return thumb, nil
}

func newCommand() *ytdlp.Command {
	return ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoCheckCertificates().
		SocketTimeout(15)
}

// mediaURLExpiry extracts the expiry timestamp googlevideo URLs carry in
// their "expire" query parameter. Zero when absent or unparsable.
func mediaURLExpiry(mediaURL string) time.Time {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return time.Time{}
	}
	raw := u.Query().Get("expire")
	if raw == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// parseColonDuration parses duration strings like "3:20" or "1:05:20".
func parseColonDuration(s string) time.Duration {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total time.Duration
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0
		}
		total = total*60 + time.Duration(n)*time.Second
	}
	return total
}
