// Package lyrics provides a client for the LRCLIB lyrics API.
package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when no lyrics exist for the track.
var ErrNotFound = errors.New("lyrics not found")

// Client is an LRCLIB API client.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Negative results are cached too; a track without lyrics stays
	// without lyrics.
	cacheMu sync.RWMutex
	cache   map[string]string
}

// getResponse represents the response from the /api/get endpoint.
type getResponse struct {
	ID           int64  `json:"id"`
	TrackName    string `json:"trackName"`
	ArtistName   string `json:"artistName"`
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
}

// New creates a new LRCLIB client.
func New() *Client {
	return &Client{
		baseURL:    "https://lrclib.net",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string]string),
	}
}

// Lookup resolves a lyrics reference (a stable LRCLIB record URL) for the
// given artist and title. Callers time-box this with their own context;
// failure only means the enriched track carries no lyrics reference.
func (c *Client) Lookup(ctx context.Context, artist, title string) (string, error) {
	if title == "" {
		return "", errors.New("track title is required")
	}

	key := artist + "\x00" + title
	c.cacheMu.RLock()
	if ref, ok := c.cache[key]; ok {
		c.cacheMu.RUnlock()
		if ref == "" {
			return "", ErrNotFound
		}
		return ref, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("artist_name", artist)
	params.Set("track_name", title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/get?"+params.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build lyrics request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "lyrics request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.store(key, "")
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("lyrics API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read lyrics response")
	}

	var parsed getResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to parse lyrics response")
	}
	if parsed.ID == 0 || (parsed.PlainLyrics == "" && parsed.SyncedLyrics == "") {
		c.store(key, "")
		return "", ErrNotFound
	}

	ref := fmt.Sprintf("%s/api/get/%d", c.baseURL, parsed.ID)
	c.store(key, ref)
	return ref, nil
}

func (c *Client) store(key, ref string) {
	c.cacheMu.Lock()
	c.cache[key] = ref
	c.cacheMu.Unlock()
}
