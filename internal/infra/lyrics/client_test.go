package lyrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New()
	c.baseURL = srv.URL
	return c, srv
}

func TestClient_Lookup(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Neil Young", r.URL.Query().Get("artist_name"))
			assert.Equal(t, "Harvest Moon", r.URL.Query().Get("track_name"))
			w.Write([]byte(`{"id": 4242, "trackName": "Harvest Moon", "artistName": "Neil Young", "plainLyrics": "Come a little bit closer"}`))
		})
		defer srv.Close()

		ref, err := c.Lookup(context.Background(), "Neil Young", "Harvest Moon")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/api/get/4242", ref)
	})

	t.Run("not found", func(t *testing.T) {
		c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		defer srv.Close()

		_, err := c.Lookup(context.Background(), "Nobody", "Nothing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("instrumental record counts as not found", func(t *testing.T) {
		c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": 7, "plainLyrics": "", "syncedLyrics": ""}`))
		})
		defer srv.Close()

		_, err := c.Lookup(context.Background(), "Mogwai", "Untitled")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing title", func(t *testing.T) {
		c := New()
		_, err := c.Lookup(context.Background(), "Artist", "")
		assert.Error(t, err)
	})
}

func TestClient_Lookup_Cache(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"id": 99, "plainLyrics": "la la la"}`))
	})
	defer srv.Close()

	for i := 0; i < 3; i++ {
		ref, err := c.Lookup(context.Background(), "A", "B")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/api/get/99", ref)
	}
	assert.Equal(t, int32(1), calls.Load(), "repeat lookups must hit the cache")
}

func TestClient_Lookup_NegativeCache(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	for i := 0; i < 2; i++ {
		_, err := c.Lookup(context.Background(), "A", "B")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(1), calls.Load())
}
