// Package enrich turns track stubs into playable tracks by walking a
// tiered list of streaming platforms and decorating the result with
// best-effort metadata.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"gapless/internal/domain/track"
)

// LyricsSource looks up a lyrics reference for a track.
type LyricsSource interface {
	Lookup(ctx context.Context, artist, title string) (string, error)
}

// ArtworkSource looks up album artwork for a stub.
type ArtworkSource interface {
	ArtworkURL(ctx context.Context, stub track.Stub) (string, error)
}

// Config holds enrichment timing knobs.
type Config struct {
	// PerPlatformTimeout bounds each single resolution attempt.
	PerPlatformTimeout time.Duration
	// MaxPlatformAttempts is the total attempts on one platform (1 = no retry).
	MaxPlatformAttempts int
	// RetryBackoff is the pause between transient retries on the same platform.
	RetryBackoff time.Duration
	// SideFetchTimeout bounds each best-effort metadata fetch.
	SideFetchTimeout time.Duration
}

// Enricher resolves stubs against the configured platforms. The stub's
// platform of origin is tried first, then the configured list in order.
type Enricher struct {
	platforms []PlatformWithMetadata
	lyrics    LyricsSource
	artwork   ArtworkSource
	cfg       Config
}

// New creates an Enricher. lyrics and artwork may be nil, in which case
// the corresponding side-fetch is skipped.
func New(platforms []PlatformWithMetadata, lyrics LyricsSource, artwork ArtworkSource, cfg Config) *Enricher {
	if cfg.MaxPlatformAttempts < 1 {
		cfg.MaxPlatformAttempts = 1
	}
	return &Enricher{
		platforms: platforms,
		lyrics:    lyrics,
		artwork:   artwork,
		cfg:       cfg,
	}
}

// Enrich resolves a stub into a playable track. It walks the platform
// list until one yields a stream; only when every platform is exhausted
// does it return an *Error.
func (e *Enricher) Enrich(ctx context.Context, stub track.Stub) (*track.Enriched, error) {
	var lastErr error

	for _, p := range e.orderFor(stub) {
		if !p.CanResolve(stub) {
			continue
		}

		handle, duration, err := e.resolveWithRetry(ctx, p, stub)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "enrichment cancelled")
			}
			zlog.Warn().Err(err).Msgf("platform %s failed for %q", p.Name(), stub.Query())
			lastErr = err
			continue
		}

		enriched := &track.Enriched{
			Stub:       stub,
			Stream:     handle,
			Duration:   duration,
			EnrichedAt: time.Now(),
		}
		e.sideFetch(ctx, enriched)
		zlog.Debug().Msgf("enriched %q via %s", stub.Query(), p.Name())
		return enriched, nil
	}

	if lastErr == nil {
		lastErr = errNoMatch(stub)
	}
	return nil, newError(stub, "all platforms exhausted", lastErr)
}

// orderFor returns the platform list with the stub's origin platform
// moved to the front.
func (e *Enricher) orderFor(stub track.Stub) []PlatformWithMetadata {
	ordered := make([]PlatformWithMetadata, 0, len(e.platforms))
	for _, p := range e.platforms {
		if p.Name() == string(stub.Platform) {
			ordered = append(ordered, p)
		}
	}
	for _, p := range e.platforms {
		if p.Name() != string(stub.Platform) {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// resolveWithRetry runs one platform's resolution, retrying transient
// failures up to the configured attempt count. Each attempt gets its own
// timeout so a stuck platform cannot stall the whole chain.
func (e *Enricher) resolveWithRetry(ctx context.Context, p Platform, stub track.Stub) (*track.StreamHandle, time.Duration, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxPlatformAttempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if e.cfg.PerPlatformTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.PerPlatformTimeout)
		}

		handle, duration, err := p.Resolve(attemptCtx, stub)
		cancel()
		if err == nil {
			return handle, duration, nil
		}

		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) {
			break
		}
		if attempt < e.cfg.MaxPlatformAttempts {
			zlog.Debug().Err(err).Msgf("transient failure on %s, retrying (attempt %d/%d)", p.Name(), attempt, e.cfg.MaxPlatformAttempts)
			select {
			case <-time.After(e.cfg.RetryBackoff):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
	}

	return nil, 0, lastErr
}

// sideFetch fills in lyrics and artwork. Failures only cost the metadata,
// never the track.
func (e *Enricher) sideFetch(ctx context.Context, enriched *track.Enriched) {
	var wg sync.WaitGroup

	if e.lyrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.SideFetchTimeout)
			defer cancel()
			ref, err := e.lyrics.Lookup(fetchCtx, enriched.Stub.Artist, enriched.Stub.Title)
			if err != nil {
				zlog.Debug().Err(err).Msgf("lyrics lookup failed for %q", enriched.Stub.Query())
				return
			}
			enriched.LyricsRef = ref
		}()
	}

	if e.artwork != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.SideFetchTimeout)
			defer cancel()
			url, err := e.artwork.ArtworkURL(fetchCtx, enriched.Stub)
			if err != nil {
				zlog.Debug().Err(err).Msgf("artwork lookup failed for %q", enriched.Stub.Query())
				return
			}
			enriched.ArtworkURL = url
		}()
	}

	wg.Wait()
}
