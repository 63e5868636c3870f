// Package resolve turns a source reference (playlist URL, track URL or
// free-text query) into an ordered list of track stubs. Resolution stays
// shallow: no per-entry lookups, no stream URLs, just enough to queue.
package resolve

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"gapless/internal/domain/track"
)

// ErrUnrecognizedSource reports that no registered resolver matched the
// reference.
var ErrUnrecognizedSource = errors.New("unrecognized source reference")

// SourceResolver resolves one family of source references into stubs.
type SourceResolver interface {
	// Name returns the resolver identifier used in logs.
	Name() string
	// Matches reports whether this resolver handles the reference.
	Matches(ref string) bool
	// Resolve returns at most limit stubs for the reference. An empty
	// playlist resolves to an empty slice, not an error.
	Resolve(ctx context.Context, ref string, limit int) ([]track.Stub, error)
}

// Chain dispatches a reference to the first resolver that matches it.
type Chain struct {
	resolvers []SourceResolver
}

// NewChain creates a resolver chain. Order matters: the first match wins,
// so catch-all resolvers go last.
func NewChain(resolvers ...SourceResolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// Resolve resolves a reference into stubs with dense indices starting at
// zero. Any failure here is terminal for the request; nothing is queued.
func (c *Chain) Resolve(ctx context.Context, ref string, limit int) ([]track.Stub, error) {
	for _, r := range c.resolvers {
		if !r.Matches(ref) {
			continue
		}

		zlog.Debug().Msgf("resolving %q via %s", ref, r.Name())
		stubs, err := r.Resolve(ctx, ref, limit)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve %q via %s", ref, r.Name())
		}

		if limit > 0 && len(stubs) > limit {
			stubs = stubs[:limit]
		}
		reindex(stubs)
		zlog.Info().Msgf("resolved %q via %s: %d tracks", ref, r.Name(), len(stubs))
		return stubs, nil
	}

	return nil, errors.Wrapf(ErrUnrecognizedSource, "no resolver for %q", ref)
}

// reindex rewrites stub indices to a dense 0..n-1 sequence. Playback and
// prefetch both address the queue by index, so gaps are not allowed.
func reindex(stubs []track.Stub) {
	for i := range stubs {
		stubs[i].Index = i
	}
}
