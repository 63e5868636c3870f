package resolve

import (
	"context"
	"strings"

	"gapless/internal/domain/track"
	"gapless/internal/infra/youtube"
)

// SearchClient is the subset of the YouTube client the search resolver
// needs.
type SearchClient interface {
	SearchMusic(ctx context.Context, query string, limit int) ([]youtube.Hit, error)
	SearchVideos(ctx context.Context, query string, limit int) ([]youtube.Hit, error)
}

// SearchResolver resolves free-text queries by taking the top music
// search result. It matches anything that is not a URL, so it must be
// registered last in the chain.
type SearchResolver struct {
	client SearchClient
}

func NewSearchResolver(client SearchClient) *SearchResolver {
	return &SearchResolver{client: client}
}

func (r *SearchResolver) Name() string { return "search" }

func (r *SearchResolver) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	return !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://")
}

func (r *SearchResolver) Resolve(ctx context.Context, ref string, _ int) ([]track.Stub, error) {
	hits, err := r.client.SearchMusic(ctx, ref, 1)
	if err != nil || len(hits) == 0 {
		// Music search misses niche uploads that plain video search finds.
		hits, err = r.client.SearchVideos(ctx, ref, 1)
		if err != nil {
			return nil, err
		}
	}
	if len(hits) == 0 {
		return []track.Stub{}, nil
	}

	return []track.Stub{{
		Platform: track.PlatformSearch,
		SourceID: hits[0].VideoID,
		Title:    hits[0].Title,
		Artist:   hits[0].Artist,
	}}, nil
}
