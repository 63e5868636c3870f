package resolve

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"gapless/internal/domain/track"
	"gapless/internal/infra/youtube"
)

// VideoClient is the subset of the YouTube client the resolver needs.
type VideoClient interface {
	PlaylistEntries(ctx context.Context, playlistURL string, limit int) ([]youtube.Hit, error)
}

// YouTubeResolver resolves YouTube and YouTube Music video and playlist
// URLs. A watch URL that also carries a list parameter resolves as a
// playlist starting from its full contents.
type YouTubeResolver struct {
	client VideoClient
}

func NewYouTubeResolver(client VideoClient) *YouTubeResolver {
	return &YouTubeResolver{client: client}
}

func (r *YouTubeResolver) Name() string { return "youtube" }

func (r *YouTubeResolver) Matches(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	switch host {
	case "youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

func (r *YouTubeResolver) Resolve(ctx context.Context, ref string, limit int) ([]track.Stub, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse URL")
	}

	platform := track.PlatformYouTube
	if strings.HasPrefix(u.Host, "music.") {
		platform = track.PlatformYTMusic
	}

	if u.Query().Get("list") != "" || strings.HasPrefix(u.Path, "/playlist") {
		hits, err := r.client.PlaylistEntries(ctx, ref, limit)
		if err != nil {
			return nil, err
		}
		return hitsToStubs(hits, platform), nil
	}

	id := extractVideoID(u)
	if id == "" {
		return nil, errors.Newf("no video ID in %s", ref)
	}

	return []track.Stub{{
		Platform: platform,
		SourceID: id,
	}}, nil
}

// extractVideoID pulls the video ID out of a watch, shorts or youtu.be URL.
func extractVideoID(u *url.URL) string {
	if strings.HasSuffix(u.Host, "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if strings.HasPrefix(u.Path, "/shorts/") {
		return strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/")
	}
	return ""
}

func hitsToStubs(hits []youtube.Hit, platform track.SourcePlatform) []track.Stub {
	stubs := make([]track.Stub, 0, len(hits))
	for _, h := range hits {
		stubs = append(stubs, track.Stub{
			Platform: platform,
			SourceID: h.VideoID,
			Title:    h.Title,
			Artist:   h.Artist,
		})
	}
	return stubs
}
