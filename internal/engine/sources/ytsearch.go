package sources

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/go_tunes/internal/engine"
	"github.com/raitonoberu/ytsearch"
)

// LibrarySearcher searches through the ytsearch library (innertube search
// without an API key). It is the default provider.
type LibrarySearcher struct{}

type ytsearchResult struct {
	videos []engine.Video
	err    error
}

// Search fetches the first result page. ytsearch has no context support, so
// the call runs in a goroutine and is abandoned if ctx ends first.
func (LibrarySearcher) Search(ctx context.Context, query string, limit int) ([]engine.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan ytsearchResult, 1)
	go func() {
		page, err := ytsearch.VideoSearch(query).Next()
		if err != nil {
			done <- ytsearchResult{err: fmt.Errorf("ytsearch: %w", err)}
			return
		}
		videos := make([]engine.Video, 0, limit)
		for _, v := range page.Videos {
			if len(videos) >= limit {
				break
			}
			if v.ID == "" {
				continue
			}
			videos = append(videos, engine.NewVideo(v.ID, v.Title, v.Channel.Title))
		}
		done <- ytsearchResult{videos: videos}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.videos, res.err
	}
}
