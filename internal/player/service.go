// Package player implements the search, stream, recommend, and recent
// operations on top of a search provider, a media fetcher, and the history store.
package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_tunes/internal/engine"
	"github.com/anatolykoptev/go_tunes/internal/engine/sources"
	"github.com/anatolykoptev/go_tunes/internal/history"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxResults = 5
	RecentLimit       = 5

	streamBufferSize     = 32 * 1024
	relatedLookupTimeout = time.Minute
)

// MediaFetcher is the external media downloader (yt-dlp in production).
type MediaFetcher interface {
	Stream(ctx context.Context, videoURL string) (io.ReadCloser, error)
	Metadata(ctx context.Context, videoURL string) (*sources.VideoInfo, error)
}

// Result is one formatted search hit.
type Result struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Recommendation is the suggested next track. Both fields are nil when
// there is nothing to recommend.
type Recommendation struct {
	URL   *string `json:"url"`
	Title *string `json:"title"`
}

func (r Recommendation) Found() bool { return r.URL != nil }

type Options struct {
	// Limiter bounds outbound provider calls. Nil means unlimited.
	Limiter    *rate.Limiter
	MaxResults int
	Now        func() time.Time
}

type Service struct {
	searcher   sources.Searcher
	fetcher    MediaFetcher
	store      *history.Store
	limiter    *rate.Limiter
	maxResults int
	now        func() time.Time
	related    singleflight.Group
	session    session
}

func New(searcher sources.Searcher, fetcher MediaFetcher, store *history.Store, opts Options) *Service {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if store == nil {
		store = history.NewStore(nil, history.DefaultCapacity)
	}
	return &Service{
		searcher:   searcher,
		fetcher:    fetcher,
		store:      store,
		limiter:    opts.Limiter,
		maxResults: opts.MaxResults,
		now:        opts.Now,
	}
}

// Search returns up to MaxResults hits for query and records the top hit in
// history. A history persist failure is logged; the search still succeeds.
func (s *Service) Search(ctx context.Context, query string) ([]Result, error) {
	engine.IncrSearchRequests()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrBadInput)
	}

	videos, err := s.lookup(ctx, query)
	if err != nil {
		engine.IncrSearchErrors()
		return nil, err
	}

	results := make([]Result, 0, min(len(videos), s.maxResults))
	for _, v := range videos {
		if len(results) >= s.maxResults {
			break
		}
		results = append(results, Result{Title: v.Title, URL: v.URL})
	}

	top := results[0]
	rec := history.NewRecord(query, top.Title, top.URL, s.now())
	// The record belongs to a completed search; a client hang-up must not abort the write.
	if err := s.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		engine.IncrHistoryPersistErrors()
		slog.Error("history persist failed", slog.String("query", query), slog.Any("error", err))
	}
	engine.IncrHistoryAppends()

	return results, nil
}

// lookup serves query from the search cache or, on a miss, one provider call.
// Zero videos is an upstream failure.
func (s *Service) lookup(ctx context.Context, query string) ([]engine.Video, error) {
	if videos, ok := engine.CacheGet(ctx, query); ok {
		return videos, nil
	}

	if s.limiter != nil && !s.limiter.Allow() {
		engine.IncrSearchRateLimited()
		return nil, ErrRateLimited
	}

	engine.IncrProviderCalls()
	start := time.Now()
	videos, err := s.searcher.Search(ctx, query, s.maxResults)
	if err != nil {
		slog.Warn("search provider failed", slog.String("query", query), slog.Any("error", err))
		if errors.Is(err, sources.ErrQuotaExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("%w: search: %w", ErrUpstream, err)
	}
	if len(videos) == 0 {
		slog.Warn("search provider returned no results", slog.String("query", query))
		return nil, fmt.Errorf("%w: search: no results", ErrUpstream)
	}
	slog.Debug("search provider ok", slog.String("query", query),
		slog.Int("results", len(videos)), slog.Duration("took", time.Since(start)))

	engine.CacheSet(ctx, query, videos)
	return videos, nil
}

// Stream starts the audio fetch for videoURL and waits for its first byte, so
// a fetcher that fails immediately is reported before any response is written.
// The caller must Close the returned reader.
func (s *Service) Stream(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	engine.IncrStreamRequests()
	videoURL = strings.TrimSpace(videoURL)
	if !sources.IsVideoURL(videoURL) {
		return nil, fmt.Errorf("%w: invalid video URL", ErrBadInput)
	}

	rc, err := s.fetcher.Stream(ctx, videoURL)
	if err != nil {
		engine.IncrStreamErrors()
		slog.Error("stream start failed", slog.String("url", videoURL), slog.Any("error", err))
		return nil, fmt.Errorf("%w: stream: %w", ErrUpstream, err)
	}

	br := bufio.NewReaderSize(rc, streamBufferSize)
	if _, err := br.Peek(1); err != nil {
		rc.Close()
		engine.IncrStreamErrors()
		slog.Error("stream produced no data", slog.String("url", videoURL), slog.Any("error", err))
		return nil, fmt.Errorf("%w: stream: %w", ErrUpstream, err)
	}
	return &bufferedStream{Reader: br, closer: rc}, nil
}

type bufferedStream struct {
	*bufio.Reader
	closer io.Closer
}

func (b *bufferedStream) Close() error { return b.closer.Close() }

// Recommend suggests the first related video of the most recent search's top
// hit. Every failure degrades to an empty Recommendation.
func (s *Service) Recommend(ctx context.Context) Recommendation {
	engine.IncrRecommendRequests()
	last, ok := s.store.MostRecent()
	if !ok || last.URL == "" {
		return Recommendation{}
	}

	// Shared by every caller on the same URL: detached from any one caller's ctx.
	ch := s.related.DoChan(last.URL, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), relatedLookupTimeout)
		defer cancel()
		info, err := s.fetcher.Metadata(lctx, last.URL)
		if err != nil {
			return nil, err
		}
		next, ok := info.FirstRelated()
		if !ok {
			return nil, nil
		}
		return next, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Recommendation{}
	}
	if res.Err != nil {
		slog.Warn("recommend lookup failed", slog.String("url", last.URL), slog.Any("error", res.Err))
		return Recommendation{}
	}
	v, shared := res.Val, res.Shared
	next, ok := v.(engine.Video)
	if !ok {
		return Recommendation{}
	}
	engine.IncrRecommendHits()
	slog.Debug("recommend", slog.String("from", last.URL), slog.String("next", next.URL), slog.Bool("shared", shared))
	return Recommendation{URL: &next.URL, Title: &next.Title}
}

// Recent returns up to n history records, most recent first.
func (s *Service) Recent(n int) []history.Record {
	recs := s.store.RecentN(n)
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs
}

// History returns the whole history, oldest first.
func (s *Service) History() []history.Record {
	return s.store.All()
}
