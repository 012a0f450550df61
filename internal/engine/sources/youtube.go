package sources

// YouTube implementation is split across files by responsibility:
//   youtube.go: URL validation, video id extraction, provider selection
//   youtube_search.go: Data API v3 search and ytInitialData scraping
//   ytsearch.go: search through the ytsearch library
//   ytdlp.go: yt-dlp streaming and metadata lookup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_tunes/internal/engine"
)

// Provider names accepted by NewSearcher.
const (
	ProviderYTSearch = "ytsearch"
	ProviderDataAPI  = "dataapi"
	ProviderScrape   = "scrape"
	ProviderYtDlp    = "ytdlp"
)

// ErrQuotaExceeded marks a provider refusing further searches for now
// (Data API 403 quotaExceeded, or 429).
var ErrQuotaExceeded = errors.New("search quota exceeded")

// Searcher finds candidate videos for a text query. Implementations make a
// single attempt and return at most limit videos.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]engine.Video, error)
}

var videoIDRE = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|shorts/|embed/|live/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)

var videoHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// ExtractVideoID pulls the 11-char video ID from any YouTube URL format.
func ExtractVideoID(rawURL string) string {
	m := videoIDRE.FindStringSubmatch(rawURL)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}

// IsVideoURL reports whether rawURL is an http(s) YouTube URL naming a video.
func IsVideoURL(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if !videoHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	return ExtractVideoID(rawURL) != ""
}

// NewSearcher returns the search provider registered under name.
// An empty name selects the ytsearch library.
func NewSearcher(name string, ytdlp *YtDlp) (Searcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProviderYTSearch:
		return LibrarySearcher{}, nil
	case ProviderDataAPI:
		if engine.Cfg.YouTubeAPIKey == "" {
			return nil, errors.New("dataapi provider requires YOUTUBE_API_KEY")
		}
		return NewDataAPISearcher(engine.Cfg.YouTubeAPIKey, engine.Cfg.YouTubeAPIKeyFallback), nil
	case ProviderScrape:
		return NewScrapeSearcher(), nil
	case ProviderYtDlp:
		if ytdlp == nil {
			return nil, errors.New("ytdlp provider requires a yt-dlp binary")
		}
		return ytdlp, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q (valid: ytsearch, dataapi, scrape, ytdlp)", name)
	}
}
