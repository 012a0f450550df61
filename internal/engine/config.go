package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	SearchProvider        string // ytsearch | dataapi | scrape | ytdlp
	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string
	YtDlpPath             string
	MaxResults            int
	FetchTimeout          time.Duration
	CacheMaxEntries       int
	HTTPClient            *http.Client
	BrowserClient         *BrowserClient // nil: scrape provider uses HTTPClient
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.FetchTimeout}
	}
	if c.YtDlpPath == "" {
		c.YtDlpPath = "yt-dlp"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	cfg = c
	Cfg = &cfg
}
