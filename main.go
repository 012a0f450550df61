// go_tunes: YouTube search, audio streaming and next-track recommendation.
//
// Serves a small web player and its JSON API over HTTP. When MCP_PORT is set,
// the same search, recommend and recent-history operations are also exposed
// as MCP tools.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/anatolykoptev/go_tunes/internal/engine"
	"github.com/anatolykoptev/go_tunes/internal/engine/sources"
	"github.com/anatolykoptev/go_tunes/internal/history"
	"github.com/anatolykoptev/go_tunes/internal/httpapi"
	"github.com/anatolykoptev/go_tunes/internal/player"
	"github.com/anatolykoptev/go_tunes/internal/tuneserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/time/rate"
)

var (
	version = "dev"
	port    = env.Str("PORT", "5000")
	mcpPort = env.Str("MCP_PORT", "")
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	initEngine()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openHistory(ctx)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("history close failed", slog.Any("error", err))
		}
	}()

	ytdlp := sources.NewYtDlp(engine.Cfg.YtDlpPath)
	if err := ytdlp.LookPath(); err != nil {
		slog.Warn("yt-dlp not found, stream and recommend will fail",
			slog.String("path", ytdlp.Path), slog.Any("error", err))
	}

	searcher, err := sources.NewSearcher(engine.Cfg.SearchProvider, ytdlp)
	if err != nil {
		slog.Warn("search provider unavailable, using ytsearch",
			slog.String("provider", engine.Cfg.SearchProvider), slog.Any("error", err))
		searcher = sources.LibrarySearcher{}
	}

	svc := player.New(searcher, ytdlp, store, player.Options{
		Limiter:    searchLimiter(),
		MaxResults: engine.Cfg.MaxResults,
	})

	srv := &http.Server{
		Handler: httpapi.NewRouter(svc, httpapi.Options{
			AllowedOrigins: httpapi.ParseOrigins(env.Str("ALLOWED_ORIGINS", "*")),
			Metrics:        engine.FormatMetrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: /stream responses last as long as the track.
	}
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		slog.Error("http listen failed", slog.String("port", port), slog.Any("error", err))
		exitCode = 1
		return
	}
	slog.Info("starting go_tunes",
		slog.String("port", port),
		slog.String("provider", engine.Cfg.SearchProvider),
		slog.String("version", version),
	)

	var mcpFn func() error
	if mcpPort != "" {
		mcpFn = func() error { return runMCP(svc) }
	}
	if err := serve(ctx, srv, ln, mcpFn); err != nil {
		slog.Error("http server failed", slog.Any("error", err))
		exitCode = 1
		return
	}
	slog.Info("server shut down")
}

// serve runs the HTTP API on ln until ctx ends or the server fails, then shuts
// it down. side, when set, runs alongside (the MCP server); its failure is
// logged and the HTTP API keeps serving.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, side func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		httpErr <- err
		cancel()
	}()
	if side != nil {
		go func() {
			if err := side(); err != nil {
				slog.Error("mcp server failed, HTTP API still serving", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", slog.Any("error", err))
	}
	return <-httpErr
}

// runMCP serves the MCP tools until the MCP server exits.
func runMCP(svc *player.Service) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_tunes",
		Version: version,
	}, nil)

	tuneserver.RegisterTools(server, svc)
	slog.Info("tools registered", slog.Int("count", tuneserver.ToolCount), slog.String("mcp_port", mcpPort))

	return mcpserver.Run(server, mcpserver.Config{
		Name:         "go_tunes",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 120 * time.Second,
		Metrics:      engine.FormatMetrics,
	})
}

func initEngine() {
	c := engine.Config{
		SearchProvider:        env.Str("SEARCH_PROVIDER", sources.ProviderYTSearch),
		YouTubeAPIKey:         env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		YtDlpPath:             env.Str("YTDLP_PATH", "yt-dlp"),
		MaxResults:            player.DefaultMaxResults,
		FetchTimeout:          env.Duration("FETCH_TIMEOUT", 15*time.Second),
		CacheMaxEntries:       env.Int("CACHE_MAX_ENTRIES", 500),
	}
	c.HTTPClient = &http.Client{
		Timeout: c.FetchTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}

	// Browser client for the scrape provider (optional proxy pool).
	if c.SearchProvider == sources.ProviderScrape {
		opts := []stealth.ClientOption{stealth.WithTimeout(15)}
		if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
			pool, err := proxypool.NewWebshare(apiKey)
			if err != nil {
				slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
			} else {
				opts = append(opts, stealth.WithProxyPool(pool))
				slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
			}
		}
		bc, err := stealth.NewClient(opts...)
		if err != nil {
			slog.Warn("stealth browser client init failed, scraping with net/http", slog.Any("error", err))
		} else {
			c.BrowserClient = bc
			slog.Info("stealth browser client initialized")
		}
	}

	engine.Init(c)

	engine.InitCache(env.Str("REDIS_URL", ""), env.Duration("CACHE_TTL", 15*time.Minute), c.CacheMaxEntries)
}

// openHistory never fails: a backend that cannot be opened degrades to
// memory-only history.
func openHistory(ctx context.Context) *history.Store {
	cfg := history.BackendConfig{
		Backend:     env.Str("HISTORY_BACKEND", history.BackendFile),
		File:        env.Str("HISTORY_FILE", history.DefaultFile),
		SQLitePath:  env.Str("HISTORY_SQLITE_PATH", "search_history.db"),
		DatabaseURL: env.Str("DATABASE_URL", ""),
	}
	p, err := history.OpenPersister(ctx, cfg)
	if err != nil {
		slog.Warn("history backend unavailable, keeping history in memory only",
			slog.String("backend", cfg.Backend), slog.Any("error", err))
		p = history.NewMemory()
	}
	store := history.Open(ctx, p, history.DefaultCapacity)
	slog.Info("history loaded", slog.String("backend", cfg.Backend), slog.Int("records", store.Len()))
	return store
}

// searchLimiter bounds outbound provider calls. SEARCH_RPS <= 0 disables it.
func searchLimiter() *rate.Limiter {
	rps := env.Float("SEARCH_RPS", 5)
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), max(env.Int("SEARCH_BURST", 10), 1))
}
