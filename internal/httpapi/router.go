// Package httpapi exposes the player operations over HTTP.
package httpapi

import (
	"context"
	"embed"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go_tunes/internal/history"
	"github.com/anatolykoptev/go_tunes/internal/player"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

//go:embed static/index.html
var staticFS embed.FS

// Player is the subset of player.Service the handlers call.
type Player interface {
	Search(ctx context.Context, query string) ([]player.Result, error)
	Stream(ctx context.Context, videoURL string) (io.ReadCloser, error)
	Recommend(ctx context.Context) player.Recommendation
	Recent(n int) []history.Record
	History() []history.Record

	Pins() []string
	Pin(videoURL string) ([]string, error)
	Unpin(videoURL string) ([]string, error)

	State() player.PlayerState
	Play(videoURL string) (player.PlayerState, error)
	Pause() player.PlayerState
	Resume() player.PlayerState
	Enqueue(videoURL string) (player.PlayerState, error)
	Next() player.PlayerState
}

type Options struct {
	AllowedOrigins []string
	// Metrics renders the /metrics body. Nil disables the endpoint.
	Metrics func() string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(p Player, opts Options) http.Handler {
	h := &handlers{player: p}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Range"},
		MaxAge:         300,
	}))

	r.Get("/", h.index)
	r.Get("/search", h.search)
	r.Get("/stream", h.stream)
	r.Get("/recommend", h.recommend)
	r.Get("/recent", h.recent)
	r.Get("/history", h.history)

	r.Get("/pins", h.pins)
	r.Post("/pin", h.pin)
	r.Post("/unpin", h.unpin)

	r.Get("/state", h.state)
	r.Post("/play", h.play)
	r.Post("/pause", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, http.StatusOK, h.player.Pause()) })
	r.Post("/resume", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, http.StatusOK, h.player.Resume()) })
	r.Post("/queue", h.enqueue)
	r.Post("/next", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, http.StatusOK, h.player.Next()) })
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			io.WriteString(w, opts.Metrics())
		})
	}
	return r
}

// ParseOrigins splits a comma-separated origin list, dropping blanks.
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// requestLogger writes one slog line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			slog.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("took", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
