package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/anatolykoptev/go_tunes/internal/history"
	"github.com/anatolykoptev/go_tunes/internal/player"
)

const (
	msgQueryRequired   = "Query parameter is required"
	msgSearchFailed    = "Search failed"
	msgRateLimited     = "Search rate limit exceeded, try again shortly"
	msgInvalidVideoURL = "Invalid video URL"
	msgStreamFailed    = "Streaming failed"
	msgQuotaExceeded   = "API quota exceeded. Try again later."
	msgQueueFull       = "Queue is full (max 10 songs)"
	msgPinsFull        = "Pin limit reached (max 5 songs)"

	copyChunk = 32 * 1024
)

type handlers struct {
	player Player
}

type searchResponse struct {
	Results []player.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	results, err := h.player.Search(r.Context(), r.URL.Query().Get("q"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, searchResponse{Results: results})
	case errors.Is(err, player.ErrBadInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgQueryRequired})
	case errors.Is(err, player.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: msgRateLimited})
	case errors.Is(err, player.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: msgQuotaExceeded})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgSearchFailed})
	}
}

// stream pipes fetcher output to the client, flushing after every chunk.
// Once the first byte is written the status is committed; later failures
// just end the response.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	rc, err := h.player.Stream(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		if errors.Is(err, player.ErrBadInput) {
			writeText(w, http.StatusBadRequest, msgInvalidVideoURL)
			return
		}
		writeText(w, http.StatusInternalServerError, msgStreamFailed)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", "attachment")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rcw := http.NewResponseController(w)
	buf := make([]byte, copyChunk)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				slog.Debug("stream client gone", slog.Any("error", werr))
				return
			}
			_ = rcw.Flush()
		}
		if rerr == io.EOF {
			return
		}
		if rerr != nil {
			slog.Warn("stream ended early", slog.Any("error", rerr))
			return
		}
	}
}

func (h *handlers) recommend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.player.Recommend(r.Context()))
}

func (h *handlers) recent(w http.ResponseWriter, r *http.Request) {
	writeRecords(w, h.player.Recent(player.RecentLimit))
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	writeRecords(w, h.player.History())
}

func writeRecords(w http.ResponseWriter, recs []history.Record) {
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// writeText writes msg as the whole body, with no trailing newline.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json", slog.Any("error", err))
	}
}

type trackRequest struct {
	URL string `json:"url"`
}

// trackURL reads the video URL from a JSON body {"url": ...}, or the url
// query parameter when there is no body.
func trackURL(r *http.Request) string {
	var req trackRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			slog.Debug("track request body", slog.Any("error", err))
		}
	}
	if req.URL == "" {
		req.URL = r.URL.Query().Get("url")
	}
	return req.URL
}

// writeTrackError maps a pin/queue/play failure; fullMsg is used for player.ErrFull.
func writeTrackError(w http.ResponseWriter, err error, fullMsg string) {
	switch {
	case errors.Is(err, player.ErrFull):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fullMsg})
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidVideoURL})
	}
}

type pinsResponse struct {
	Pinned []string `json:"pinned"`
}

func (h *handlers) pins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pinsResponse{Pinned: h.player.Pins()})
}

func (h *handlers) pin(w http.ResponseWriter, r *http.Request) {
	pins, err := h.player.Pin(trackURL(r))
	if err != nil {
		writeTrackError(w, err, msgPinsFull)
		return
	}
	writeJSON(w, http.StatusOK, pinsResponse{Pinned: pins})
}

func (h *handlers) unpin(w http.ResponseWriter, r *http.Request) {
	pins, err := h.player.Unpin(trackURL(r))
	if err != nil {
		writeTrackError(w, err, msgPinsFull)
		return
	}
	writeJSON(w, http.StatusOK, pinsResponse{Pinned: pins})
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.player.State())
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	st, err := h.player.Play(trackURL(r))
	if err != nil {
		writeTrackError(w, err, msgQueueFull)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) enqueue(w http.ResponseWriter, r *http.Request) {
	st, err := h.player.Enqueue(trackURL(r))
	if err != nil {
		writeTrackError(w, err, msgQueueFull)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
