package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_tunes/internal/engine"
	"github.com/anatolykoptev/go_tunes/internal/engine/sources"
	"github.com/anatolykoptev/go_tunes/internal/history"
	"github.com/anatolykoptev/go_tunes/internal/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	videos []engine.Video
	err    error
}

func (s stubSearcher) Search(context.Context, string, int) ([]engine.Video, error) {
	return s.videos, s.err
}

type stubFetcher struct {
	audio   string
	err     error
	info    *sources.VideoInfo
	metaErr error
}

func (f stubFetcher) Stream(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.audio)), nil
}

func (f stubFetcher) Metadata(context.Context, string) (*sources.VideoInfo, error) {
	return f.info, f.metaErr
}

func lofiVideos() []engine.Video {
	var out []engine.Video
	for i, title := range []string{"A", "B", "C", "D", "E"} {
		out = append(out, engine.NewVideo(string(rune('1'+i)), title, ""))
	}
	return out
}

func newTestServer(t *testing.T, s sources.Searcher, f player.MediaFetcher) (*httptest.Server, *history.Store) {
	t.Helper()
	engine.InitCache("", 0, 0)
	store := history.NewStore(history.NewMemory(), history.DefaultCapacity)
	svc := player.New(s, f, store, player.Options{})
	srv := httptest.NewServer(NewRouter(svc, Options{Metrics: engine.FormatMetrics}))
	t.Cleanup(srv.Close)
	return srv, store
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestSearchEmptyQuery(t *testing.T) {
	srv, store := newTestServer(t, stubSearcher{videos: lofiVideos()}, stubFetcher{})

	resp, body := get(t, srv.URL+"/search?q=")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.NotEmpty(t, e.Error)
	assert.Equal(t, 0, store.Len())
}

func TestSearchReturnsFiveAndRecordsHistory(t *testing.T) {
	srv, store := newTestServer(t, stubSearcher{videos: lofiVideos()}, stubFetcher{})

	resp, body := get(t, srv.URL+"/search?q=lofi")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out searchResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Results, 5)
	assert.Equal(t, player.Result{Title: "A", URL: "https://www.youtube.com/watch?v=1"}, out.Results[0])

	require.Equal(t, 1, store.Len())
	last, _ := store.MostRecent()
	assert.Equal(t, "lofi", last.Query)
	assert.Equal(t, "A", last.Title)
}

func TestSearchProviderFailure(t *testing.T) {
	for name, s := range map[string]stubSearcher{
		"error":      {err: errors.New("quota")},
		"no results": {},
	} {
		t.Run(name, func(t *testing.T) {
			srv, store := newTestServer(t, s, stubFetcher{})
			resp, body := get(t, srv.URL+"/search?q=lofi")
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.JSONEq(t, `{"error":"Search failed"}`, string(body))
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestSearchQuotaExceeded(t *testing.T) {
	quota := fmt.Errorf("youtube data API 403: %w", sources.ErrQuotaExceeded)
	srv, store := newTestServer(t, stubSearcher{err: quota}, stubFetcher{})

	resp, body := get(t, srv.URL+"/search?q=lofi")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"error":"API quota exceeded. Try again later."}`, string(body))
	assert.Equal(t, 0, store.Len())
}

func TestRecommendEmptyHistory(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{}, stubFetcher{})

	resp, body := get(t, srv.URL+"/recommend")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"url":null,"title":null}`, string(body))
}

func TestRecommendAfterSearch(t *testing.T) {
	info := &sources.VideoInfo{RelatedVideos: []sources.RelatedVideo{{ID: "relatedvid1", Title: "Related"}}}
	srv, _ := newTestServer(t, stubSearcher{videos: lofiVideos()}, stubFetcher{info: info})

	get(t, srv.URL+"/search?q=lofi")
	_, body := get(t, srv.URL+"/recommend")
	assert.JSONEq(t, `{"url":"https://www.youtube.com/watch?v=relatedvid1","title":"Related"}`, string(body))
}

func TestStreamInvalidURL(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{}, stubFetcher{audio: "x"})

	resp, body := get(t, srv.URL+"/stream?url=notaurl")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid video URL", string(body))
}

func TestStreamPassesAudioThrough(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{}, stubFetcher{audio: "ID3-some-audio"})

	resp, body := get(t, srv.URL+"/stream?url=https://www.youtube.com/watch?v%3DdQw4w9WgXcQ")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "ID3-some-audio", string(body))
}

func TestStreamFetcherFailure(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{}, stubFetcher{err: errors.New("exec: yt-dlp not found")})

	resp, body := get(t, srv.URL+"/stream?url=https://youtu.be/dQw4w9WgXcQ")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Streaming failed", string(body))
}

func TestRecentMostRecentFirst(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{videos: lofiVideos()}, stubFetcher{})

	_, body := get(t, srv.URL+"/recent")
	assert.JSONEq(t, `[]`, string(body))

	for _, q := range []string{"one", "two", "three", "four", "five", "six"} {
		get(t, srv.URL+"/search?q="+q)
	}

	_, body = get(t, srv.URL+"/recent")
	var recs []history.Record
	require.NoError(t, json.Unmarshal(body, &recs))
	require.Len(t, recs, 5)
	assert.Equal(t, "six", recs[0].Query)
	assert.Equal(t, "two", recs[4].Query)

	_, body = get(t, srv.URL+"/history")
	require.NoError(t, json.Unmarshal(body, &recs))
	require.Len(t, recs, 6)
	assert.Equal(t, "one", recs[0].Query)
}

func TestIndexHealthMetrics(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{}, stubFetcher{})

	resp, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "<title>go_tunes</title>")

	_, body = get(t, srv.URL+"/health")
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	_, body = get(t, srv.URL+"/metrics")
	assert.Contains(t, string(body), "search_requests ")
}

func TestPinRoutes(t *testing.T) {
	srv, store := newTestServer(t, stubSearcher{}, stubFetcher{})

	_, body := get(t, srv.URL+"/pins")
	assert.JSONEq(t, `{"pinned":[]}`, string(body))

	resp, body := post(t, srv.URL+"/pin", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"pinned":["https://www.youtube.com/watch?v=dQw4w9WgXcQ"]}`, string(body))

	resp, body = post(t, srv.URL+"/pin", `{"url":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid video URL"}`, string(body))

	for i := range 4 {
		resp, _ = post(t, srv.URL+"/pin", fmt.Sprintf(`{"url":"https://youtu.be/pinned%05d"}`, i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body = post(t, srv.URL+"/pin", `{"url":"https://youtu.be/onetoomany1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Pin limit reached (max 5 songs)"}`, string(body))

	resp, _ = post(t, srv.URL+"/unpin?url=https://youtu.be/dQw4w9WgXcQ", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = get(t, srv.URL+"/pins")
	assert.NotContains(t, string(body), "dQw4w9WgXcQ")

	assert.Equal(t, 0, store.Len())
}

func TestQueueRoutes(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{}, stubFetcher{})

	_, body := get(t, srv.URL+"/state")
	assert.JSONEq(t, `{"current_url":null,"is_playing":false,"queue":[]}`, string(body))

	for i := range player.MaxQueue {
		resp, _ := post(t, srv.URL+"/queue", fmt.Sprintf(`{"url":"https://youtu.be/queued%05d"}`, i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := post(t, srv.URL+"/queue", `{"url":"https://youtu.be/onetoomany1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Queue is full (max 10 songs)"}`, string(body))

	_, body = post(t, srv.URL+"/next", "")
	var st player.PlayerState
	require.NoError(t, json.Unmarshal(body, &st))
	require.NotNil(t, st.CurrentURL)
	assert.Equal(t, "https://www.youtube.com/watch?v=queued00000", *st.CurrentURL)
	assert.True(t, st.Playing)
	assert.Len(t, st.Queue, player.MaxQueue-1)

	_, body = post(t, srv.URL+"/pause", "")
	require.NoError(t, json.Unmarshal(body, &st))
	assert.False(t, st.Playing)

	_, body = post(t, srv.URL+"/play", `{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", *st.CurrentURL)
	assert.True(t, st.Playing)

	resp, _ = get(t, srv.URL+"/queue")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, ParseOrigins(" https://a.example, ,https://b.example"))
	assert.Nil(t, ParseOrigins(""))
}
