package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/anatolykoptev/go_tunes/internal/engine"
)

// YouTube search: Data API v3 with a key, or ytInitialData scraping without one.

const (
	ytDataAPIBase       = "https://www.googleapis.com/youtube/v3"
	ytResultsBase       = "https://www.youtube.com"
	ytInitialDataMarker = "var ytInitialData = "
	ytSearchFilter      = "EgIQAQ%3D%3D" // videos-only filter param
)

// --- YouTube Data API v3 types ---

type ytDataSearchResp struct {
	Items []ytDataItem `json:"items"`
}

type ytDataItem struct {
	ID      ytDataItemID      `json:"id"`
	Snippet ytDataItemSnippet `json:"snippet"`
}

type ytDataItemID struct {
	VideoID string `json:"videoId"`
}

type ytDataItemSnippet struct {
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle"`
}

// --- ytInitialData scraping types ---

type ytVideoRenderer struct {
	VideoID string `json:"videoId"`
	Title   struct {
		Runs []struct{ Text string } `json:"runs"`
	} `json:"title"`
	OwnerText struct {
		Runs []struct{ Text string } `json:"runs"`
	} `json:"ownerText"`
}

// DataAPISearcher searches via YouTube Data API v3.
type DataAPISearcher struct {
	BaseURL string
	keys    []string
}

// NewDataAPISearcher uses key first and fallback (if set) when the first key fails.
func NewDataAPISearcher(key, fallback string) *DataAPISearcher {
	keys := []string{key}
	if fallback != "" {
		keys = append(keys, fallback)
	}
	return &DataAPISearcher{BaseURL: ytDataAPIBase, keys: keys}
}

// Search tries each configured key once, in order. Quota errors (403) on the
// primary key are the usual reason the fallback gets used; when every key is
// out of quota the error wraps ErrQuotaExceeded.
func (s *DataAPISearcher) Search(ctx context.Context, query string, limit int) ([]engine.Video, error) {
	var lastErr error
	for _, key := range s.keys {
		videos, err := s.search(ctx, query, limit, key)
		if err == nil {
			return videos, nil
		}
		lastErr = err
		slog.Debug("youtube data API key failed, trying fallback", slog.Any("err", err))
	}
	return nil, lastErr
}

func (s *DataAPISearcher) search(ctx context.Context, query string, limit int, apiKey string) ([]engine.Video, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("key", apiKey)

	apiURL := s.BaseURL + "/search?" + params.Encode()
	resp, err := engine.DoOnce(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("youtube data API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("youtube data API %d: %s: %w", resp.StatusCode, string(body), ErrQuotaExceeded)
		}
		return nil, fmt.Errorf("youtube data API %d: %s", resp.StatusCode, string(body))
	}

	var result ytDataSearchResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode youtube data API: %w", err)
	}

	videos := make([]engine.Video, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, engine.NewVideo(item.ID.VideoID, item.Snippet.Title, item.Snippet.ChannelTitle))
		if len(videos) >= limit {
			break
		}
	}
	return videos, nil
}

// ScrapeSearcher scrapes the public results page and parses ytInitialData.
type ScrapeSearcher struct {
	BaseURL string
	// Browser, when set, fetches the page with a browser TLS fingerprint.
	Browser *engine.BrowserClient
}

func NewScrapeSearcher() *ScrapeSearcher {
	return &ScrapeSearcher{BaseURL: ytResultsBase, Browser: engine.Cfg.BrowserClient}
}

func (s *ScrapeSearcher) Search(ctx context.Context, query string, limit int) ([]engine.Video, error) {
	searchURL := s.BaseURL + "/results?search_query=" + url.QueryEscape(query) + "&sp=" + ytSearchFilter

	var body []byte
	var err error
	if s.Browser != nil {
		body, err = s.fetchBrowser(ctx, searchURL)
	} else {
		body, err = s.fetchHTTP(ctx, searchURL)
	}
	if err != nil {
		return nil, err
	}

	data, err := findInitialData(body)
	if err != nil {
		return nil, err
	}
	return extractVideosFromInitialData(data, limit), nil
}

// fetchBrowser checks ctx only before the request: BrowserClient.Do takes no
// context, so a fetch already in flight runs to the client timeout.
func (s *ScrapeSearcher) fetchBrowser(ctx context.Context, searchURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	headers := engine.ChromeHeaders()
	headers["accept-language"] = "en-US,en;q=0.9"
	headers["referer"] = ytResultsBase + "/"

	data, _, status, err := s.Browser.Do(http.MethodGet, searchURL, headers, nil)
	if err != nil {
		return nil, fmt.Errorf("youtube search page: browser fetch: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("youtube search page: HTTP %d", status)
	}
	return data, nil
}

func (s *ScrapeSearcher) fetchHTTP(ctx context.Context, searchURL string) ([]byte, error) {
	resp, err := engine.DoOnce(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("youtube search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube search page: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read youtube search response: %w", err)
	}
	return body, nil
}

// findInitialData locates the inline script assigning ytInitialData and
// returns the JSON object it assigns.
func findInitialData(page []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse youtube search page: %w", err)
	}
	var data []byte
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		idx := strings.Index(text, ytInitialDataMarker)
		if idx < 0 {
			return true
		}
		data = extractJSON([]byte(text[idx+len(ytInitialDataMarker):]))
		return data == nil
	})
	if data == nil {
		return nil, fmt.Errorf("ytInitialData not found in YouTube search response")
	}
	return data, nil
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// extractVideosFromInitialData recursively walks ytInitialData JSON for videoRenderer entries.
func extractVideosFromInitialData(data []byte, limit int) []engine.Video {
	var results []engine.Video
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(results) >= limit {
			return
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			if raw, ok := obj["videoRenderer"]; ok {
				var vr ytVideoRenderer
				if err := json.Unmarshal(raw, &vr); err == nil && vr.VideoID != "" {
					title := ""
					if len(vr.Title.Runs) > 0 {
						title = vr.Title.Runs[0].Text
					}
					channel := ""
					if len(vr.OwnerText.Runs) > 0 {
						channel = vr.OwnerText.Runs[0].Text
					}
					results = append(results, engine.NewVideo(vr.VideoID, title, channel))
					return
				}
			}
			// Map iteration order is random; walk the known container keys
			// first so results keep page order.
			for _, k := range []string{"contents", "twoColumnSearchResultsRenderer", "primaryContents",
				"sectionListRenderer", "itemSectionRenderer"} {
				if child, ok := obj[k]; ok {
					walk(child)
					delete(obj, k)
				}
			}
			for _, child := range obj {
				if len(results) >= limit {
					return
				}
				walk(child)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, item := range arr {
				if len(results) >= limit {
					return
				}
				walk(item)
			}
		}
	}
	walk(data)
	return results
}
