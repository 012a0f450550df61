package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"

	"github.com/anatolykoptev/go_tunes/internal/engine"
)

// YouTube Innertube /next endpoint: the "up next" panel of a watch page.
// Used when yt-dlp metadata carries no related_videos.

const (
	ytNextURL    = "https://www.youtube.com/youtubei/v1/next"
	ytWebVersion = "2.20250222.10.00"
)

type ytWebClientCtx struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	VisitorData   string `json:"visitorData,omitempty"`
	Hl            string `json:"hl,omitempty"`
	Gl            string `json:"gl,omitempty"`
}

type ytNextReq struct {
	VideoID string         `json:"videoId"`
	Context map[string]any `json:"context"`
}

type ytTextRuns struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t ytTextRuns) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	if len(t.Runs) > 0 {
		return t.Runs[0].Text
	}
	return ""
}

type ytCompactVideo struct {
	VideoID string     `json:"videoId"`
	Title   ytTextRuns `json:"title"`
}

type ytLockup struct {
	ContentID   string `json:"contentId"`
	ContentType string `json:"contentType"`
	Metadata    struct {
		LockupMetadataViewModel struct {
			Title struct {
				Content string `json:"content"`
			} `json:"title"`
		} `json:"lockupMetadataViewModel"`
	} `json:"metadata"`
}

// generateVisitorData creates a random 11-char visitor ID for Innertube requests.
func generateVisitorData() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	b := make([]byte, 11)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))] //nolint:gosec // non-cryptographic use
	}
	return string(b)
}

func ytWebContext(visitorData string) map[string]any {
	return map[string]any{
		"client": ytWebClientCtx{
			ClientName:    "WEB",
			ClientVersion: ytWebVersion,
			VisitorData:   visitorData,
			Hl:            "en",
			Gl:            "US",
		},
	}
}

// postInnerTubeWEB POSTs to an Innertube endpoint with WEB client headers, once.
func postInnerTubeWEB(ctx context.Context, endpoint string, payload any, visitorData string) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := engine.DoOnce(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?prettyPrint=false", bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "*/*")
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("X-Youtube-Client-Name", "1")
		req.Header.Set("X-Youtube-Client-Version", ytWebVersion)
		req.Header.Set("X-Goog-Visitor-Id", visitorData)
		req.Header.Set("Origin", "https://www.youtube.com")
		req.Header.Set("Referer", "https://www.youtube.com/")
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("innertube WEB [%s]: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("innertube HTTP %d: %s", resp.StatusCode, snippet)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 3*1024*1024))
}

// fetchNextRelated asks /next for the up-next list of videoID.
func fetchNextRelated(ctx context.Context, endpoint, videoID string, limit int) ([]RelatedVideo, error) {
	visitor := generateVisitorData()
	body, err := postInnerTubeWEB(ctx, endpoint, ytNextReq{
		VideoID: videoID,
		Context: ytWebContext(visitor),
	}, visitor)
	if err != nil {
		return nil, err
	}
	return extractRelatedFromNext(body, videoID, limit), nil
}

// extractRelatedFromNext walks a /next response for compactVideoRenderer
// (older layout) and lockupViewModel (newer layout) entries, skipping self.
func extractRelatedFromNext(data []byte, selfID string, limit int) []RelatedVideo {
	var out []RelatedVideo
	seen := map[string]bool{selfID: true}
	add := func(id, title string) {
		if id == "" || seen[id] || len(out) >= limit {
			return
		}
		seen[id] = true
		out = append(out, RelatedVideo{ID: id, Title: title, URL: engine.WatchURL(id)})
	}

	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(out) >= limit {
			return
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			if raw, ok := obj["compactVideoRenderer"]; ok {
				var cv ytCompactVideo
				if json.Unmarshal(raw, &cv) == nil {
					add(cv.VideoID, cv.Title.String())
				}
				return
			}
			if raw, ok := obj["lockupViewModel"]; ok {
				var lv ytLockup
				if json.Unmarshal(raw, &lv) == nil && (lv.ContentType == "" || lv.ContentType == "LOCKUP_CONTENT_TYPE_VIDEO") {
					add(lv.ContentID, lv.Metadata.LockupMetadataViewModel.Title.Content)
				}
				return
			}
			// Walk the results container first so page order wins over map order.
			if child, ok := obj["contents"]; ok {
				walk(child)
				delete(obj, "contents")
			}
			for _, child := range obj {
				walk(child)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, item := range arr {
				walk(item)
			}
		}
	}
	walk(data)
	return out
}
