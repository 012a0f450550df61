// Package tuneserver exposes the player operations as MCP tools.
package tuneserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/anatolykoptev/go_tunes/internal/history"
	"github.com/anatolykoptev/go_tunes/internal/player"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Player is the subset of player.Service the tools call.
type Player interface {
	Search(ctx context.Context, query string) ([]player.Result, error)
	Recommend(ctx context.Context) player.Recommendation
	Recent(n int) []history.Record
}

type SearchVideosInput struct {
	Query string `json:"query" jsonschema:"Song, artist, or any free-text YouTube search query"`
}

type SearchVideosOutput struct {
	Query   string          `json:"query"`
	Results []player.Result `json:"results"`
}

type RecommendNextInput struct{}

type RecentSearchesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"How many searches to return, newest first (default 5, max 30)"`
}

type RecentSearchesOutput struct {
	Searches []history.Record `json:"searches"`
}

// RegisterTools registers search_videos, recommend_next and recent_searches.
func RegisterTools(server *mcp.Server, p Player) {
	registerSearchVideos(server, p)
	registerRecommendNext(server, p)
	registerRecentSearches(server, p)
}

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 3

func registerSearchVideos(server *mcp.Server, p Player) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_videos",
		Description: "Search YouTube for a song or video. Returns up to 5 results as {title, url} with canonical watch URLs. The query and its top result are recorded in the search history used by recommend_next.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input SearchVideosInput) (*mcp.CallToolResult, SearchVideosOutput, error) {
		results, err := p.Search(ctx, input.Query)
		if err != nil {
			return nil, SearchVideosOutput{}, toolError(err)
		}
		return nil, SearchVideosOutput{Query: input.Query, Results: results}, nil
	})
}

func registerRecommendNext(server *mcp.Server, p Player) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "recommend_next",
		Description: "Suggest the next track: the first related video of the most recent search's top result. Returns {url: null, title: null} when there is no history or no related video.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ RecommendNextInput) (*mcp.CallToolResult, player.Recommendation, error) {
		return nil, p.Recommend(ctx), nil
	})
}

func registerRecentSearches(server *mcp.Server, p Player) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_searches",
		Description: "List recent searches, newest first, each with query, top result title, url, and timestamp (seconds since epoch).",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, _ *mcp.CallToolRequest, input RecentSearchesInput) (*mcp.CallToolResult, RecentSearchesOutput, error) {
		n := input.Limit
		if n <= 0 {
			n = player.RecentLimit
		}
		n = min(n, history.DefaultCapacity)
		recs := p.Recent(n)
		if recs == nil {
			recs = []history.Record{}
		}
		return nil, RecentSearchesOutput{Searches: recs}, nil
	})
}

func toolError(err error) error {
	switch {
	case errors.Is(err, player.ErrBadInput):
		return fmt.Errorf("query is required")
	case errors.Is(err, player.ErrRateLimited):
		return fmt.Errorf("search rate limit exceeded, try again shortly")
	case errors.Is(err, player.ErrQuotaExceeded):
		return fmt.Errorf("API quota exceeded, try again later")
	default:
		return fmt.Errorf("search failed: %w", err)
	}
}
