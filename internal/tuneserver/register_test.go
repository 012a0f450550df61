package tuneserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/anatolykoptev/go_tunes/internal/history"
	"github.com/anatolykoptev/go_tunes/internal/player"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	results []player.Result
	err     error
	rec     player.Recommendation
	recent  []history.Record
	lastN   int
}

func (f *fakePlayer) Search(_ context.Context, q string) ([]player.Result, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: empty", player.ErrBadInput)
	}
	return f.results, f.err
}

func (f *fakePlayer) Recommend(context.Context) player.Recommendation { return f.rec }

func (f *fakePlayer) Recent(n int) []history.Record {
	f.lastN = n
	return f.recent
}

func connect(t *testing.T, p Player) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "go_tunes", Version: "test"}, nil)
	RegisterTools(server, p)

	clientT, serverT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func structured[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestRegisterTools(t *testing.T) {
	cs := connect(t, &fakePlayer{})

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_videos", "recommend_next", "recent_searches"}, names)
	assert.Len(t, names, ToolCount)
}

func TestSearchVideosTool(t *testing.T) {
	p := &fakePlayer{results: []player.Result{{Title: "A", URL: "https://www.youtube.com/watch?v=1"}}}
	cs := connect(t, p)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "search_videos", Arguments: map[string]any{"query": "lofi"}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	out := structured[SearchVideosOutput](t, res)
	assert.Equal(t, "lofi", out.Query)
	assert.Equal(t, p.results, out.Results)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "search_videos", Arguments: map[string]any{"query": ""}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRecommendNextTool(t *testing.T) {
	url, title := "https://www.youtube.com/watch?v=2", "B"
	cs := connect(t, &fakePlayer{rec: player.Recommendation{URL: &url, Title: &title}})

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "recommend_next", Arguments: map[string]any{}})
	require.NoError(t, err)
	out := structured[map[string]any](t, res)
	assert.Equal(t, url, out["url"])
	assert.Equal(t, title, out["title"])
}

func TestRecentSearchesTool(t *testing.T) {
	p := &fakePlayer{recent: []history.Record{{Query: "q", Title: "T", URL: "u", Timestamp: "1.000000"}}}
	cs := connect(t, p)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "recent_searches", Arguments: map[string]any{}})
	require.NoError(t, err)
	out := structured[RecentSearchesOutput](t, res)
	assert.Equal(t, p.recent, out.Searches)
	assert.Equal(t, player.RecentLimit, p.lastN)

	_, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "recent_searches", Arguments: map[string]any{"limit": 100}})
	require.NoError(t, err)
	assert.Equal(t, history.DefaultCapacity, p.lastN)
}

func TestToolError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: empty", player.ErrBadInput), "query is required"},
		{player.ErrRateLimited, "search rate limit exceeded, try again shortly"},
		{fmt.Errorf("%w: 403", player.ErrQuotaExceeded), "API quota exceeded, try again later"},
		{fmt.Errorf("%w: boom", player.ErrUpstream), "search failed: upstream failure: boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toolError(tt.err).Error())
	}
}
