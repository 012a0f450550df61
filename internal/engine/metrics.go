package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	SearchRequests       atomic.Int64
	SearchErrors         atomic.Int64
	SearchRateLimited    atomic.Int64
	ProviderCalls        atomic.Int64
	StreamRequests       atomic.Int64
	StreamErrors         atomic.Int64
	RecommendRequests    atomic.Int64
	RecommendHits        atomic.Int64
	YtDlpInvocations     atomic.Int64
	HistoryAppends       atomic.Int64
	HistoryPersistErrors atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"search_requests":        metrics.SearchRequests.Load(),
		"search_errors":          metrics.SearchErrors.Load(),
		"search_rate_limited":    metrics.SearchRateLimited.Load(),
		"provider_calls":         metrics.ProviderCalls.Load(),
		"stream_requests":        metrics.StreamRequests.Load(),
		"stream_errors":          metrics.StreamErrors.Load(),
		"recommend_requests":     metrics.RecommendRequests.Load(),
		"recommend_hits":         metrics.RecommendHits.Load(),
		"ytdlp_invocations":      metrics.YtDlpInvocations.Load(),
		"history_appends":        metrics.HistoryAppends.Load(),
		"history_persist_errors": metrics.HistoryPersistErrors.Load(),
		"cache_hits":             hits,
		"cache_misses":           misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"search_requests", "search_errors", "search_rate_limited", "provider_calls",
		"stream_requests", "stream_errors",
		"recommend_requests", "recommend_hits",
		"ytdlp_invocations",
		"history_appends", "history_persist_errors",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

func IncrSearchRequests()       { metrics.SearchRequests.Add(1) }
func IncrSearchErrors()         { metrics.SearchErrors.Add(1) }
func IncrSearchRateLimited()    { metrics.SearchRateLimited.Add(1) }
func IncrProviderCalls()        { metrics.ProviderCalls.Add(1) }
func IncrStreamRequests()       { metrics.StreamRequests.Add(1) }
func IncrStreamErrors()         { metrics.StreamErrors.Add(1) }
func IncrRecommendRequests()    { metrics.RecommendRequests.Add(1) }
func IncrRecommendHits()        { metrics.RecommendHits.Add(1) }
func IncrYtDlpInvocations()     { metrics.YtDlpInvocations.Add(1) }
func IncrHistoryAppends()       { metrics.HistoryAppends.Add(1) }
func IncrHistoryPersistErrors() { metrics.HistoryPersistErrors.Add(1) }
