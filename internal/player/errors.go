package player

import "errors"

// Sentinel errors classified by the HTTP and MCP surfaces with errors.Is.
// ErrRateLimited is the local limiter; ErrQuotaExceeded is the provider refusing.
var (
	ErrBadInput      = errors.New("bad input")
	ErrUpstream      = errors.New("upstream failure")
	ErrRateLimited   = errors.New("search rate limit exceeded")
	ErrQuotaExceeded = errors.New("search quota exceeded")
	ErrFull          = errors.New("list full")
)
