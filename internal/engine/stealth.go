package engine

import (
	"context"
	"net/http"

	stealth "github.com/anatolykoptev/go-stealth"
)

// SingleAttempt makes RetryHTTP issue exactly one request. External calls
// are never retried; a failed search is reported to the caller as-is.
var SingleAttempt = func() stealth.RetryConfig {
	rc := stealth.DefaultRetryConfig
	rc.MaxRetries = 0
	return rc
}()

// BrowserClient sends requests with a browser TLS fingerprint, optionally through a proxy pool.
type BrowserClient = stealth.BrowserClient

func ChromeHeaders() map[string]string { return stealth.ChromeHeaders() }
func RandomUserAgent() string          { return stealth.RandomUserAgent() }
func IsRetryableStatus(code int) bool  { return stealth.IsRetryableStatus(code) }

// DoOnce sends the request built by fn once, through the stealth transport helpers.
func DoOnce(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	return stealth.RetryHTTP(ctx, SingleAttempt, fn)
}
