package httpclient

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/dixcover/internal/ratelimit"
)

const (
	// retryAfterFallback is used when Retry-After is absent or unparseable.
	retryAfterFallback = 5 * time.Second
	// retryAfterCap bounds how long a single Retry-After wait can be.
	retryAfterCap = 60 * time.Second
	// maxRetries bounds transport-error retries. 429s are handled separately
	// and do not count against this budget.
	maxRetries = 3
	// retryBaseDelay and retryFactor drive the exponential backoff between
	// transport-error retries: 1.5s, 3s, 6s.
	retryBaseDelay = 1500 * time.Millisecond
	retryFactor    = 2
	// maxRateLimitRetries bounds how many consecutive 429s a single call will
	// absorb before giving up, so a misbehaving upstream can't wedge a caller
	// forever.
	maxRateLimitRetries = 8
)

var pointerToken = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// Sanitize strips pointer-like substrings (e.g. "0xc0001234a0") from an
// error string before it is logged or persisted, matching the original
// service's defense against leaking process memory addresses.
func Sanitize(s string) string {
	return pointerToken.ReplaceAllString(s, "<ptr>")
}

// AttachRateLimit hooks a Limiter onto the client's request pipeline so every
// outbound request is gated by it. Retry behavior is intentionally NOT
// attached here: DoWithRetry implements the spec-specific 429 handling
// (sleep Retry-After without consuming a retry slot), which req's built-in
// common-retry mechanism cannot express.
func AttachRateLimit(client *req.Client, limiter *ratelimit.Limiter) {
	client.OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
		return limiter.Wait(r.Context())
	})
}

// DoWithRetry runs do, retrying transient transport failures with
// exponential backoff (base 1.5s, factor 2, up to 3 retries after the first
// attempt) and HTTP 429
// responses by sleeping the Retry-After duration (capped at 60s) WITHOUT
// consuming a retry slot — a 429 is the remote telling the caller to slow
// down, not a failure the caller caused.
func DoWithRetry(ctx context.Context, do func() (*req.Response, error)) (*req.Response, error) {
	var lastErr error
	rateLimitAttempts := 0

	for attempt := 0; attempt <= maxRetries; {
		resp, err := do()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			if attempt == maxRetries {
				return nil, lastErr
			}
			if !sleepCtx(ctx, backoff(attempt)) {
				return nil, ctx.Err()
			}
			attempt++
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimitAttempts++
			if rateLimitAttempts > maxRateLimitRetries {
				return resp, nil
			}
			if !sleepCtx(ctx, parseRetryAfter(resp.Header.Get("Retry-After"))) {
				return nil, ctx.Err()
			}
			continue // does not consume an attempt
		}

		return resp, nil
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	d := retryBaseDelay
	for i := 0; i < attempt; i++ {
		d *= retryFactor
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// parseRetryAfter parses a Retry-After header value (integer seconds or
// HTTP-date) and returns a capped sleep duration.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return retryAfterFallback
	}
	if secs, err := strconv.Atoi(header); err == nil {
		d := time.Duration(secs) * time.Second
		return min(d, retryAfterCap)
	}
	if t, err := http.ParseTime(header); err == nil {
		d := max(time.Until(t), 0)
		return min(d, retryAfterCap)
	}
	return retryAfterFallback
}
