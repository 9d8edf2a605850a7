// Package crtsh queries the crt.sh certificate transparency log and merges
// what it finds into the subdomain inventory, recursing into newly
// discovered names up to a bounded depth.
package crtsh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/dixcover/internal/apperr"
	"github.com/tbckr/dixcover/internal/httpclient"
)

const baseURL = "https://crt.sh/"

// Entry is a single record returned by the crt.sh JSON API.
type Entry struct {
	CommonName   string `json:"common_name"`
	NameValue    string `json:"name_value"`
	NotBefore    string `json:"not_before"`
	NotAfter     string `json:"not_after"`
	EntryTimestp string `json:"entry_timestamp"`
}

// Client queries crt.sh over HTTP.
type Client struct {
	http   *req.Client
	logger *slog.Logger
}

// NewClient builds a crt.sh client around an already-configured req.Client
// (UA rotation, proxy, and rate limiting are wired in by the caller).
func NewClient(httpClient *req.Client, logger *slog.Logger) *Client {
	return &Client{http: httpClient, logger: logger}
}

// Search queries crt.sh for certificates matching domain. On HTTP 502
// (crt.sh's most common transient failure mode under load) it retries up to
// 3 times, 1.5s/3s/6s apart, then yields an empty result; any other non-2xx
// status or a malformed body yields an empty result rather than an error,
// matching the original client's "never let one source's hiccup break the
// scan" stance. Transport errors are retried by httpclient.DoWithRetry and
// returned as an error once its retries are spent.
func (c *Client) Search(ctx context.Context, domain string) ([]Entry, error) {
	const maxAttempts = 4 // the first request plus 3 retries
	const baseDelay = 1500 * time.Millisecond

	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := httpclient.DoWithRetry(ctx, func() (*req.Response, error) {
			return c.http.R().
				SetContext(ctx).
				SetQueryParam("q", domain).
				SetQueryParam("output", "json").
				Get(baseURL)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: crt.sh request for %q: %w", apperr.ErrRequestFailed, domain, err)
		}

		if resp.StatusCode == 502 {
			lastStatus = resp.StatusCode
			c.logger.Warn("crtsh: 502, retrying", "domain", domain, "attempt", attempt, "of", maxAttempts)
			if attempt < maxAttempts {
				delay := time.Duration(math.Pow(2, float64(attempt-1))) * baseDelay
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			c.logger.Error("crtsh: exhausted retries after 502", "domain", domain)
			return nil, nil
		}

		if resp.StatusCode >= 400 {
			c.logger.Error("crtsh: non-2xx response", "domain", domain, "status", resp.StatusCode)
			return nil, nil
		}

		var entries []Entry
		if err := json.Unmarshal(resp.Bytes(), &entries); err != nil {
			c.logger.Error("crtsh: decoding response failed", "domain", domain, "err", err)
			return nil, nil
		}
		return entries, nil
	}
	c.logger.Error("crtsh: exhausted retries", "domain", domain, "last_status", lastStatus)
	return nil, nil
}
