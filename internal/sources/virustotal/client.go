// Package virustotal queries VirusTotal's subdomain relationships endpoint,
// paginating until the server-reported count is exhausted, and merges what
// it finds into the subdomain inventory.
package virustotal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imroc/req/v3"

	"github.com/tbckr/dixcover/internal/apperr"
	"github.com/tbckr/dixcover/internal/httpclient"
)

const (
	baseURL  = "https://www.virustotal.com"
	pageSize = 40
)

// Page is one page of VirusTotal's subdomain relationships response.
type Page struct {
	Data []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Client queries VirusTotal's domain relationships API.
type Client struct {
	http   *req.Client
	apiKey string
	logger *slog.Logger
}

// NewClient builds a VirusTotal client. apiKey must be non-empty; callers
// gate on Service.Enabled before constructing one.
func NewClient(httpClient *req.Client, apiKey string, logger *slog.Logger) *Client {
	return &Client{http: httpClient, apiKey: apiKey, logger: logger}
}

// Page fetches one page of subdomains for domain. When nextURL is non-empty
// it is requested directly (VirusTotal's own absolute link, already carrying
// the cursor), otherwise the first page is requested with a fixed limit.
func (c *Client) Page(ctx context.Context, domain, nextURL string) (Page, error) {
	url := nextURL
	if url == "" {
		url = fmt.Sprintf("%s/api/v3/domains/%s/relationships/subdomains", baseURL, domain)
	}

	var parsed Page
	resp, err := httpclient.DoWithRetry(ctx, func() (*req.Response, error) {
		r := c.http.R().
			SetContext(ctx).
			SetHeader("x-apikey", c.apiKey).
			SetHeader("accept", "application/json").
			SetSuccessResult(&parsed)
		if nextURL == "" {
			r = r.SetQueryParam("limit", fmt.Sprintf("%d", pageSize))
		}
		return r.Get(url)
	})
	if err != nil {
		return Page{}, fmt.Errorf("%w: virustotal request for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Error("virustotal: non-2xx response", "domain", domain, "status", resp.StatusCode)
		return Page{}, nil
	}
	return parsed, nil
}
