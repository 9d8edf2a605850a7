// Package shodan queries Shodan's DNS domain endpoint for subdomain labels
// of an apex and merges what it finds into the subdomain inventory.
package shodan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imroc/req/v3"

	"github.com/tbckr/dixcover/internal/apperr"
	"github.com/tbckr/dixcover/internal/httpclient"
)

const baseURL = "https://api.shodan.io"

type domainResponse struct {
	Subdomains []string `json:"subdomains"`
}

// Client queries Shodan's DNS domain API.
type Client struct {
	http   *req.Client
	apiKey string
	logger *slog.Logger
}

// NewClient builds a Shodan client. apiKey must be non-empty; callers gate
// on Service.Enabled before constructing one.
func NewClient(httpClient *req.Client, apiKey string, logger *slog.Logger) *Client {
	return &Client{http: httpClient, apiKey: apiKey, logger: logger}
}

// Subdomains returns the left-hand labels Shodan reports for domain (e.g.
// "www" for "www.example.com" — callers reconstruct the full name).
func (c *Client) Subdomains(ctx context.Context, domain string) ([]string, error) {
	url := fmt.Sprintf("%s/dns/domain/%s", baseURL, domain)

	var parsed domainResponse
	resp, err := httpclient.DoWithRetry(ctx, func() (*req.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParam("key", c.apiKey).
			SetSuccessResult(&parsed).
			Get(url)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: shodan request for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Error("shodan: non-2xx response", "domain", domain, "status", resp.StatusCode)
		return nil, nil
	}
	return parsed.Subdomains, nil
}
