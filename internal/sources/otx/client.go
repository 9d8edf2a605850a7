// Package otx queries AlienVault OTX's passive DNS feed for subdomains of
// an apex and merges what it finds into the subdomain inventory.
package otx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/imroc/req/v3"

	"github.com/tbckr/dixcover/internal/apperr"
	"github.com/tbckr/dixcover/internal/httpclient"
)

const baseURL = "https://otx.alienvault.com"

// PassiveDNSRecord is one entry from OTX's passive_dns response.
type PassiveDNSRecord struct {
	Hostname string `json:"hostname"`
	Address  string `json:"address"`
}

type passiveDNSResponse struct {
	PassiveDNS []PassiveDNSRecord `json:"passive_dns"`
}

// Client queries the OTX passive DNS API.
type Client struct {
	http   *req.Client
	apiKey string
	logger *slog.Logger
}

// NewClient builds an OTX client. apiKey must be non-empty; callers gate on
// Service.Enabled before constructing one.
func NewClient(httpClient *req.Client, apiKey string, logger *slog.Logger) *Client {
	return &Client{http: httpClient, apiKey: apiKey, logger: logger}
}

// Subdomains returns the passive DNS records OTX has observed for domain.
// A non-2xx response or decode failure yields an empty slice, not an
// error: a quiet OTX outage should never abort the sibling sources.
func (c *Client) Subdomains(ctx context.Context, domain string) ([]PassiveDNSRecord, error) {
	url := fmt.Sprintf("%s/api/v1/indicators/domain/%s/passive_dns", baseURL, domain)

	resp, err := httpclient.DoWithRetry(ctx, func() (*req.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeader("X-OTX-API-KEY", c.apiKey).
			Get(url)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: otx request for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Error("otx: non-2xx response", "domain", domain, "status", resp.StatusCode)
		return nil, nil
	}
	var parsed passiveDNSResponse
	if err := json.Unmarshal(resp.Bytes(), &parsed); err != nil {
		c.logger.Error("otx: decoding response failed", "domain", domain, "err", err)
		return nil, nil
	}
	return parsed.PassiveDNS, nil
}
