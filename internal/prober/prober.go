// Package prober determines whether a subdomain serves HTTP traffic. Any
// HTTP response — including 4xx and 5xx — counts as reachable; only
// transport-level failures (connection refused, DNS failure, timeout) count
// as unreachable.
package prober

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/dixcover/internal/httpclient"
)

// DefaultPorts is tried, in order, after the default https/http ports fail.
var DefaultPorts = []int{8443, 8080, 8000, 3000}

// Result is the outcome of probing one subdomain.
type Result struct {
	Subdomain  string
	Reachable  bool
	StatusCode *int
	Error      string
	ProbedAt   time.Time
}

// Prober issues HEAD-then-GET requests against a subdomain across a fixed
// sequence of schemes and ports, stopping at the first reachable one.
type Prober struct {
	http   *req.Client
	logger *slog.Logger
	ports  []int
}

// New builds a Prober using DefaultPorts.
func New(httpClient *req.Client, logger *slog.Logger) *Prober {
	return &Prober{http: httpClient, logger: logger, ports: DefaultPorts}
}

// NewWithPorts builds a Prober trying the given ports instead of DefaultPorts.
func NewWithPorts(httpClient *req.Client, logger *slog.Logger, ports []int) *Prober {
	return &Prober{http: httpClient, logger: logger, ports: ports}
}

type attempt struct {
	scheme string
	port   int // 0 means default port for the scheme
}

// Probe tries https, then http, at the default port, then each configured
// port with https before http, returning on the first reachable response.
func (p *Prober) Probe(ctx context.Context, subdomain string) Result {
	probedAt := time.Now()

	attempts := make([]attempt, 0, 2+2*len(p.ports))
	attempts = append(attempts, attempt{"https", 0}, attempt{"http", 0})
	for _, port := range p.ports {
		attempts = append(attempts, attempt{"https", port}, attempt{"http", port})
	}

	var lastErr string
	for _, a := range attempts {
		url := buildURL(a.scheme, subdomain, a.port)
		status, err := p.tryURL(ctx, url)
		if err != nil {
			lastErr = httpclient.Sanitize(err.Error())
			p.logger.Debug("probe: attempt failed", "subdomain", subdomain, "url", url, "err", lastErr)
			continue
		}
		if status != nil {
			p.logger.Debug("probe: reachable", "subdomain", subdomain, "url", url, "status", *status)
			return Result{Subdomain: subdomain, Reachable: true, StatusCode: status, ProbedAt: probedAt}
		}
	}

	return Result{Subdomain: subdomain, Reachable: false, Error: lastErr, ProbedAt: probedAt}
}

// tryURL performs HEAD, falling back to GET when HEAD is rejected with 405.
func (p *Prober) tryURL(ctx context.Context, url string) (*int, error) {
	status, err := p.singleRequest(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	if status == nil || *status == http.StatusMethodNotAllowed {
		status, err = p.singleRequest(ctx, http.MethodGet, url)
		if err != nil {
			return nil, err
		}
	}
	return status, nil
}

func (p *Prober) singleRequest(ctx context.Context, method, url string) (*int, error) {
	resp, err := httpclient.DoWithRetry(ctx, func() (*req.Response, error) {
		r := p.http.R().SetContext(ctx)
		if method == http.MethodHead {
			return r.Head(url)
		}
		return r.Get(url)
	})
	if err != nil {
		return nil, err
	}
	code := resp.StatusCode
	return &code, nil
}

func buildURL(scheme, subdomain string, port int) string {
	if port == 0 {
		return fmt.Sprintf("%s://%s/", scheme, subdomain)
	}
	return fmt.Sprintf("%s://%s:%d/", scheme, subdomain, port)
}
