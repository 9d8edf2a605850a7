package crtsh

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/httpclient"
	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/validate"
	"github.com/tbckr/dixcover/internal/worker"
)

const (
	maxDepth        = 3
	defaultDelay    = 5 * time.Second
	poolSize        = 2
)

// Service drives the recursive crt.sh ingestion for one apex.
type Service struct {
	client *Client
	repo   *inventory.Repository
	logger *slog.Logger
	delay  time.Duration // polite delay between crt.sh queries
}

// NewService builds a crt.sh ingestion service.
func NewService(client *Client, repo *inventory.Repository, logger *slog.Logger) *Service {
	return &Service{client: client, repo: repo, logger: logger, delay: defaultDelay}
}

// NewServiceWithDelay builds a Service with a non-default polite delay, for
// tests that would otherwise spend real wall-clock time waiting between
// crt.sh queries.
func NewServiceWithDelay(client *Client, repo *inventory.Repository, logger *slog.Logger, delay time.Duration) *Service {
	return &Service{client: client, repo: repo, logger: logger, delay: delay}
}

// Name identifies this source for provenance records.
func (s *Service) Name() string { return "crtsh" }

// Enabled is always true: crt.sh needs no API key.
func (s *Service) Enabled() bool { return true }

// search holds the state that must be scoped to one Ingest call: the seen
// set, which serves as both the processed and the found set, is never
// package-level, so two concurrent scans of
// different apexes (or even the same apex requested twice) never share
// state and never race on each other's mutex.
type search struct {
	apex string
	mu   sync.Mutex
	seen map[string]bool // names already recorded for this apex, across all depths
}

// Ingest recursively searches crt.sh starting from apex, up to maxDepth
// levels, storing every valid name it finds and recursing into names not
// yet processed. Each depth level is processed by a bounded worker pool so
// sibling domains at the same level are queried in parallel without
// unbounded fan-out.
func (s *Service) Ingest(ctx context.Context, db *sqlx.DB, apex string) error {
	st := &search{apex: apex, seen: make(map[string]bool)}
	return s.runLevel(ctx, db, st, []string{apex}, 0)
}

func (s *Service) runLevel(ctx context.Context, db *sqlx.DB, st *search, domains []string, depth int) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(domains) == 0 {
		return nil
	}

	inputs := make(chan worker.Input, len(domains))
	for _, d := range domains {
		inputs <- d
	}
	close(inputs)

	pool := worker.NewPool(poolSize, s.logger)
	var (
		nextLevel []string
		nextMu    sync.Mutex
	)
	results := pool.Process(ctx, inputs, func(ctx context.Context, in worker.Input) (interface{}, error) {
		domain, _ := in.(string)
		found, err := s.searchAndStore(ctx, db, st, domain)
		if err != nil {
			return nil, err
		}
		nextMu.Lock()
		nextLevel = append(nextLevel, found...)
		nextMu.Unlock()
		return nil, nil
	})
	for range results {
		// drain; individual errors are logged by searchAndStore
	}

	if depth+1 > maxDepth {
		return nil
	}
	return s.runLevel(ctx, db, st, nextLevel, depth+1)
}

// searchAndStore queries crt.sh for domain, stores every newly-seen valid
// name under st.apex, and returns the newly-seen names other than domain
// itself so the caller can recurse into them at the next depth.
func (s *Service) searchAndStore(ctx context.Context, db *sqlx.DB, st *search, domain string) ([]string, error) {
	entries, err := s.client.Search(ctx, domain)
	// polite delay regardless of outcome, to avoid hammering crt.sh.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	if err != nil {
		s.logger.Error("crtsh: search failed", "domain", domain, "err", httpclient.Sanitize(err.Error()))
		return nil, nil
	}
	if len(entries) == 0 {
		return nil, nil
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		s.logger.Error("crtsh: acquiring connection failed", "err", err)
		return nil, nil
	}
	defer conn.Close()

	var newNames []string
	for _, entry := range entries {
		for _, raw := range []string{entry.CommonName, entry.NameValue} {
			for _, name := range strings.Split(raw, "\n") {
				name = strings.ToLower(strings.TrimSpace(name))
				name = strings.TrimPrefix(name, "*.")
				if name == "" {
					continue
				}
				if !validate.Accepts(name, st.apex) {
					continue
				}

				st.mu.Lock()
				alreadySeen := st.seen[name]
				if !alreadySeen {
					st.seen[name] = true
				}
				st.mu.Unlock()
				if alreadySeen {
					continue
				}

				f := inventory.Finding{
					Source:       "crtsh",
					Subdomain:    name,
					DetectedAt:   time.Now(),
					RegisteredOn: entry.NotBefore,
					ExpiresOn:    entry.NotAfter,
				}
				if err := s.repo.Record(ctx, conn, f); err != nil {
					return newNames, err
				}
				if name != domain {
					newNames = append(newNames, name)
				}
			}
		}
	}
	return newNames, nil
}
