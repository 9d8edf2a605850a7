package shodan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/validate"
)

// Service ingests subdomains from Shodan's DNS domain API for one apex.
type Service struct {
	client *Client
	repo   *inventory.Repository
	logger *slog.Logger
	apiKey string
}

// NewService builds a Shodan ingestion service. apiKey may be empty;
// Enabled reports false in that case and the scan coordinator skips
// launching it.
func NewService(client *Client, repo *inventory.Repository, logger *slog.Logger, apiKey string) *Service {
	return &Service{client: client, repo: repo, logger: logger, apiKey: apiKey}
}

// Name identifies this source for provenance records.
func (s *Service) Name() string { return "shodan" }

// Enabled reports whether SHODAN_API_KEY is configured.
func (s *Service) Enabled() bool { return s.apiKey != "" }

// Ingest fetches Shodan's subdomain labels for apex, reconstructs the full
// hostname for each, validates it, and records it.
func (s *Service) Ingest(ctx context.Context, db *sqlx.DB, apex string) error {
	labels, err := s.client.Subdomains(ctx, apex)
	if err != nil {
		return err
	}
	s.logger.Info("shodan: fetched labels", "apex", apex, "count", len(labels))
	if len(labels) == 0 {
		return nil
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		s.logger.Error("shodan: acquiring connection failed", "err", err)
		return nil
	}
	defer conn.Close()

	for _, label := range labels {
		if strings.Contains(label, "*") {
			continue
		}
		full := fmt.Sprintf("%s.%s", label, apex)
		if !validate.Accepts(full, apex) {
			continue
		}
		f := inventory.Finding{
			Source:     "shodan",
			Subdomain:  full,
			DetectedAt: time.Now(),
		}
		if err := s.repo.Record(ctx, conn, f); err != nil {
			return err
		}
	}
	return nil
}
