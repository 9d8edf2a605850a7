package otx

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/validate"
)

// Service ingests subdomains from OTX's passive DNS feed for one apex.
type Service struct {
	client *Client
	repo   *inventory.Repository
	logger *slog.Logger
	apiKey string
}

// NewService builds an OTX ingestion service. apiKey may be empty; Enabled
// reports false in that case and the scan coordinator skips launching it.
func NewService(client *Client, repo *inventory.Repository, logger *slog.Logger, apiKey string) *Service {
	return &Service{client: client, repo: repo, logger: logger, apiKey: apiKey}
}

// Name identifies this source for provenance records.
func (s *Service) Name() string { return "otx" }

// Enabled reports whether OTX_API_KEY is configured.
func (s *Service) Enabled() bool { return s.apiKey != "" }

// Ingest fetches OTX's passive DNS records for apex, validates each
// hostname, and records it.
func (s *Service) Ingest(ctx context.Context, db *sqlx.DB, apex string) error {
	records, err := s.client.Subdomains(ctx, apex)
	if err != nil {
		return err
	}
	s.logger.Info("otx: fetched records", "apex", apex, "count", len(records))
	if len(records) == 0 {
		return nil
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		s.logger.Error("otx: acquiring connection failed", "err", err)
		return nil
	}
	defer conn.Close()

	for _, rec := range records {
		if !validate.Accepts(rec.Hostname, apex) {
			continue
		}
		f := inventory.Finding{
			Source:     "otx",
			Subdomain:  rec.Hostname,
			DetectedAt: time.Now(),
			OTXAddress: rec.Address,
		}
		if err := s.repo.Record(ctx, conn, f); err != nil {
			return err
		}
	}
	return nil
}
