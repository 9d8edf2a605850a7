package virustotal

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/validate"
)

const defaultDelay = 1 * time.Second

// Service paginates VirusTotal's subdomain relationships for one apex.
type Service struct {
	client *Client
	repo   *inventory.Repository
	logger *slog.Logger
	apiKey string
	delay  time.Duration
}

// NewService builds a VirusTotal ingestion service. apiKey may be empty;
// Enabled reports false in that case and the scan coordinator skips
// launching it.
func NewService(client *Client, repo *inventory.Repository, logger *slog.Logger, apiKey string) *Service {
	return &Service{client: client, repo: repo, logger: logger, apiKey: apiKey, delay: defaultDelay}
}

// NewServiceWithDelay is NewService with an overridden inter-page delay, for
// tests that don't want to wait a full second per page.
func NewServiceWithDelay(client *Client, repo *inventory.Repository, logger *slog.Logger, apiKey string, delay time.Duration) *Service {
	return &Service{client: client, repo: repo, logger: logger, apiKey: apiKey, delay: delay}
}

// Name identifies this source for provenance records.
func (s *Service) Name() string { return "virustotal" }

// Enabled reports whether VIRUS_TOTAL_API_KEY is configured.
func (s *Service) Enabled() bool { return s.apiKey != "" }

// Ingest pages through VirusTotal's subdomain relationships for apex. The
// page cap is ceil(meta.count/pageSize), taken from the first page's
// response; later responses do not change it.
func (s *Service) Ingest(ctx context.Context, db *sqlx.DB, apex string) error {
	conn, err := db.Connx(ctx)
	if err != nil {
		s.logger.Error("virustotal: acquiring connection failed", "err", err)
		return nil
	}
	defer conn.Close()

	var nextURL string
	page := 0
	maxPages := 0

	for {
		if page > 0 && page >= maxPages {
			s.logger.Warn("virustotal: reached max pages", "apex", apex, "max_pages", maxPages)
			break
		}

		result, err := s.client.Page(ctx, apex, nextURL)
		if err != nil {
			return err
		}

		if page == 0 {
			maxPages = int(math.Ceil(float64(result.Meta.Count) / float64(pageSize)))
		}

		stored := 0
		for _, item := range result.Data {
			if item.Type != "domain" {
				continue
			}
			if !validate.Accepts(item.ID, apex) {
				continue
			}
			f := inventory.Finding{
				Source:     "virustotal",
				Subdomain:  item.ID,
				DetectedAt: time.Now(),
			}
			if err := s.repo.Record(ctx, conn, f); err != nil {
				return err
			}
			stored++
		}
		s.logger.Info("virustotal: page processed", "apex", apex, "page", page, "stored", stored)

		if result.Links.Next == "" {
			break
		}
		nextURL = result.Links.Next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}

		page++
	}
	return nil
}
