// Package probesweep periodically re-probes every known subdomain and
// batches newly-reachable ones into a single notification.
package probesweep

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/metrics"
	"github.com/tbckr/dixcover/internal/notify"
	"github.com/tbckr/dixcover/internal/prober"
	"github.com/tbckr/dixcover/internal/worker"
)

const defaultWorkers = 20

// Prober probes a single subdomain. Implemented by *prober.Prober.
type Prober interface {
	Probe(ctx context.Context, subdomain string) prober.Result
}

// Sweep re-probes every subdomain in subdomains_master and notifies on any
// newly reachable ones.
type Sweep struct {
	db       *sqlx.DB
	repo     *inventory.Repository
	prober   Prober
	notifier *notify.Notifier
	logger   *slog.Logger
	workers  int
	metrics  *metrics.Metrics
}

// New builds a Sweep. workers <= 0 falls back to defaultWorkers (20, the
// original's own default). m may be nil to disable instrumentation.
func New(db *sqlx.DB, repo *inventory.Repository, p Prober, notifier *notify.Notifier, logger *slog.Logger, workers int, m *metrics.Metrics) *Sweep {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Sweep{db: db, repo: repo, prober: p, notifier: notifier, logger: logger, workers: workers, metrics: m}
}

// Run probes up to limit subdomains (0 means all) from subdomains_master,
// persists each result as it completes, and sends one batched notification
// for every subdomain seen reachable for the first time.
func (s *Sweep) Run(ctx context.Context, limit int) error {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ProbeDuration.Observe(time.Since(started).Seconds())
		}
	}()

	subdomains, err := s.snapshot(ctx, limit)
	if err != nil {
		return err
	}
	if len(subdomains) == 0 {
		s.logger.Info("probesweep: no subdomains to probe")
		return nil
	}
	s.logger.Info("probesweep: starting", "count", len(subdomains))

	inputs := make(chan worker.Input, len(subdomains))
	for _, sd := range subdomains {
		inputs <- sd
	}
	close(inputs)

	pool := worker.NewPool(s.workers, s.logger)
	results := pool.Process(ctx, inputs, func(ctx context.Context, in worker.Input) (interface{}, error) {
		sd, _ := in.(string)
		return s.prober.Probe(ctx, sd), nil
	})

	var (
		newAlives []notify.Alive
		mu        sync.Mutex
		total     int
	)
	for jr := range results {
		total++
		result, ok := jr.Value.(prober.Result)
		if !ok {
			continue
		}
		if s.metrics != nil {
			s.metrics.ProbesTotal.WithLabelValues(strconv.FormatBool(result.Reachable)).Inc()
		}
		isNew, err := s.persist(ctx, result)
		if err != nil {
			s.logger.Error("probesweep: persist failed", "subdomain", result.Subdomain, "err", err)
			continue
		}
		if isNew {
			if s.metrics != nil {
				s.metrics.NewAliveTotal.Inc()
			}
			mu.Lock()
			newAlives = append(newAlives, notify.Alive{
				Subdomain:  result.Subdomain,
				StatusCode: result.StatusCode,
				ProbedAt:   result.ProbedAt,
			})
			mu.Unlock()
		}
	}

	s.logger.Info("probesweep: finished", "total", total, "new_alive", len(newAlives))
	if len(newAlives) > 0 {
		s.notifier.NotifyBatch(ctx, newAlives)
	}
	return nil
}

func (s *Sweep) persist(ctx context.Context, result prober.Result) (bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	return s.repo.RecordProbe(ctx, conn, result.Subdomain, result.Reachable, result.StatusCode, result.Error, result.ProbedAt)
}

func (s *Sweep) snapshot(ctx context.Context, limit int) ([]string, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `SELECT subdomain FROM subdomains_master`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var subdomains []string
	if err := conn.SelectContext(ctx, &subdomains, query, args...); err != nil {
		return nil, err
	}
	return subdomains, nil
}
