// Package scan coordinates a single apex's fan-out across every enabled
// subdomain source.
package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/metrics"
)

// Source is a subdomain source service, implemented by each package under
// internal/sources.
type Source interface {
	Name() string
	Enabled() bool
	Ingest(ctx context.Context, db *sqlx.DB, apex string) error
}

// Coordinator fans an apex scan out to every enabled Source in parallel.
type Coordinator struct {
	db      *sqlx.DB
	logger  *slog.Logger
	sources []Source
	timeout time.Duration
	metrics *metrics.Metrics
}

// New builds a Coordinator over the given sources. timeout bounds each
// source's Ingest call; a zero timeout means no bound. m may be nil to
// disable instrumentation.
func New(db *sqlx.DB, logger *slog.Logger, timeout time.Duration, m *metrics.Metrics, sources ...Source) *Coordinator {
	return &Coordinator{db: db, logger: logger, sources: sources, timeout: timeout, metrics: m}
}

// Run launches every enabled source concurrently and waits for all of them
// to finish. A source panicking or erroring never aborts its siblings.
// trigger labels the scan's origin ("manual" for an inbound HTTP request,
// "scheduled" for the recurring cron job) for the scans-started metric.
//
// ctx is used only to bound how long Run itself waits; each source's own
// context is derived from context.Background() so a caller cancelling ctx
// (e.g. an HTTP request finishing) does not cut short work already handed
// off to the background scan — per-source work is bounded by c.timeout
// instead.
func (c *Coordinator) Run(ctx context.Context, apex, trigger string) {
	if c.metrics != nil {
		c.metrics.ScansStarted.WithLabelValues(trigger).Inc()
	}

	var wg sync.WaitGroup
	for _, src := range c.sources {
		if !src.Enabled() {
			c.logger.Debug("scan: source disabled, skipping", "source", src.Name(), "apex", apex)
			continue
		}
		wg.Add(1)
		go c.runSource(&wg, src, apex)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("scan: finished", "apex", apex)
	case <-ctx.Done():
		c.logger.Info("scan: stopped waiting; sources continue in the background", "apex", apex)
	}
}

func (c *Coordinator) runSource(wg *sync.WaitGroup, src Source, apex string) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("scan: source panicked", "source", src.Name(), "apex", apex, "panic", r)
		}
	}()

	srcCtx := context.Background()
	var cancel context.CancelFunc
	if c.timeout > 0 {
		srcCtx, cancel = context.WithTimeout(srcCtx, c.timeout)
		defer cancel()
	}

	c.logger.Info("scan: source starting", "source", src.Name(), "apex", apex)
	start := time.Now()
	err := src.Ingest(srcCtx, c.db, apex)
	if c.metrics != nil {
		c.metrics.SourceDuration.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.SourceErrors.WithLabelValues(src.Name()).Inc()
		}
		c.logger.Error("scan: source failed", "source", src.Name(), "apex", apex, "err", err)
		return
	}
	c.logger.Info("scan: source finished", "source", src.Name(), "apex", apex)
}
