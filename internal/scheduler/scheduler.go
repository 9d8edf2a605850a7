// Package scheduler wraps robfig/cron with a Postgres-backed job registry so
// scheduled scans and probe sweeps survive a process restart: on Start, any
// row left in scheduler_jobs is re-registered with cron before the first
// tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
)

const (
	kindScan       = "scan"
	kindProbe      = "probe"
	probeJobID     = "probe_master_daily"
	scanInterval   = "@every 24h"
	probeInterval  = "@every 24h"
)

// ScanFunc runs a scan for domain, marking it as a scheduler-triggered run.
type ScanFunc func(ctx context.Context, domain string)

// ProbeFunc runs a full probe sweep.
type ProbeFunc func(ctx context.Context)

// Scheduler is a durable, cron-driven registry of recurring scan and probe
// jobs.
type Scheduler struct {
	db     *sqlx.DB
	cron   *cron.Cron
	logger *slog.Logger

	runScan  ScanFunc
	runProbe ProbeFunc

	entries map[string]cron.EntryID
}

// New builds a Scheduler. runScan and runProbe are invoked on each tick for
// their respective job kinds.
func New(db *sqlx.DB, logger *slog.Logger, runScan ScanFunc, runProbe ProbeFunc) *Scheduler {
	return &Scheduler{
		db:       db,
		cron:     cron.New(),
		logger:   logger,
		runScan:  runScan,
		runProbe: runProbe,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start reloads every persisted job from scheduler_jobs and starts the cron
// loop. It is not idempotent: a second call registers every persisted job
// with cron again.
func (s *Scheduler) Start(ctx context.Context) error {
	var rows []struct {
		ID     string `db:"id"`
		Kind   string `db:"kind"`
		Domain *string `db:"domain"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, kind, domain FROM scheduler_jobs`); err != nil {
		return fmt.Errorf("scheduler: loading persisted jobs: %w", err)
	}

	for _, row := range rows {
		switch row.Kind {
		case kindScan:
			if row.Domain == nil {
				continue
			}
			s.registerScan(row.ID, *row.Domain)
		case kindProbe:
			s.registerProbe(row.ID)
		default:
			s.logger.Warn("scheduler: unknown persisted job kind", "id", row.ID, "kind", row.Kind)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler: started", "jobs", len(rows))
	return nil
}

// Stop drains running jobs and stops the cron loop. It blocks until any job
// in progress completes.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler: stopped")
}

// ScheduleScan registers a recurring daily scan for domain if one doesn't
// already exist. Matches the original's idempotent "already exists" no-op.
func (s *Scheduler) ScheduleScan(ctx context.Context, domain string) error {
	jobID := scanJobID(domain)
	if _, exists := s.entries[jobID]; exists {
		s.logger.Info("scheduler: scan job already exists", "job_id", jobID)
		return nil
	}

	if err := s.persist(ctx, jobID, kindScan, &domain); err != nil {
		return err
	}
	s.registerScan(jobID, domain)
	s.logger.Info("scheduler: added daily scan job", "job_id", jobID, "domain", domain)
	return nil
}

// ScheduleProbe registers the recurring daily probe sweep if one doesn't
// already exist.
func (s *Scheduler) ScheduleProbe(ctx context.Context) error {
	if _, exists := s.entries[probeJobID]; exists {
		s.logger.Info("scheduler: probe job already exists", "job_id", probeJobID)
		return nil
	}

	if err := s.persist(ctx, probeJobID, kindProbe, nil); err != nil {
		return err
	}
	s.registerProbe(probeJobID)
	s.logger.Info("scheduler: added daily probe job", "job_id", probeJobID)
	return nil
}

// RemoveScan unregisters domain's recurring scan job, if any.
func (s *Scheduler) RemoveScan(ctx context.Context, domain string) error {
	return s.remove(ctx, scanJobID(domain))
}

func (s *Scheduler) remove(ctx context.Context, jobID string) error {
	entryID, exists := s.entries[jobID]
	if !exists {
		return nil
	}
	s.cron.Remove(entryID)
	delete(s.entries, jobID)
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduler_jobs WHERE id = $1`, jobID)
	if err != nil {
		return err
	}
	s.logger.Info("scheduler: removed job", "job_id", jobID)
	return nil
}

func (s *Scheduler) registerScan(jobID, domain string) {
	entryID, err := s.cron.AddFunc(scanInterval, func() {
		s.logger.Info("scheduler: running scheduled scan", "job_id", jobID, "domain", domain)
		s.runScan(context.Background(), domain)
	})
	if err != nil {
		s.logger.Error("scheduler: failed to register scan job", "job_id", jobID, "err", err)
		return
	}
	s.entries[jobID] = entryID
}

func (s *Scheduler) registerProbe(jobID string) {
	entryID, err := s.cron.AddFunc(probeInterval, func() {
		s.logger.Info("scheduler: running scheduled probe sweep", "job_id", jobID)
		s.runProbe(context.Background())
	})
	if err != nil {
		s.logger.Error("scheduler: failed to register probe job", "job_id", jobID, "err", err)
		return
	}
	s.entries[jobID] = entryID
}

func (s *Scheduler) persist(ctx context.Context, jobID, kind string, domain *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_jobs (id, kind, domain, interval_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, jobID, kind, domain, 24*60*60)
	return err
}

func scanJobID(domain string) string {
	return "scan_" + strings.ReplaceAll(domain, ".", "_")
}
