// Package inventory owns the idempotent writes into dixcover's per-source
// tables and the provenance-merging master table.
package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/metrics"
)

// Finding is one subdomain observation from a single source, ready to be
// recorded. Source-specific columns that don't apply to a given source are
// left zero-valued.
type Finding struct {
	Source        string // "crtsh", "otx", "shodan", "virustotal"
	Subdomain     string
	DetectedAt    time.Time
	RegisteredOn  string // crtsh only
	ExpiresOn     string // crtsh only
	OTXAddress    string // otx only
}

// Repository persists findings. One Repository is shared across goroutines;
// every call takes the caller's own *sqlx.Conn so no connection is ever
// used concurrently from two goroutines.
type Repository struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRepository builds a Repository. m may be nil to disable instrumentation.
func NewRepository(logger *slog.Logger, m *metrics.Metrics) *Repository {
	return &Repository{logger: logger, metrics: m}
}

var sourceTables = map[string]string{
	"crtsh":      "crtsh_subdomain",
	"otx":        "otx_subdomains",
	"shodan":     "shodan_subdomain",
	"virustotal": "virus_total_subdomain",
}

// Record upserts f into its source table and merges it into
// subdomains_master inside a single transaction. A master-row race between
// two sources writing the same subdomain concurrently is resolved with a
// row lock (SELECT ... FOR UPDATE) rather than retried: the second writer
// blocks until the first commits, then observes the merged sources list.
//
// Record never returns an error for a failed write — it logs and rolls
// back so a bad row from one source cannot abort a sibling source's scan.
// The only error that propagates is context cancellation, so a coordinator
// shutting down can stop promptly instead of hammering a closed pool.
func (r *Repository) Record(ctx context.Context, conn *sqlx.Conn, f Finding) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		r.logger.Error("inventory: begin tx failed", "subdomain", f.Subdomain, "source", f.Source, "err", err)
		return nil
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := r.upsertSource(ctx, tx, f); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		r.logger.Error("inventory: source upsert failed", "subdomain", f.Subdomain, "source", f.Source, "err", err)
		return nil
	}

	if err := r.mergeMaster(ctx, tx, f); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		r.logger.Error("inventory: master merge failed", "subdomain", f.Subdomain, "source", f.Source, "err", err)
		return nil
	}

	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		r.logger.Error("inventory: commit failed", "subdomain", f.Subdomain, "source", f.Source, "err", err)
		return nil
	}
	committed = true
	if r.metrics != nil {
		r.metrics.SubdomainsFound.WithLabelValues(f.Source).Inc()
	}
	return nil
}

func (r *Repository) upsertSource(ctx context.Context, tx *sqlx.Tx, f Finding) error {
	table, ok := sourceTables[f.Source]
	if !ok {
		return fmt.Errorf("unknown source %q", f.Source)
	}

	switch f.Source {
	case "crtsh":
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (subdomain, registered_on, expires_on, detected_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subdomain) DO UPDATE SET
				registered_on = EXCLUDED.registered_on,
				expires_on = EXCLUDED.expires_on
		`, f.Subdomain, f.RegisteredOn, f.ExpiresOn, detectedAtOrNow(f.DetectedAt))
		return err
	case "otx":
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (address, subdomain, detected_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (subdomain) DO UPDATE SET address = EXCLUDED.address
		`, f.OTXAddress, f.Subdomain, detectedAtOrNow(f.DetectedAt))
		return err
	case "shodan", "virustotal":
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (subdomain, detected_at)
			VALUES ($1, $2)
			ON CONFLICT (subdomain) DO NOTHING
		`, f.Subdomain, detectedAtOrNow(f.DetectedAt))
		return err
	default:
		return fmt.Errorf("unknown source %q", f.Source)
	}
}

func (r *Repository) mergeMaster(ctx context.Context, tx *sqlx.Tx, f Finding) error {
	var (
		id          int64
		sourcesJSON []byte
		firstSeen   sql.NullTime
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, sources, first_seen FROM subdomains_master WHERE subdomain = $1 FOR UPDATE`,
		f.Subdomain,
	).Scan(&id, &sourcesJSON, &firstSeen)

	detected := detectedAtOrNow(f.DetectedAt)

	if errors.Is(err, sql.ErrNoRows) {
		sources, marshalErr := json.Marshal([]string{f.Source})
		if marshalErr != nil {
			return marshalErr
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO subdomains_master (subdomain, sources, first_seen, created_at)
			VALUES ($1, $2, $3, now())
		`, f.Subdomain, sources, detected)
		return err
	}
	if err != nil {
		return err
	}

	var sources []string
	if unmarshalErr := json.Unmarshal(sourcesJSON, &sources); unmarshalErr != nil {
		sources = nil
	}
	if !containsString(sources, f.Source) {
		sources = append(sources, f.Source)
	}

	newFirstSeen := firstSeen
	if !firstSeen.Valid || detected.Before(firstSeen.Time) {
		newFirstSeen = sql.NullTime{Time: detected, Valid: true}
	}

	merged, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE subdomains_master SET sources = $1, first_seen = $2 WHERE id = $3
	`, merged, newFirstSeen, id)
	return err
}

// RecordProbe writes a probe result: alive_subdomains.probed_at advances on
// every probe regardless of outcome, so it always reflects the last time
// this subdomain was checked; last_alive only advances when reachable, and
// is otherwise preserved via COALESCE so a host going down doesn't erase
// when it was last seen up. notes carries the sanitized transport error
// when unreachable, and is cleared on a reachable probe.
// subdomains_master.last_alive is only touched on a reachable probe, since
// the master table tracks liveness as a single convenience column rather
// than full probe history.
// It reports whether this probe is the first time this subdomain has been
// observed reachable (a brand-new row, or an existing row whose earlier
// probes were all unreachable), which is the trigger for a notification. A
// host that was reachable before, went down, and came back is not reported
// again, since last_alive survives the outage.
func (r *Repository) RecordProbe(ctx context.Context, conn *sqlx.Conn, subdomain string, reachable bool, statusCode *int, notes string, probedAt time.Time) (isNew bool, err error) {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if reachable {
		_, err = tx.ExecContext(ctx, `
			UPDATE subdomains_master SET last_alive = $1 WHERE subdomain = $2
		`, probedAt, subdomain)
		if err != nil {
			return false, err
		}
	}

	var prevAlive sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT last_alive FROM alive_subdomains WHERE subdomain = $1`, subdomain).Scan(&prevAlive)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	wasAlive := err == nil && prevAlive.Valid

	var lastAlive sql.NullTime
	if reachable {
		lastAlive = sql.NullTime{Time: probedAt, Valid: true}
	}
	var statusArg sql.NullInt64
	if statusCode != nil {
		statusArg = sql.NullInt64{Int64: int64(*statusCode), Valid: true}
	}
	var notesArg sql.NullString
	if notes != "" {
		notesArg = sql.NullString{String: notes, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alive_subdomains (subdomain, probed_at, last_alive, status_code, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subdomain) DO UPDATE SET
			probed_at = EXCLUDED.probed_at,
			last_alive = COALESCE(EXCLUDED.last_alive, alive_subdomains.last_alive),
			status_code = EXCLUDED.status_code,
			notes = EXCLUDED.notes
	`, subdomain, probedAt, lastAlive, statusArg, notesArg)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return reachable && !wasAlive, nil
}

func detectedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
