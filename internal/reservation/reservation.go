// Package reservation guards against overlapping scans of the same apex via
// the domain_requested table: a row's time_to_zero marks when the next scan
// of that domain is allowed to start.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/apperr"
)

// cooldown mirrors the original implementation's 15-minute lock window.
const cooldown = 15 * time.Minute

// Store manages domain_requested rows.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore builds a Store.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Acquire reserves apex for a new scan. It first deletes expired reservation
// rows, then fails with apperr.ErrReservationConflict (wrapped in a
// *apperr.ReservationConflictError carrying the active expiry) if an
// unexpired reservation for apex already exists. Otherwise it inserts a new
// reservation row, marked scheduled when the scan was triggered by the
// recurring job rather than an inbound request.
func (s *Store) Acquire(ctx context.Context, apex string, scheduled bool) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM domain_requested WHERE time_to_zero <= now()`); err != nil {
		s.logger.Warn("reservation: cleanup of expired rows failed", "err", err)
	}

	var expiresAt time.Time
	err := s.db.GetContext(ctx, &expiresAt, `
		SELECT time_to_zero FROM domain_requested
		WHERE domain = $1 AND time_to_zero > now()
		ORDER BY time_to_zero DESC LIMIT 1
	`, apex)
	if err == nil {
		return &apperr.ReservationConflictError{Apex: apex, ExpiresAt: expiresAt}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO domain_requested (domain, requested_at, time_to_zero, scheduled)
		VALUES ($1, now(), now() + make_interval(secs => $2), $3)
	`, apex, cooldown.Seconds(), scheduled)
	return err
}

// Refresh marks apex's reservation as scheduled (ensuring a row exists),
// used by the recurring scan job so the scheduler's own runs never collide
// with a manually triggered one, and vice versa.
func (s *Store) Refresh(ctx context.Context, apex string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domain_requested SET scheduled = true, time_to_zero = now() + make_interval(secs => $2)
		WHERE domain = $1
	`, apex, cooldown.Seconds())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO domain_requested (domain, requested_at, time_to_zero, scheduled)
		VALUES ($1, now(), now() + make_interval(secs => $2), true)
	`, apex, cooldown.Seconds())
	return err
}
