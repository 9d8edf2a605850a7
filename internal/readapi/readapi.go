// Package readapi serves paginated reads over the subdomain inventory:
// every subdomain ever seen for an apex, or only the ones observed
// reachable at least once.
package readapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// MasterRow is one subdomains_master entry.
type MasterRow struct {
	Subdomain string    `db:"subdomain" json:"subdomain"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AliveRow is one alive_subdomains entry.
type AliveRow struct {
	Subdomain  string     `db:"subdomain" json:"subdomain"`
	ProbedAt   *time.Time `db:"probed_at" json:"probed_at"`
	StatusCode *int       `db:"status_code" json:"status_code"`
}

// Reader serves paginated reads. apex matches the subdomain itself or any
// name ending in "."+apex.
type Reader struct {
	db *sqlx.DB
}

// NewReader builds a Reader.
func NewReader(db *sqlx.DB) *Reader {
	return &Reader{db: db}
}

// ListMaster returns up to perPage subdomains_master rows for apex starting
// at offset, ordered newest-first, plus the total matching row count.
func (r *Reader) ListMaster(ctx context.Context, apex string, offset, perPage int) ([]MasterRow, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `
		SELECT count(*) FROM subdomains_master WHERE subdomain = $1 OR subdomain LIKE '%.' || $1
	`, apex); err != nil {
		return nil, 0, err
	}

	type row struct {
		Subdomain string    `db:"subdomain"`
		Sources   []byte    `db:"sources"`
		CreatedAt time.Time `db:"created_at"`
	}
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT subdomain, sources, created_at FROM subdomains_master
		WHERE subdomain = $1 OR subdomain LIKE '%.' || $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, apex, perPage, offset); err != nil {
		return nil, 0, err
	}

	out := make([]MasterRow, 0, len(rows))
	for _, rr := range rows {
		var sources []string
		if err := json.Unmarshal(rr.Sources, &sources); err != nil {
			sources = nil
		}
		out = append(out, MasterRow{Subdomain: rr.Subdomain, Sources: sources, CreatedAt: rr.CreatedAt})
	}
	return out, total, nil
}

// ListReachable returns up to perPage alive_subdomains rows for apex that
// have been observed reachable at least once (last_alive set), starting at
// offset, ordered most-recently-probed-first, plus the total matching row
// count.
func (r *Reader) ListReachable(ctx context.Context, apex string, offset, perPage int) ([]AliveRow, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `
		SELECT count(*) FROM alive_subdomains WHERE (subdomain = $1 OR subdomain LIKE '%.' || $1) AND last_alive IS NOT NULL
	`, apex); err != nil {
		return nil, 0, err
	}

	type row struct {
		Subdomain  string         `db:"subdomain"`
		ProbedAt   sql.NullTime   `db:"probed_at"`
		StatusCode sql.NullInt64  `db:"status_code"`
	}
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT subdomain, probed_at, status_code FROM alive_subdomains
		WHERE (subdomain = $1 OR subdomain LIKE '%.' || $1) AND last_alive IS NOT NULL
		ORDER BY probed_at DESC
		LIMIT $2 OFFSET $3
	`, apex, perPage, offset); err != nil {
		return nil, 0, err
	}

	out := make([]AliveRow, 0, len(rows))
	for _, rr := range rows {
		ar := AliveRow{Subdomain: rr.Subdomain}
		if rr.ProbedAt.Valid {
			t := rr.ProbedAt.Time
			ar.ProbedAt = &t
		}
		if rr.StatusCode.Valid {
			c := int(rr.StatusCode.Int64)
			ar.StatusCode = &c
		}
		out = append(out, ar)
	}
	return out, total, nil
}
