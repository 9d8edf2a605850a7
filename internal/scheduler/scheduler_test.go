package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/scheduler"
	"github.com/tbckr/dixcover/internal/testutil"
)

func TestScheduleScan_PersistsAndIsIdempotent(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT id, kind, domain FROM scheduler_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "domain"}))
	mock.ExpectExec("INSERT INTO scheduler_jobs").
		WithArgs("scan_example_com", "scan", "example.com", 86400).
		WillReturnResult(sqlmock.NewResult(1, 1))

	db := sqlx.NewDb(sqlDB, "sqlmock")
	var scanCalls int32
	s := scheduler.New(db, testutil.NopLogger(),
		func(ctx context.Context, domain string) { atomic.AddInt32(&scanCalls, 1) },
		func(ctx context.Context) {},
	)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.ScheduleScan(context.Background(), "example.com"))
	// second call is a no-op: no additional INSERT expected, so
	// ExpectationsWereMet below would fail if one were issued.
	require.NoError(t, s.ScheduleScan(context.Background(), "example.com"))

	require.NoError(t, mock.ExpectationsWereMet())
	assert.EqualValues(t, 0, scanCalls)
}

func TestStart_ReloadsPersistedJobs(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	domain := "example.com"
	mock.ExpectQuery("SELECT id, kind, domain FROM scheduler_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "domain"}).
			AddRow("scan_example_com", "scan", domain).
			AddRow("probe_master_daily", "probe", nil))

	db := sqlx.NewDb(sqlDB, "sqlmock")
	s := scheduler.New(db, testutil.NopLogger(),
		func(ctx context.Context, domain string) {},
		func(ctx context.Context) {},
	)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, mock.ExpectationsWereMet())
}
