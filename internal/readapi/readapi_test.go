package readapi_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/readapi"
)

func TestListMaster_ReturnsRowsAndTotal(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM subdomains_master").
		WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	now := time.Now()
	mock.ExpectQuery("SELECT subdomain, sources, created_at FROM subdomains_master").
		WithArgs("example.com", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"subdomain", "sources", "created_at"}).
			AddRow("www.example.com", []byte(`["crtsh"]`), now).
			AddRow("mail.example.com", []byte(`["otx","shodan"]`), now))

	db := sqlx.NewDb(sqlDB, "sqlmock")
	reader := readapi.NewReader(db)

	rows, total, err := reader.ListMaster(context.Background(), "example.com", 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"crtsh"}, rows[0].Sources)
	assert.Equal(t, []string{"otx", "shodan"}, rows[1].Sources)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListReachable_ReturnsRowsAndTotal(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM alive_subdomains").
		WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now()
	mock.ExpectQuery("SELECT subdomain, probed_at, status_code FROM alive_subdomains").
		WithArgs("example.com", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"subdomain", "probed_at", "status_code"}).
			AddRow("www.example.com", now, 200))

	db := sqlx.NewDb(sqlDB, "sqlmock")
	reader := readapi.NewReader(db)

	rows, total, err := reader.ListReachable(context.Background(), "example.com", 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].StatusCode)
	assert.Equal(t, 200, *rows[0].StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
