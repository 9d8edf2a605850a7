package crtsh_test

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/imroc/req/v3"
	"github.com/jarcoal/httpmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/sources/crtsh"
	"github.com/tbckr/dixcover/internal/testutil"
)

func TestIngest_StoresRootAndSubdomain(t *testing.T) {
	httpClient := req.NewClient()
	httpmock.ActivateNonDefault(httpClient.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponderWithQuery(http.MethodGet, "https://crt.sh/",
		map[string]string{"q": "example.com", "output": "json"},
		httpmock.NewStringResponder(http.StatusOK, `[
			{"common_name":"example.com","name_value":"example.com","not_before":"2024-01-01","not_after":"2025-01-01"}
		]`),
	)
	// The discovered name equals the apex, so recursion's processed-set
	// immediately stops further fan-out; no second HTTP call is registered.

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO crtsh_subdomain").WithArgs("example.com", "2024-01-01", "2025-01-01", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, sources, first_seen FROM subdomains_master").
		WithArgs("example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO subdomains_master").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	db := sqlx.NewDb(sqlDB, "sqlmock")
	repo := inventory.NewRepository(testutil.NopLogger(), nil)
	svc := crtsh.NewServiceWithDelay(crtsh.NewClient(httpClient, testutil.NopLogger()), repo, testutil.NopLogger(), time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = svc.Ingest(ctx, db, "example.com")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
