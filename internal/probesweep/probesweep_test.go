package probesweep_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/imroc/req/v3"
	"github.com/jarcoal/httpmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/notify"
	"github.com/tbckr/dixcover/internal/prober"
	"github.com/tbckr/dixcover/internal/probesweep"
	"github.com/tbckr/dixcover/internal/testutil"
)

func TestRun_NewlyAliveTriggersNotification(t *testing.T) {
	httpClient := req.NewClient()
	httpmock.Activate()
	httpmock.ActivateNonDefault(httpClient.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodHead, "https://www.example.com/",
		httpmock.NewStringResponder(http.StatusOK, ""))

	slackCalled := false
	httpmock.RegisterResponder(http.MethodPost, "https://hooks.slack.com/services/x",
		func(*http.Request) (*http.Response, error) {
			slackCalled = true
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT subdomain FROM subdomains_master").
		WillReturnRows(sqlmock.NewRows([]string{"subdomain"}).AddRow("www.example.com"))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subdomains_master SET last_alive").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT last_alive FROM alive_subdomains").
		WillReturnRows(sqlmock.NewRows([]string{"last_alive"}))
	mock.ExpectExec("INSERT INTO alive_subdomains").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	db := sqlx.NewDb(sqlDB, "sqlmock")
	repo := inventory.NewRepository(testutil.NopLogger(), nil)
	p := prober.New(httpClient, testutil.NopLogger())
	n := notify.New(httpClient, testutil.NopLogger(), "https://hooks.slack.com/services/x", "", "", "", nil)

	sweep := probesweep.New(db, repo, p, n, testutil.NopLogger(), 2, nil)
	require.NoError(t, sweep.Run(context.Background(), 0))

	assert.True(t, slackCalled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_NoSubdomains_NoOp(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT subdomain FROM subdomains_master").
		WillReturnRows(sqlmock.NewRows([]string{"subdomain"}))

	db := sqlx.NewDb(sqlDB, "sqlmock")
	repo := inventory.NewRepository(testutil.NopLogger(), nil)
	n := notify.New(nil, testutil.NopLogger(), "", "", "", "", nil)

	sweep := probesweep.New(db, repo, noopProber{}, n, testutil.NopLogger(), 2, nil)
	require.NoError(t, sweep.Run(context.Background(), 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

type noopProber struct{}

func (noopProber) Probe(ctx context.Context, subdomain string) prober.Result {
	return prober.Result{Subdomain: subdomain, Reachable: false, ProbedAt: time.Now()}
}
