package prober_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/imroc/req/v3"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/prober"
	"github.com/tbckr/dixcover/internal/testutil"
)

func newTestClient(t *testing.T) *req.Client {
	t.Helper()
	client := req.NewClient()
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestProbe_HTTPSDefaultReachable(t *testing.T) {
	httpClient := newTestClient(t)
	httpmock.RegisterResponder(http.MethodHead, "https://www.example.com/",
		httpmock.NewStringResponder(http.StatusOK, ""))

	p := prober.New(httpClient, testutil.NopLogger())
	result := p.Probe(context.Background(), "www.example.com")

	assert.True(t, result.Reachable)
	require.NotNil(t, result.StatusCode)
	assert.Equal(t, http.StatusOK, *result.StatusCode)
	assert.Empty(t, result.Error)
}

func TestProbe_HeadNotAllowedFallsBackToGet(t *testing.T) {
	httpClient := newTestClient(t)
	httpmock.RegisterResponder(http.MethodHead, "https://www.example.com/",
		httpmock.NewStringResponder(http.StatusMethodNotAllowed, ""))
	httpmock.RegisterResponder(http.MethodGet, "https://www.example.com/",
		httpmock.NewStringResponder(http.StatusOK, ""))

	p := prober.New(httpClient, testutil.NopLogger())
	result := p.Probe(context.Background(), "www.example.com")

	assert.True(t, result.Reachable)
	require.NotNil(t, result.StatusCode)
	assert.Equal(t, http.StatusOK, *result.StatusCode)
}

func TestProbe_4xxCountsAsReachable(t *testing.T) {
	httpClient := newTestClient(t)
	httpmock.RegisterResponder(http.MethodHead, "https://www.example.com/",
		httpmock.NewStringResponder(http.StatusForbidden, ""))

	p := prober.New(httpClient, testutil.NopLogger())
	result := p.Probe(context.Background(), "www.example.com")

	assert.True(t, result.Reachable)
	require.NotNil(t, result.StatusCode)
	assert.Equal(t, http.StatusForbidden, *result.StatusCode)
}

func TestProbe_FallsThroughToConfiguredPort(t *testing.T) {
	httpClient := newTestClient(t)
	connErr := errors.New("dial tcp: connection refused")
	httpmock.RegisterResponder(http.MethodHead, "https://www.example.com/", httpmock.NewErrorResponder(connErr))
	httpmock.RegisterResponder(http.MethodHead, "http://www.example.com/", httpmock.NewErrorResponder(connErr))
	httpmock.RegisterResponder(http.MethodHead, "https://www.example.com:8443/", httpmock.NewErrorResponder(connErr))
	httpmock.RegisterResponder(http.MethodHead, "http://www.example.com:8443/", httpmock.NewErrorResponder(connErr))
	httpmock.RegisterResponder(http.MethodHead, "https://www.example.com:8080/", httpmock.NewStringResponder(http.StatusOK, ""))

	p := prober.New(httpClient, testutil.NopLogger())
	result := p.Probe(context.Background(), "www.example.com")

	assert.True(t, result.Reachable)
	require.NotNil(t, result.StatusCode)
}

func TestProbe_AllAttemptsFail_ReturnsUnreachable(t *testing.T) {
	httpClient := newTestClient(t)
	connErr := errors.New("dial tcp 203.0.113.4:0x14: connection refused")
	httpmock.RegisterNoResponder(httpmock.NewErrorResponder(connErr))

	p := prober.NewWithPorts(httpClient, testutil.NopLogger(), []int{8443})
	result := p.Probe(context.Background(), "dead.example.com")

	assert.False(t, result.Reachable)
	assert.Nil(t, result.StatusCode)
	assert.NotEmpty(t, result.Error)
	assert.NotContains(t, result.Error, "0x14")
}
