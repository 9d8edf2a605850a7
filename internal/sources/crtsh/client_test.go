package crtsh_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/imroc/req/v3"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/sources/crtsh"
	"github.com/tbckr/dixcover/internal/testutil"
)

func newTestClient(t *testing.T) *req.Client {
	t.Helper()
	client := req.NewClient()
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestSearch_Success(t *testing.T) {
	fixture, err := os.ReadFile("testdata/crtsh_response.json")
	require.NoError(t, err)

	httpClient := newTestClient(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, "https://crt.sh/",
		map[string]string{"q": "example.com", "output": "json"},
		httpmock.NewBytesResponder(http.StatusOK, fixture),
	)

	c := crtsh.NewClient(httpClient, testutil.NopLogger())
	entries, err := c.Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestSearch_NonTransientError_ReturnsEmpty(t *testing.T) {
	httpClient := newTestClient(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, "https://crt.sh/",
		map[string]string{"q": "example.com", "output": "json"},
		httpmock.NewStringResponder(http.StatusInternalServerError, ""),
	)

	c := crtsh.NewClient(httpClient, testutil.NopLogger())
	entries, err := c.Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearch_502ExhaustsRetriesThenEmpty(t *testing.T) {
	httpClient := newTestClient(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, "https://crt.sh/",
		map[string]string{"q": "example.com", "output": "json"},
		httpmock.NewStringResponder(http.StatusBadGateway, ""),
	)

	c := crtsh.NewClient(httpClient, testutil.NopLogger())
	entries, err := c.Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Empty(t, entries)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 4, info["GET https://crt.sh/?output=json&q=example.com"])
}
