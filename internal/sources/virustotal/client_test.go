package virustotal_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/imroc/req/v3"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/sources/virustotal"
	"github.com/tbckr/dixcover/internal/testutil"
)

func TestPage_FirstPage(t *testing.T) {
	httpClient := req.NewClient()
	httpmock.ActivateNonDefault(httpClient.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponderWithQuery(http.MethodGet,
		"https://www.virustotal.com/api/v3/domains/example.com/relationships/subdomains",
		map[string]string{"limit": "40"},
		httpmock.NewStringResponder(http.StatusOK, `{
			"data":[{"type":"domain","id":"www.example.com"}],
			"meta":{"count":1},
			"links":{}
		}`),
	)

	c := virustotal.NewClient(httpClient, "test-key", testutil.NopLogger())
	page, err := c.Page(context.Background(), "example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Meta.Count)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "www.example.com", page.Data[0].ID)
}

func TestPage_FollowsNextURL(t *testing.T) {
	httpClient := req.NewClient()
	httpmock.ActivateNonDefault(httpClient.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet,
		"https://www.virustotal.com/api/v3/domains/example.com/relationships/subdomains?cursor=abc",
		httpmock.NewStringResponder(http.StatusOK, `{"data":[],"meta":{"count":1},"links":{}}`),
	)

	c := virustotal.NewClient(httpClient, "test-key", testutil.NopLogger())
	page, err := c.Page(context.Background(), "example.com",
		"https://www.virustotal.com/api/v3/domains/example.com/relationships/subdomains?cursor=abc")
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestPage_ErrorResponse_ReturnsEmpty(t *testing.T) {
	httpClient := req.NewClient()
	httpmock.ActivateNonDefault(httpClient.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponderWithQuery(http.MethodGet,
		"https://www.virustotal.com/api/v3/domains/example.com/relationships/subdomains",
		map[string]string{"limit": "40"},
		httpmock.NewStringResponder(http.StatusUnauthorized, ""),
	)

	c := virustotal.NewClient(httpClient, "bad-key", testutil.NopLogger())
	page, err := c.Page(context.Background(), "example.com", "")
	require.NoError(t, err)
	assert.Zero(t, page.Meta.Count)
}
