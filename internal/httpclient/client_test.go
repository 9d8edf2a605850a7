package httpclient_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/dixcover/internal/httpclient"
	"github.com/tbckr/dixcover/internal/testutil"
)

func TestNew_NoProxy(t *testing.T) {
	client, err := httpclient.New("", "", testutil.NopLogger(), false)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNew_WithUserAgent(t *testing.T) {
	client, err := httpclient.New("", "dixcover-test/1.0", testutil.NopLogger(), false)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNew_WithHTTPProxy(t *testing.T) {
	client, err := httpclient.New("http://proxy.example.com:8080", "", testutil.NopLogger(), false)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNew_WithInvalidProxyScheme(t *testing.T) {
	_, err := httpclient.New("ftp://proxy.example.com", "", testutil.NopLogger(), false)
	require.Error(t, err)
}

func TestSanitize_StripsPointerTokens(t *testing.T) {
	in := "Get \"https://x\": dial tcp: connection refused (<HTTPSConnection object at 0xffff8a3c1d90>)"
	out := httpclient.Sanitize(in)
	assert.NotContains(t, out, "0xffff8a3c1d90")
	assert.Contains(t, out, "<ptr>")
}
