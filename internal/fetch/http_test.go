package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-dash/dashdemux/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Open_FullBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("manifest body"))
	}))
	defer server.Close()

	c := NewHTTPClient(httpclient.DefaultConfig(), Options{})
	rc, err := c.Open(context.Background(), server.URL, 0, -1)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "manifest body", string(body))
}

func TestHTTPClient_Open_ByteRange(t *testing.T) {
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("segment"))
	}))
	defer server.Close()

	c := NewHTTPClient(httpclient.DefaultConfig(), Options{})
	rc, err := c.Open(context.Background(), server.URL, 100, 50)
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, "bytes=100-149", gotRange)
}

func TestHTTPClient_Open_OpenEndedRange(t *testing.T) {
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
	}))
	defer server.Close()

	c := NewHTTPClient(httpclient.DefaultConfig(), Options{})
	rc, err := c.Open(context.Background(), server.URL, 200, -1)
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, "bytes=200-", gotRange)
}

func TestHTTPClient_PropagatesOptions(t *testing.T) {
	var gotUA, gotCookie, gotReferer, gotICY string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
		gotReferer = r.Header.Get("Referer")
		gotICY = r.Header.Get("Icy-MetaData")
	}))
	defer server.Close()

	opts := Options{
		UserAgent: "dashdemux-test/1.0",
		Cookies:   "session=abc123",
		Referer:   "https://example.com/",
		ICY:       true,
	}
	c := NewHTTPClient(httpclient.DefaultConfig(), opts)
	rc, err := c.Open(context.Background(), server.URL, 0, -1)
	require.NoError(t, err)
	rc.Close()

	assert.Equal(t, "dashdemux-test/1.0", gotUA)
	assert.Equal(t, "session=abc123", gotCookie)
	assert.Equal(t, "https://example.com/", gotReferer)
	assert.Equal(t, "1", gotICY)
}

func TestHTTPClient_Size(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "4096")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewHTTPClient(httpclient.DefaultConfig(), Options{})
	size, err := c.Size(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestHTTPClient_Open_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	c := NewHTTPClient(cfg, Options{})
	_, err := c.Open(context.Background(), server.URL, 0, -1)
	assert.Error(t, err)
}

func TestRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes=0-99", rangeHeader(0, 100))
	assert.Equal(t, "bytes=500-", rangeHeader(500, -1))
}
