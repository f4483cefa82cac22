package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-dash/dashdemux/pkg/httpclient"
)

// Options captures the transport options AVIO-style code propagates from
// the outer open to every manifest/init/segment fetch: headers, cookies,
// user agent, proxy, referer, a read-write timeout, and the legacy Shoutcast
// ICY metadata flag. Per spec.md §6 these are captured once at the initial
// open and replayed unchanged on every subsequent fetch.
type Options struct {
	Headers   http.Header
	UserAgent string
	Cookies   string
	Proxy     string
	Referer   string
	RWTimeout time.Duration
	ICY       bool
}

// HTTPClient adapts the resilient httpclient.Client (circuit breaker,
// retry, brotli/gzip/deflate decompression) to the fetch.Client contract,
// issuing byte-range GETs and HEAD-based size probes.
type HTTPClient struct {
	client *httpclient.Client
	opts   Options
}

// NewHTTPClient builds an HTTPClient from a resilient httpclient.Config and
// the transport options to replay on every request.
func NewHTTPClient(cfg httpclient.Config, opts Options) *HTTPClient {
	if opts.UserAgent != "" {
		cfg.UserAgent = opts.UserAgent
	}
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil {
			cfg.BaseClient = &http.Client{
				Timeout:   cfg.Timeout,
				Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
			}
		}
	}
	return &HTTPClient{
		client: httpclient.New(cfg),
		opts:   opts,
	}
}

// Open issues a ranged GET against url. length of -1 means "to EOF", which
// omits the end of the Range header.
func (c *HTTPClient) Open(ctx context.Context, rawURL string, offset, length int64) (io.ReadCloser, error) {
	if c.opts.RWTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RWTimeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if offset > 0 || length >= 0 {
		req.Header.Set("Range", rangeHeader(offset, length))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: GET %s: %w", rawURL, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return resp.Body, nil
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch: GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
}

// Size issues a HEAD request and returns Content-Length, or -1 if the
// server doesn't report one.
func (c *HTTPClient) Size(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return -1, fmt.Errorf("fetch: HEAD %s: %w", rawURL, err)
	}
	c.applyHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return -1, fmt.Errorf("fetch: HEAD %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return -1, fmt.Errorf("fetch: HEAD %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return -1, nil
	}
	return resp.ContentLength, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: building request for %s: %w", rawURL, err)
	}
	c.applyHeaders(req)
	return req, nil
}

func (c *HTTPClient) applyHeaders(req *http.Request) {
	for key, values := range c.opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.opts.Cookies != "" {
		req.Header.Set("Cookie", c.opts.Cookies)
	}
	if c.opts.Referer != "" {
		req.Header.Set("Referer", c.opts.Referer)
	}
	if c.opts.ICY {
		req.Header.Set("Icy-MetaData", "1")
	}
}

func rangeHeader(offset, length int64) string {
	if length < 0 {
		return fmt.Sprintf("bytes=%d-", offset)
	}
	return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
}
