package dash

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// memClient is an in-memory fetch.Client fake keyed by URL, used across the
// package's tests to avoid any real network or filesystem access.
type memClient struct {
	resources map[string][]byte
}

func newMemClient() *memClient {
	return &memClient{resources: make(map[string][]byte)}
}

func (c *memClient) set(url string, data []byte) {
	c.resources[url] = data
}

func (c *memClient) Open(ctx context.Context, url string, offset, length int64) (io.ReadCloser, error) {
	data, ok := c.resources[url]
	if !ok {
		return nil, fmt.Errorf("memClient: no resource registered for %s", url)
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	data = data[offset:]
	if length >= 0 && length < int64(len(data)) {
		data = data[:length]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *memClient) Size(ctx context.Context, url string) (int64, error) {
	data, ok := c.resources[url]
	if !ok {
		return -1, fmt.Errorf("memClient: no resource registered for %s", url)
	}
	return int64(len(data)), nil
}
