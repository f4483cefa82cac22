package fetch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempSegment(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestFileClient_Open_AllowedExtension(t *testing.T) {
	path := writeTempSegment(t, "init.mp4", []byte("ftypmp42"))
	c := NewFileClient([]string{"mp4", "m4s"})

	rc, err := c.Open(context.Background(), "file://"+path, 0, -1)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ftypmp42", string(data))
}

func TestFileClient_Open_DisallowedExtension(t *testing.T) {
	path := writeTempSegment(t, "payload.exe", []byte("x"))
	c := NewFileClient([]string{"mp4", "m4s"})

	_, err := c.Open(context.Background(), "file://"+path, 0, -1)
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}

func TestFileClient_Open_AllowAll(t *testing.T) {
	path := writeTempSegment(t, "payload.exe", []byte("x"))
	c := NewFileClient([]string{"ALL"})

	rc, err := c.Open(context.Background(), "file://"+path, 0, -1)
	require.NoError(t, err)
	rc.Close()
}

func TestFileClient_Open_RangeAndLength(t *testing.T) {
	path := writeTempSegment(t, "seg.m4s", []byte("0123456789"))
	c := NewFileClient([]string{"m4s"})

	rc, err := c.Open(context.Background(), "file://"+path, 3, 4)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(data))
}

func TestFileClient_Size(t *testing.T) {
	path := writeTempSegment(t, "seg.ts", []byte("0123456789"))
	c := NewFileClient([]string{"ts"})

	size, err := c.Size(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}

func TestFileClient_Open_NotFound(t *testing.T) {
	c := NewFileClient([]string{"ALL"})
	_, err := c.Open(context.Background(), "file:///nonexistent/path/segment.mp4", 0, -1)
	assert.Error(t, err)
}
