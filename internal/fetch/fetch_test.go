package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDownload ensures a successful transfer lands on disk intact.
func TestDownload(t *testing.T) {
	t.Parallel()

	payload := []byte("disk image bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.dmg")

	err := NewClient(time.Second).Download(context.Background(), server.URL, dest)
	require.NoError(t, err)

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, contents)
}

// TestDownloadBadStatus ensures non-2xx responses fail with ErrDownload.
func TestDownloadBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.dmg")

	err := NewClient(time.Second).Download(context.Background(), server.URL, dest)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDownload))
}

// TestDownloadEmptyBody ensures a zero-byte transfer is rejected
// and the truncated file is removed.
func TestDownloadEmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.dmg")

	err := NewClient(time.Second).Download(context.Background(), server.URL, dest)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDownload))

	_, err = os.Stat(dest)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

// TestHead ensures remote metadata headers are surfaced.
func TestHead(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)

		w.Header().Set("x-cos-meta-md5", "d41d8cd98f00b204e9800998ecf8427e")
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Header().Set("Content-Length", "52428800")
	}))
	defer server.Close()

	meta, err := NewClient(time.Second).Head(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", meta.MD5)
	require.Equal(t, "52428800", meta.ContentLength)
	require.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", meta.LastModified)
}
