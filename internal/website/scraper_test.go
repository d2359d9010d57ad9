package website

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<body>
<div class="nav"><a href="/faq">FAQ</a></div>
<a class="btn download-button" href="https://dldir1.example.com/WeChatMac.dmg"><div><p>Download</p></div></a>
<a class="download-button" href="https://dldir1.example.com/other.dmg">Mirror</a>
</body>
</html>`

// TestResolveDownloadLink ensures the first download button anchor wins.
func TestResolveDownloadLink(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	link, err := NewScraper(time.Second).ResolveDownloadLink(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "https://dldir1.example.com/WeChatMac.dmg", link)
}

// TestResolveDownloadLinkMissing ensures pages without the anchor fail cleanly.
func TestResolveDownloadLinkMissing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="/other">nope</a></body></html>`))
	}))
	defer server.Close()

	_, err := NewScraper(time.Second).ResolveDownloadLink(context.Background(), server.URL)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLinkNotFound))
}

// TestResolveDownloadLinkBadStatus ensures non-200 responses are reported.
func TestResolveDownloadLinkBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewScraper(time.Second).ResolveDownloadLink(context.Background(), server.URL)
	require.Error(t, err)
}
