package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/wechat-mac-releaser/internal/version"
)

const (
	// remoteMD5Header is the object-store metadata header carrying the
	// vendor-side MD5 of the artifact.
	remoteMD5Header = "x-cos-meta-md5"

	// defaultTimeout bounds transfers when no timeout is supplied.
	defaultTimeout = 30 * time.Second

	// artifactFileMode is used for the downloaded artifact on disk.
	artifactFileMode os.FileMode = 0o644
)

var (
	// ErrDownload is the base error for failed artifact transfers.
	ErrDownload = errors.New("artifact download failed")
	// errEmptyBody is returned when the transfer completes with zero bytes.
	errEmptyBody = errors.New("empty response body")
	// errBadHTTPStatus is returned on a non-2xx transfer response.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Metadata carries the remote file attributes read from a HEAD response.
// Absent headers leave the corresponding field empty.
type Metadata struct {
	// MD5 is the vendor-side MD5 digest of the artifact, when exposed.
	MD5 string
	// ContentLength is the advertised artifact size in bytes.
	ContentLength string
	// LastModified is the remote modification timestamp.
	LastModified string
}

// Client downloads artifacts and probes remote file metadata.
type Client struct {
	client *http.Client
}

// NewClient creates a Client with the provided timeout for transfers.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		client: &http.Client{Timeout: timeout},
	}
}

// Download retrieves the artifact at url into destPath in a single attempt.
// A transport error, non-2xx status or empty body fails with ErrDownload.
func (c *Client) Download(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s, %s: %w", ErrDownload, url, response.Status, errBadHTTPStatus)
	}

	written, err := writeBodyToFile(response.Body, destPath)
	if err != nil {
		// Do not leave a truncated artifact behind.
		_ = os.Remove(destPath)

		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	if written == 0 {
		_ = os.Remove(destPath)

		return fmt.Errorf("%w: %s: %w", ErrDownload, url, errEmptyBody)
	}

	return nil
}

// Head probes the artifact URL and returns whatever metadata the remote
// exposes. Callers treat a failed probe as absent metadata, never fatal.
func (c *Client) Head(ctx context.Context, url string) (Metadata, error) {
	var meta Metadata

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return meta, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := c.client.Do(req)
	if err != nil {
		return meta, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return meta, fmt.Errorf("%s, %s: %w", url, response.Status, errBadHTTPStatus)
	}

	meta.MD5 = strings.TrimSpace(response.Header.Get(remoteMD5Header))
	meta.ContentLength = strings.TrimSpace(response.Header.Get("Content-Length"))
	meta.LastModified = strings.TrimSpace(response.Header.Get("Last-Modified"))

	return meta, nil
}

// writeBodyToFile streams the response body to disk and reports bytes written.
func writeBodyToFile(body io.Reader, destPath string) (int64, error) {
	outputFile, err := os.OpenFile(filepath.Clean(destPath), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, artifactFileMode)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(outputFile, body)
	if err != nil {
		_ = outputFile.Close()

		return written, err
	}

	return written, outputFile.Close()
}
