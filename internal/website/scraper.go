package website

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/oshokin/wechat-mac-releaser/internal/version"
)

const (
	// downloadButtonClass marks the anchor carrying the current installer link.
	downloadButtonClass = "download-button"

	// defaultTimeout bounds the page fetch when no client is supplied.
	defaultTimeout = 30 * time.Second
)

var (
	// ErrLinkNotFound is returned when the page contains no download anchor.
	ErrLinkNotFound = errors.New("download link not found on website")
	// errBadHTTPStatus is returned on a non-200 page response.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Scraper resolves the current installer link from the vendor page.
type Scraper struct {
	client *http.Client
}

// NewScraper creates a Scraper with the provided timeout for page fetches.
func NewScraper(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Scraper{
		client: &http.Client{Timeout: timeout},
	}
}

// ResolveDownloadLink fetches the vendor page and returns the href of the
// first anchor whose class list contains the download button marker.
func (s *Scraper) ResolveDownloadLink(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch vendor page: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s, %s: %w", pageURL, response.Status, errBadHTTPStatus)
	}

	link, err := findDownloadLink(response.Body)
	if err != nil {
		return "", err
	}

	return link, nil
}

// findDownloadLink tokenizes HTML and returns the first matching anchor href.
// The tokenizer is tolerant of the malformed markup vendor pages tend to ship.
func findDownloadLink(body io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(body)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if errors.Is(tokenizer.Err(), io.EOF) {
				return "", ErrLinkNotFound
			}

			return "", fmt.Errorf("parse vendor page: %w", tokenizer.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "a" {
				continue
			}

			if link, ok := anchorDownloadLink(token); ok {
				return link, nil
			}
		}
	}
}

// anchorDownloadLink extracts a non-empty href from a download button anchor.
func anchorDownloadLink(token html.Token) (string, bool) {
	var href string

	isDownloadButton := false

	for _, attr := range token.Attr {
		switch attr.Key {
		case "class":
			for _, class := range strings.Fields(attr.Val) {
				if class == downloadButtonClass {
					isDownloadButton = true
				}
			}
		case "href":
			href = strings.TrimSpace(attr.Val)
		}
	}

	if !isDownloadButton || href == "" {
		return "", false
	}

	return href, true
}
