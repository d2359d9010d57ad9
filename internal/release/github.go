package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/wechat-mac-releaser/internal/version"
)

const (
	// defaultAPIBaseURL is the GitHub REST v3 endpoint.
	defaultAPIBaseURL = "https://api.github.com"

	// defaultUploadBaseURL is the GitHub asset upload endpoint.
	defaultUploadBaseURL = "https://uploads.github.com"

	// defaultTimeout bounds API calls; asset uploads get uploadTimeout.
	defaultTimeout = 30 * time.Second

	// uploadTimeout bounds a single asset upload, which may carry a full
	// installer image.
	uploadTimeout = 15 * time.Minute
)

// ErrPublish is the base error for failed release-hosting operations.
var ErrPublish = errors.New("release publishing failed")

// errRepositoryFormat is returned when the repository is not "owner/name".
var errRepositoryFormat = errors.New("repository must be in owner/name form")

// Asset is one file attached to a release.
type Asset struct {
	// Name is the filename shown on the release page.
	Name string
	// Path is the local file to upload.
	Path string
}

// Release describes a release to be created.
type Release struct {
	// Tag is the git tag the release is published under.
	Tag string
	// Title is the human-readable release name.
	Title string
	// Notes is the release body text.
	Notes string
	// Assets are the files attached to the release.
	Assets []Asset
}

// Host is the release hosting capability: querying history and creating
// new releases. Implementations other than GitHub exist only in tests.
type Host interface {
	// LatestBody returns the body text of the most recent release,
	// or an empty string when no release history exists.
	LatestBody(ctx context.Context) (string, error)
	// TagExists reports whether a release with the given tag is published.
	TagExists(ctx context.Context, tag string) (bool, error)
	// CreateRelease publishes a new release with its assets.
	CreateRelease(ctx context.Context, rel *Release) error
}

// GitHubHost publishes releases through the GitHub REST API.
type GitHubHost struct {
	apiBaseURL    string
	uploadBaseURL string
	owner         string
	repo          string
	token         string
	client        *http.Client
}

// Option adjusts a GitHubHost, mainly for tests.
type Option func(*GitHubHost)

// WithBaseURLs overrides the API and upload endpoints.
func WithBaseURLs(apiBaseURL, uploadBaseURL string) Option {
	return func(h *GitHubHost) {
		h.apiBaseURL = strings.TrimRight(apiBaseURL, "/")
		h.uploadBaseURL = strings.TrimRight(uploadBaseURL, "/")
	}
}

// WithToken sets the API token explicitly instead of reading the environment.
func WithToken(token string) Option {
	return func(h *GitHubHost) {
		h.token = token
	}
}

// NewGitHubHost creates a Host for the "owner/name" repository.
func NewGitHubHost(repository string, opts ...Option) (*GitHubHost, error) {
	owner, repo, found := strings.Cut(repository, "/")
	if !found || owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: %s", errRepositoryFormat, repository)
	}

	host := &GitHubHost{
		apiBaseURL:    defaultAPIBaseURL,
		uploadBaseURL: defaultUploadBaseURL,
		owner:         owner,
		repo:          repo,
		token:         TokenFromEnv(),
		client:        &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(host)
	}

	return host, nil
}

// TokenFromEnv reads the API token from the environment, preferring the
// tool-specific variable over the generic one.
func TokenFromEnv() string {
	if token := strings.TrimSpace(os.Getenv("RELEASER_GITHUB_TOKEN")); token != "" {
		return token
	}

	return strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
}

// releaseResponse mirrors the API fields this client consumes.
type releaseResponse struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Body    string `json:"body"`
}

// LatestBody returns the latest release body, or "" when the repository
// has no releases yet.
func (h *GitHubHost) LatestBody(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", h.apiBaseURL, h.owner, h.repo)

	response, err := h.doJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode == http.StatusNotFound {
		return "", nil
	}

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: latest release query: %s", ErrPublish, response.Status)
	}

	var rel releaseResponse
	if err := json.NewDecoder(response.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("%w: decode latest release: %w", ErrPublish, err)
	}

	return rel.Body, nil
}

// TagExists reports whether a release with the given tag is already published.
func (h *GitHubHost) TagExists(ctx context.Context, tag string) (bool, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", h.apiBaseURL, h.owner, h.repo, url.PathEscape(tag))

	response, err := h.doJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	switch response.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: tag query %s: %s", ErrPublish, tag, response.Status)
	}
}

// CreateRelease publishes the release, then uploads each asset. The
// release is permanent once created; asset upload failures are reported
// but not rolled back.
func (h *GitHubHost) CreateRelease(ctx context.Context, rel *Release) error {
	payload := map[string]string{
		"tag_name": rel.Tag,
		"name":     rel.Title,
		"body":     rel.Notes,
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", h.apiBaseURL, h.owner, h.repo)

	response, err := h.doJSON(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: create release %s: %s", ErrPublish, rel.Tag, response.Status)
	}

	var created releaseResponse
	if err := json.NewDecoder(response.Body).Decode(&created); err != nil {
		return fmt.Errorf("%w: decode created release: %w", ErrPublish, err)
	}

	for _, asset := range rel.Assets {
		if err := h.uploadAsset(ctx, created.ID, asset); err != nil {
			return err
		}
	}

	return nil
}

// uploadAsset posts one file to the release's asset endpoint.
func (h *GitHubHost) uploadAsset(ctx context.Context, releaseID int64, asset Asset) error {
	file, err := os.Open(filepath.Clean(asset.Path))
	if err != nil {
		return fmt.Errorf("%w: open asset %s: %w", ErrPublish, asset.Name, err)
	}

	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat asset %s: %w", ErrPublish, asset.Name, err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		h.uploadBaseURL, h.owner, h.repo, releaseID, url.QueryEscape(asset.Name))

	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPost, endpoint, file)
	if err != nil {
		return fmt.Errorf("%w: upload asset %s: %w", ErrPublish, asset.Name, err)
	}

	h.setCommonHeaders(req)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = info.Size()

	response, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: upload asset %s: %w", ErrPublish, asset.Name, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: upload asset %s: %s", ErrPublish, asset.Name, response.Status)
	}

	return nil
}

// doJSON performs an API request with an optional JSON payload.
func (h *GitHubHost) doJSON(ctx context.Context, method, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader = http.NoBody

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request: %w", ErrPublish, err)
		}

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	h.setCommonHeaders(req)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	response, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	return response, nil
}

// setCommonHeaders applies auth and protocol headers to every API request.
func (h *GitHubHost) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/vnd.github+json")

	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}
