package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/wechat-mac-releaser/internal/bundle"
	"github.com/oshokin/wechat-mac-releaser/internal/config"
	"github.com/oshokin/wechat-mac-releaser/internal/dmg"
	"github.com/oshokin/wechat-mac-releaser/internal/fetch"
	"github.com/oshokin/wechat-mac-releaser/internal/logger"
	"github.com/oshokin/wechat-mac-releaser/internal/manifest"
	"github.com/oshokin/wechat-mac-releaser/internal/release"
	"github.com/oshokin/wechat-mac-releaser/internal/website"
)

const (
	// dateSuffixLayout disambiguates tags for same-version rebuilds.
	dateSuffixLayout = "20060102"

	// imageExtension is the artifact file extension.
	imageExtension = ".dmg"

	// manifestExtension is appended to the artifact name for the manifest asset.
	manifestExtension = ".sha256"

	// tempDirName is the transfer staging area inside the work directory.
	tempDirName = "temp"

	// stagingDirMode is used for directories created under the work directory.
	stagingDirMode os.FileMode = 0o755
)

// errAlreadyRunning indicates a concurrent publishing run holds the marker.
var errAlreadyRunning = errors.New("another publishing run is in progress")

// Options are inputs accepted by the publisher entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Repository overrides the release destination from the settings file.
	Repository string
	// DownloadURL overrides link discovery with a direct artifact URL.
	DownloadURL string
	// Force publishes even when checksums match the latest release.
	Force bool
}

// linkResolver discovers the current artifact link from the vendor page.
type linkResolver interface {
	ResolveDownloadLink(ctx context.Context, pageURL string) (string, error)
}

// transferClient downloads artifacts and probes remote metadata.
type transferClient interface {
	Download(ctx context.Context, url, destPath string) error
	Head(ctx context.Context, url string) (fetch.Metadata, error)
}

// runner holds the collaborators and mutable state of one publishing run.
// It is intentionally unexported, call Run(ctx, Options) from callers.
type runner struct {
	cfg      *config.Config
	force    bool
	resolver linkResolver
	transfer transferClient
	mounter  dmg.Mounter
	host     release.Host
	now      func() time.Time
}

// Run executes the publishing pipeline and is the public entry point for
// the CLI. It returns nil both on a published release and on "already up
// to date"; the process exits non-zero only on fatal errors.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "wechat-mac-releaser")

	cfg, err := config.Read(opts.ConfigPath)
	if err != nil {
		return err
	}

	if opts.Repository != "" {
		cfg.Repository = opts.Repository
	}

	if opts.DownloadURL != "" {
		cfg.DownloadURL = opts.DownloadURL
	}

	if err = config.Validate(cfg); err != nil {
		return err
	}

	if isRunActive(ctx, MarkerFilename) {
		return errAlreadyRunning
	}

	if err = createRunMarker(MarkerFilename); err != nil {
		return fmt.Errorf("create run marker: %w", err)
	}

	defer func() {
		_ = os.Remove(MarkerFilename)
	}()

	host, err := release.NewGitHubHost(cfg.Repository)
	if err != nil {
		return err
	}

	r := &runner{
		cfg:      cfg,
		force:    opts.Force,
		resolver: website.NewScraper(cfg.Timeout),
		transfer: fetch.NewClient(cfg.Timeout),
		mounter:  dmg.NewHdiutilMounter(),
		host:     host,
		now:      time.Now,
	}

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Publishing run failed", "error", err)
		return err
	}

	return nil
}

// Run walks the pipeline:
// 1) Resolve the artifact link.
// 2) Read latest release info and remote metadata.
// 3) Short-circuit by remote MD5 before downloading.
// 4) Download the artifact.
// 5) Mount the image and extract the version record.
// 6) Compare SHA-256 digests; stop when up to date.
// 7) Pick the release tag, disambiguating same-version rebuilds.
// 8) Stage assets and create the release.
func (r *runner) Run(ctx context.Context) error {
	defer r.cleanup(ctx)

	link, err := r.resolveLink(ctx)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Resolved download link", "url", link)

	latestBody, err := r.host.LatestBody(ctx)
	if err != nil {
		return fmt.Errorf("query latest release: %w", err)
	}

	latest := manifest.ParseBody(latestBody)

	remote := r.probeRemoteMetadata(ctx, link)
	if r.matchesByMD5(ctx, remote, latest) {
		return nil
	}

	imagePath, err := r.downloadArtifact(ctx, link)
	if err != nil {
		return err
	}

	record, err := r.extractVersion(ctx, imagePath, latest[manifest.KeyDestVersion])
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Detected version", "version", record.Version, "source", record.Source)

	digest, err := fileSHA256(imagePath)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Computed artifact checksum", "sha256", digest)

	if r.matchesBySHA256(ctx, digest, latest) {
		return nil
	}

	tag, err := r.releaseTag(ctx, record.Version)
	if err != nil {
		return err
	}

	return r.publish(ctx, &publication{
		link:      link,
		imagePath: imagePath,
		record:    record,
		digest:    digest,
		remote:    remote,
		tag:       tag,
	})
}

// publication gathers everything the publish step needs.
type publication struct {
	link      string
	imagePath string
	record    bundle.VersionRecord
	digest    string
	remote    fetch.Metadata
	tag       string
}

// resolveLink returns the configured direct link or scrapes the vendor page.
func (r *runner) resolveLink(ctx context.Context) (string, error) {
	if r.cfg.DownloadURL != "" {
		return r.cfg.DownloadURL, nil
	}

	link, err := r.resolver.ResolveDownloadLink(ctx, r.cfg.WebsiteURL)
	if err != nil {
		return "", fmt.Errorf("resolve download link: %w", err)
	}

	return link, nil
}

// probeRemoteMetadata reads remote file attributes. Best-effort: a failed
// probe only disables the MD5 short-circuit.
func (r *runner) probeRemoteMetadata(ctx context.Context, link string) fetch.Metadata {
	remote, err := r.transfer.Head(ctx, link)
	if err != nil {
		logger.Warnf(ctx, "HEAD metadata unavailable: %v", err)
		return fetch.Metadata{}
	}

	logger.InfoKV(ctx, "Remote metadata",
		"md5", remote.MD5, "size", remote.ContentLength, "last_modified", remote.LastModified)

	return remote
}

// matchesByMD5 reports whether the remote MD5 proves the latest release
// already carries this artifact, skipping the download entirely.
func (r *runner) matchesByMD5(ctx context.Context, remote fetch.Metadata, latest map[string]string) bool {
	if remote.MD5 == "" || latest[manifest.KeyMd5] == "" {
		return false
	}

	if remote.MD5 != latest[manifest.KeyMd5] {
		return false
	}

	if r.force {
		logger.Info(ctx, "MD5 matches latest release, but force release is enabled")
		return false
	}

	logger.Info(ctx, "No new version detected by MD5, skipping download")

	return true
}

// matchesBySHA256 reports whether the latest release already carries an
// artifact with this digest.
func (r *runner) matchesBySHA256(ctx context.Context, digest string, latest map[string]string) bool {
	latestDigest := latest[manifest.KeySha256]
	if latestDigest == "" || latestDigest != digest {
		return false
	}

	if r.force {
		logger.Info(ctx, "SHA256 matches latest release, but force release is enabled")
		return false
	}

	logger.Info(ctx, "No new version detected by SHA256, skipping release")

	return true
}

// downloadArtifact transfers the image into the work directory's temp area.
func (r *runner) downloadArtifact(ctx context.Context, link string) (string, error) {
	tempDir := filepath.Join(r.cfg.WorkDir, tempDirName)
	if err := os.MkdirAll(tempDir, stagingDirMode); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}

	imagePath := filepath.Join(tempDir, r.cfg.ProductName+imageExtension)

	logger.InfoKV(ctx, "Downloading artifact", "url", link, "path", imagePath)

	if err := r.transfer.Download(ctx, link, imagePath); err != nil {
		return "", err
	}

	return imagePath, nil
}

// extractVersion mounts the image, locates the bundle descriptor and
// derives the version record. The volume is detached before returning;
// the deferred detach only covers error paths.
func (r *runner) extractVersion(
	ctx context.Context,
	imagePath, latestVersion string,
) (bundle.VersionRecord, error) {
	var record bundle.VersionRecord

	volume, err := r.mounter.Mount(ctx, imagePath)
	if err != nil {
		return record, err
	}

	defer func() {
		_ = volume.Detach(ctx)
	}()

	descriptorPath, err := bundle.LocateDescriptor(volume.Root(), r.cfg.AppName)
	if err != nil {
		return record, err
	}

	record, err = bundle.ExtractVersion(descriptorPath, bundle.MajorOf(latestVersion))
	if err != nil {
		return record, err
	}

	if err = volume.Detach(ctx); err != nil {
		logger.Warnf(ctx, "Detach failed: %v", err)
	}

	return record, nil
}

// releaseTag derives the tag for this release. A same-version rebuild
// (same tag, different content) gets a UTC date suffix.
func (r *runner) releaseTag(ctx context.Context, versionNumber string) (string, error) {
	tag := "v" + versionNumber

	exists, err := r.host.TagExists(ctx, tag)
	if err != nil {
		return "", fmt.Errorf("check tag %s: %w", tag, err)
	}

	if exists {
		tag = tag + "_" + r.now().UTC().Format(dateSuffixLayout)
		logger.InfoKV(ctx, "Tag already published, using dated tag", "tag", tag)
	}

	return tag, nil
}

// publish stages the renamed artifact plus its manifest and creates the
// release. This is the only state-mutating external action; once the
// release exists it is not undone.
func (r *runner) publish(ctx context.Context, pub *publication) error {
	stageDir := filepath.Join(r.cfg.WorkDir, pub.record.Version)
	if err := os.MkdirAll(stageDir, stagingDirMode); err != nil {
		return fmt.Errorf("create release staging directory: %w", err)
	}

	assetName := r.cfg.ProductName + "-" + pub.record.Version + imageExtension
	assetPath := filepath.Join(stageDir, assetName)

	if err := copyFile(pub.imagePath, assetPath); err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}

	m := &manifest.Manifest{
		DestVersion:   pub.record.Version,
		Sha256:        pub.digest,
		UpdateTime:    r.now().UTC(),
		DownloadFrom:  pub.link,
		Md5:           pub.remote.MD5,
		ContentLength: pub.remote.ContentLength,
		LastModified:  pub.remote.LastModified,
	}

	manifestName := assetName + manifestExtension
	manifestPath := filepath.Join(stageDir, manifestName)

	if err := os.WriteFile(manifestPath, []byte(m.Render()), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	title := r.cfg.ProductTitle + " " + pub.tag

	logger.InfoKV(ctx, "Creating release", "tag", pub.tag, "title", title)

	err := r.host.CreateRelease(ctx, &release.Release{
		Tag:   pub.tag,
		Title: title,
		Notes: m.ReleaseNotes(r.cfg.ProductTitle),
		Assets: []release.Asset{
			{Name: assetName, Path: assetPath},
			{Name: manifestName, Path: manifestPath},
		},
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release created", "tag", pub.tag)

	return nil
}

// cleanup removes the work directory on every exit path, so no state
// leaks into the next scheduled run.
func (r *runner) cleanup(ctx context.Context) {
	if err := os.RemoveAll(r.cfg.WorkDir); err != nil {
		logger.Warnf(ctx, "Cleanup failed: %v", err)
		return
	}

	logger.Debug(ctx, "Cleanup completed")
}

// copyFile duplicates src at dst.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
