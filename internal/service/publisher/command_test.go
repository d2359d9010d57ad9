package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/wechat-mac-releaser/internal/bundle"
	"github.com/oshokin/wechat-mac-releaser/internal/config"
	"github.com/oshokin/wechat-mac-releaser/internal/dmg"
	"github.com/oshokin/wechat-mac-releaser/internal/fetch"
	"github.com/oshokin/wechat-mac-releaser/internal/release"
)

// fakeResolver returns a fixed link.
type fakeResolver struct {
	link string
	err  error
}

func (f *fakeResolver) ResolveDownloadLink(_ context.Context, _ string) (string, error) {
	return f.link, f.err
}

// fakeTransfer serves a fixed payload and records whether a download happened.
type fakeTransfer struct {
	payload    []byte
	meta       fetch.Metadata
	headErr    error
	downloaded bool
}

func (f *fakeTransfer) Download(_ context.Context, _, destPath string) error {
	f.downloaded = true

	return os.WriteFile(destPath, f.payload, 0o644)
}

func (f *fakeTransfer) Head(_ context.Context, _ string) (fetch.Metadata, error) {
	return f.meta, f.headErr
}

// fakeVolume exposes a prepared directory tree as a mounted image.
type fakeVolume struct {
	root     string
	detached int
}

func (v *fakeVolume) Root() string { return v.root }

func (v *fakeVolume) Detach(_ context.Context) error {
	v.detached++

	return nil
}

// fakeMounter hands out a fakeVolume for any image.
type fakeMounter struct {
	volume *fakeVolume
	err    error
}

func (m *fakeMounter) Mount(_ context.Context, _ string) (dmg.Volume, error) {
	if m.err != nil {
		return nil, m.err
	}

	return m.volume, nil
}

// fakeHost records created releases and serves canned history.
type fakeHost struct {
	body    string
	bodyErr error
	tags    map[string]bool
	created []*release.Release
}

func (h *fakeHost) LatestBody(_ context.Context) (string, error) {
	return h.body, h.bodyErr
}

func (h *fakeHost) TagExists(_ context.Context, tag string) (bool, error) {
	return h.tags[tag], nil
}

func (h *fakeHost) CreateRelease(_ context.Context, rel *release.Release) error {
	h.created = append(h.created, rel)

	return nil
}

// writeBundleTree prepares a volume root containing an app bundle with
// the provided plist entries.
func writeBundleTree(t *testing.T, entries map[string]string) string {
	t.Helper()

	root := t.TempDir()
	contentsDir := filepath.Join(root, "WeChat.app", "Contents")
	require.NoError(t, os.MkdirAll(contentsDir, 0o755))

	body := ""
	for key, value := range entries {
		body += fmt.Sprintf("\t<key>%s</key>\n\t<string>%s</string>\n", key, value)
	}

	descriptor := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
` + body + `</dict>
</plist>
`
	require.NoError(t, os.WriteFile(filepath.Join(contentsDir, "Info.plist"), []byte(descriptor), 0o644))

	return root
}

// newTestRunner wires a runner with fakes around the given payload.
func newTestRunner(t *testing.T, transfer *fakeTransfer, mounter *fakeMounter, host *fakeHost) *runner {
	t.Helper()

	cfg := &config.Config{
		Repository:  "owner/repo",
		DownloadURL: "https://dldir1.example.com/WeChatMac.dmg",
		WorkDir:     filepath.Join(t.TempDir(), "work"),
	}
	require.NoError(t, config.Validate(cfg))

	return &runner{
		cfg:      cfg,
		resolver: &fakeResolver{link: cfg.DownloadURL},
		transfer: transfer,
		mounter:  mounter,
		host:     host,
		now: func() time.Time {
			return time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)
		},
	}
}

func digestOf(payload []byte) string {
	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:])
}

// TestRunPublishesNewBuild covers the happy path: no history, a fresh
// image, a release tagged with the extracted version.
func TestRunPublishesNewBuild(t *testing.T) {
	t.Parallel()

	payload := []byte("fresh disk image")
	volume := &fakeVolume{root: writeBundleTree(t, map[string]string{
		"CFBundleShortVersionString": "4.0.6",
		"CFBundleVersion":            "28914",
	})}

	transfer := &fakeTransfer{payload: payload}
	host := &fakeHost{tags: map[string]bool{}}
	r := newTestRunner(t, transfer, &fakeMounter{volume: volume}, host)

	require.NoError(t, r.Run(context.Background()))
	require.True(t, transfer.downloaded)
	require.Len(t, host.created, 1)

	created := host.created[0]
	require.Equal(t, "v4.0.6", created.Tag)
	require.Equal(t, "WeChat For Mac v4.0.6", created.Title)
	require.Len(t, created.Assets, 2)
	require.Equal(t, "WeChatMac-4.0.6.dmg", created.Assets[0].Name)
	require.Equal(t, "WeChatMac-4.0.6.dmg.sha256", created.Assets[1].Name)
	require.Contains(t, created.Notes, "Sha256: "+digestOf(payload))
	require.GreaterOrEqual(t, volume.detached, 1)

	// Work directory is removed on exit.
	_, err := os.Stat(r.cfg.WorkDir)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

// TestRunUpToDate ensures an identical digest stops the run before the
// publisher is invoked, with a clean zero exit.
func TestRunUpToDate(t *testing.T) {
	t.Parallel()

	payload := []byte("same disk image")
	volume := &fakeVolume{root: writeBundleTree(t, map[string]string{
		"CFBundleShortVersionString": "4.0.6",
	})}

	host := &fakeHost{
		body: "- DestVersion: 4.0.6\n- Sha256: " + digestOf(payload) + "\n",
		tags: map[string]bool{"v4.0.6": true},
	}
	r := newTestRunner(t, &fakeTransfer{payload: payload}, &fakeMounter{volume: volume}, host)

	require.NoError(t, r.Run(context.Background()))
	require.Empty(t, host.created)
}

// TestRunTagDisambiguation publishes a same-version rebuild under a dated tag.
func TestRunTagDisambiguation(t *testing.T) {
	t.Parallel()

	payload := []byte("silently patched image")
	volume := &fakeVolume{root: writeBundleTree(t, map[string]string{
		"CFBundleShortVersionString": "4.0.6",
	})}

	host := &fakeHost{
		body: "- DestVersion: 4.0.6\n- Sha256: " + digestOf([]byte("previous image")) + "\n",
		tags: map[string]bool{"v4.0.6": true},
	}
	r := newTestRunner(t, &fakeTransfer{payload: payload}, &fakeMounter{volume: volume}, host)

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, host.created, 1)
	require.Equal(t, "v4.0.6_20250831", host.created[0].Tag)
}

// TestRunMD5ShortCircuit skips the download when the remote MD5 matches
// the latest release.
func TestRunMD5ShortCircuit(t *testing.T) {
	t.Parallel()

	transfer := &fakeTransfer{
		payload: []byte("unused"),
		meta:    fetch.Metadata{MD5: "d41d8cd98f00b204e9800998ecf8427e"},
	}
	host := &fakeHost{
		body: "- Md5: d41d8cd98f00b204e9800998ecf8427e\n- Sha256: aaa\n",
		tags: map[string]bool{},
	}
	r := newTestRunner(t, transfer, &fakeMounter{err: errors.New("must not mount")}, host)

	require.NoError(t, r.Run(context.Background()))
	require.False(t, transfer.downloaded)
	require.Empty(t, host.created)
}

// TestRunForce publishes despite matching checksums.
func TestRunForce(t *testing.T) {
	t.Parallel()

	payload := []byte("same disk image")
	volume := &fakeVolume{root: writeBundleTree(t, map[string]string{
		"CFBundleShortVersionString": "4.0.6",
	})}

	host := &fakeHost{
		body: "- DestVersion: 4.0.6\n- Sha256: " + digestOf(payload) + "\n",
		tags: map[string]bool{"v4.0.6": true},
	}
	r := newTestRunner(t, &fakeTransfer{payload: payload}, &fakeMounter{volume: volume}, host)
	r.force = true

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, host.created, 1)
	require.Equal(t, "v4.0.6_20250831", host.created[0].Tag)
}

// TestRunSynthesizedVersion derives <major>+build.<build> from release
// history when the precise version is missing.
func TestRunSynthesizedVersion(t *testing.T) {
	t.Parallel()

	payload := []byte("image without short version")
	volume := &fakeVolume{root: writeBundleTree(t, map[string]string{
		"CFBundleVersion": "28914",
	})}

	host := &fakeHost{
		body: "- DestVersion: 4.0.5\n- Sha256: " + digestOf([]byte("previous image")) + "\n",
		tags: map[string]bool{},
	}
	r := newTestRunner(t, &fakeTransfer{payload: payload}, &fakeMounter{volume: volume}, host)

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, host.created, 1)
	require.Equal(t, "v4+build.28914", host.created[0].Tag)
}

// TestRunMetadataMissing fails the run instead of publishing an empty version.
func TestRunMetadataMissing(t *testing.T) {
	t.Parallel()

	volume := &fakeVolume{root: t.TempDir()}
	host := &fakeHost{tags: map[string]bool{}}
	r := newTestRunner(t, &fakeTransfer{payload: []byte("image")}, &fakeMounter{volume: volume}, host)

	err := r.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, bundle.ErrMetadataNotFound))
	require.Empty(t, host.created)
}

// TestRunMountFailure surfaces the mount error and publishes nothing.
func TestRunMountFailure(t *testing.T) {
	t.Parallel()

	host := &fakeHost{tags: map[string]bool{}}
	mounter := &fakeMounter{err: fmt.Errorf("%w: hdiutil failed", dmg.ErrMount)}
	r := newTestRunner(t, &fakeTransfer{payload: []byte("image")}, mounter, host)

	err := r.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, dmg.ErrMount))
	require.Empty(t, host.created)
}
