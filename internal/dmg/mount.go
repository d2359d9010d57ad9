package dmg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// hdiutilExecutable is the platform tool used to attach disk images.
	hdiutilExecutable = "hdiutil"

	// detachTimeout bounds the detach call so cleanup never hangs the run.
	detachTimeout = 30 * time.Second

	// volumesPrefix is where attached images appear in the filesystem.
	volumesPrefix = "/Volumes/"
)

// ErrMount is the base error for disk images that cannot be opened.
var ErrMount = errors.New("failed to mount disk image")

// Volume is a mounted disk image exposed as a browsable file tree.
type Volume interface {
	// Root returns the filesystem path of the mounted tree.
	Root() string
	// Detach unmounts the volume. Safe to call more than once.
	Detach(ctx context.Context) error
}

// Mounter opens a disk image and returns its file tree.
type Mounter interface {
	Mount(ctx context.Context, imagePath string) (Volume, error)
}

// HdiutilMounter attaches disk images with the platform's hdiutil tool.
type HdiutilMounter struct{}

// NewHdiutilMounter creates the default disk image mounter.
func NewHdiutilMounter() *HdiutilMounter {
	return &HdiutilMounter{}
}

// Mount attaches the image without opening a browser window and parses
// the mount point from the attach output.
func (m *HdiutilMounter) Mount(ctx context.Context, imagePath string) (Volume, error) {
	cmd := exec.CommandContext(ctx, hdiutilExecutable, "attach", imagePath, "-nobrowse")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMount, strings.TrimSpace(string(output)), err)
	}

	mountPoint, ok := parseMountPoint(string(output))
	if !ok {
		return nil, fmt.Errorf("%w: no mount point in attach output", ErrMount)
	}

	return &hdiutilVolume{root: mountPoint}, nil
}

// hdiutilVolume tracks a mounted image until it is detached.
type hdiutilVolume struct {
	root     string
	detached bool
}

// Root returns the filesystem path of the mounted tree.
func (v *hdiutilVolume) Root() string {
	return v.root
}

// Detach unmounts the volume. Repeat calls are no-ops so deferred
// cleanup can run after an explicit detach.
func (v *hdiutilVolume) Detach(ctx context.Context) error {
	if v.detached {
		return nil
	}

	detachCtx, cancel := context.WithTimeout(ctx, detachTimeout)
	defer cancel()

	cmd := exec.CommandContext(detachCtx, hdiutilExecutable, "detach", v.root)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("detach %s: %s: %w", v.root, strings.TrimSpace(string(output)), err)
	}

	v.detached = true

	return nil
}

// parseMountPoint extracts the last /Volumes path from hdiutil attach output.
// Attach output lists one line per device entry; the mounted filesystem
// comes last.
func parseMountPoint(output string) (string, bool) {
	mountPoint := ""

	for _, line := range strings.Split(output, "\n") {
		if index := strings.Index(line, volumesPrefix); index >= 0 {
			mountPoint = strings.TrimSpace(line[index:])
		}
	}

	return mountPoint, mountPoint != ""
}
