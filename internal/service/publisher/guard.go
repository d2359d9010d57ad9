package publisher

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/wechat-mac-releaser/internal/logger"
)

const (
	// MarkerFilename marks that a publishing run is in progress,
	// so overlapping scheduled invocations do not double-publish.
	MarkerFilename = "wechat-mac-releaser-marker.bin"

	// markerLifetime is the period after which a stale run marker is
	// considered abandoned. A healthy run finishes well within it.
	markerLifetime = 2 * time.Hour

	// releaserExecutable is the process name checked during stale
	// marker recovery.
	releaserExecutable = "wechat-mac-releaser"
)

// isRunActive checks presence of a run marker and attempts recovery when
// it looks stale: a leftover marker with no matching live process is
// removed so the next scheduled run proceeds.
func isRunActive(ctx context.Context, markerPath string) bool {
	fileInfo, err := os.Stat(markerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false
		}

		logger.Infof(ctx, "Unable to read run marker: %v", err)

		return false
	}

	if time.Since(fileInfo.ModTime()) <= markerLifetime {
		return true
	}

	logger.Info(ctx, "The run marker is too old, attempting cleanup")

	if otherRunnerAlive() {
		return true
	}

	if err = os.Remove(markerPath); err != nil {
		return true
	}

	return false
}

// otherRunnerAlive reports whether another releaser process is running.
func otherRunnerAlive() bool {
	processList, err := ps.Processes()
	if err != nil {
		// Cannot tell, assume the marker owner is alive.
		return true
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == releaserExecutable {
			return true
		}
	}

	return false
}

// createRunMarker writes the marker file for this run.
func createRunMarker(markerPath string) error {
	marker, err := os.Create(markerPath)
	if err != nil {
		return err
	}

	return marker.Close()
}
