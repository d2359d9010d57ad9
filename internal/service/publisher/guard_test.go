package publisher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestIsRunActive covers marker absence, a fresh marker and a stale one.
func TestIsRunActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	markerPath := filepath.Join(t.TempDir(), MarkerFilename)

	// No marker.
	require.False(t, isRunActive(ctx, markerPath))

	// Fresh marker from a concurrent run.
	require.NoError(t, createRunMarker(markerPath))
	require.True(t, isRunActive(ctx, markerPath))

	// Stale marker with no releaser process alive is cleaned up.
	old := time.Now().Add(-2 * markerLifetime)
	require.NoError(t, os.Chtimes(markerPath, old, old))
	require.False(t, isRunActive(ctx, markerPath))

	_, err := os.Stat(markerPath)
	require.True(t, os.IsNotExist(err))
}
