package http

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestArtifactWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json.gz")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := NewArtifactWatcher(path, nil, NewMetrics())
	require.NoError(t, err)
	changes := make(chan fsnotify.Event, 8)
	w.OnChange = func(ev fsnotify.Event) { changes <- ev }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	select {
	case ev := <-changes:
		require.Equal(t, path, filepath.Clean(ev.Name))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported for the artifact")
	}
}
