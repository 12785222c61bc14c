package http

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reports changes to the model artifact on disk. The running
// server keeps serving the artifact it loaded at startup; an operator must
// restart it to pick up a new one.
type ArtifactWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	metrics  *Metrics
	OnChange func(fsnotify.Event)
}

// NewArtifactWatcher watches the directory holding path.
func NewArtifactWatcher(path string, logger *zap.Logger, metrics *Metrics) (*ArtifactWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: SaveArtifact replaces the file by renaming.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactWatcher{path: abs, watcher: w, logger: logger, metrics: metrics}, nil
}

// Run blocks until ctx is done.
func (aw *ArtifactWatcher) Run(ctx context.Context) error {
	defer aw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-aw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != aw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			aw.logger.Warn("model artifact changed on disk; restart the server to serve it",
				zap.String("path", aw.path),
				zap.String("op", ev.Op.String()))
			if aw.metrics != nil {
				aw.metrics.observeArtifactChange()
			}
			if aw.OnChange != nil {
				aw.OnChange(ev)
			}
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return nil
			}
			aw.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}
