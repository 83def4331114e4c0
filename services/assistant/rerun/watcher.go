// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rerun

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// completionMarker is the file floodns writes into the run directory as its
// final act. Its appearance means the simulation results are on disk.
const completionMarker = "finished.txt"

// RunWatcher watches one run directory for the simulator's completion marker.
//
// Only Create and Write events count: a marker left over from a previous run
// does not fire until the simulator rewrites it, so a fresh re-run into a
// dirty directory is not declared complete prematurely.
//
// Thread Safety: Safe for concurrent use. Watch should only be called once.
type RunWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
	once    sync.Once
}

// NewRunWatcher creates a watcher on the run directory. The directory must
// exist; the marker file need not.
func NewRunWatcher(dir string, logger *slog.Logger) (*RunWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &RunWatcher{
		dir:     dir,
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Done is closed when the completion marker is written.
func (w *RunWatcher) Done() <-chan struct{} {
	return w.done
}

// Watch blocks until the marker appears or the context ends, then releases
// the underlying filesystem watch. Should be run in a goroutine.
func (w *RunWatcher) Watch(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()

	w.logger.Debug("Watching run directory for completion marker",
		slog.String("dir", w.dir))

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.isCompletion(event) {
				w.logger.Debug("Completion marker written",
					slog.String("path", event.Name))
				w.signal()
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Run directory watcher error",
				slog.String("dir", w.dir),
				slog.String("error", err.Error()))

		case <-ctx.Done():
			return
		}
	}
}

// isCompletion reports whether the event is a write of the completion marker.
func (w *RunWatcher) isCompletion(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	return filepath.Base(event.Name) == completionMarker
}

func (w *RunWatcher) signal() {
	w.once.Do(func() { close(w.done) })
}
