// watch.go: Configuration hot reload
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Callback receives the reloaded file, or the error that prevented it.
// It runs on a timer goroutine.
type Callback func(f *File, err error)

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long the watcher waits after the last change
// before reloading.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher reloads a configuration file when it changes.
//
//	w, err := config.Watch("logging.yaml", func(f *config.File, err error) {
//		if err != nil {
//			slog.Error("config reload failed", "error", err)
//			return
//		}
//		_ = f.Apply(backend)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer w.Close()
//	go w.Run(ctx)
type Watcher struct {
	path     string
	callback Callback
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// Watch starts watching path. The containing directory is watched rather
// than the file, because editors often replace the file on save.
func Watch(path string, callback Callback, opts ...WatchOption) (*Watcher, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if _, err := detectFormat(path); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Join(
			fmt.Errorf("config: failed to watch directory %s: %w", dir, err),
			fsw.Close(),
		)
	}

	w := &Watcher{
		path:     path,
		callback: callback,
		debounce: DefaultDebounce,
		fsw:      fsw,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run dispatches file events until ctx is done or the watcher is closed.
// It closes the watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			// Write: edited in place; Create/Rename: replaced by an atomic save
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if w.callback != nil {
				w.callback(nil, fmt.Errorf("config: watch error: %w", err))
			}
		}
	}
}

// schedule (re)arms the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	f, err := Load(w.path)
	if w.callback != nil {
		w.callback(f, err)
	}
}

// Close stops the watcher. Pending reloads are cancelled. Safe to call
// more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	return w.fsw.Close()
}
