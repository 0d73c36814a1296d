// eunoe.go: Public API - log-file lifecycle backend
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// HousekeepingSource is the source tag of the entries the Backend writes
// about its own rotation, compression and purge actions.
const HousekeepingSource = "eunoe"

var (
	// ErrEmptyPath is returned by New when Config.Path is empty.
	ErrEmptyPath = errors.New("eunoe: path cannot be empty")

	// ErrClosed is returned by operations on a closed Backend.
	ErrClosed = errors.New("eunoe: backend is closed")

	// ErrRotatedExists is reported when the rotation target name is taken.
	ErrRotatedExists = errors.New("eunoe: rotated file already exists")
)

// Backend owns one active log file. It rotates the file when its deadline
// passes and ages the rotated files in a background sweep: gzip past
// CompressAfter, delete past Retention.
//
// Basic usage:
//
//	b, err := eunoe.New(eunoe.Config{
//		Path:        "/var/log/app/app.log",
//		RotateEvery: 24 * time.Hour,
//		Retention:   30 * 24 * time.Hour,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	logger := slog.New(eunoe.NewHandler(b, nil))
//	logger.Info("service started")
//
// Backend is safe for concurrent use. A single mutex serializes the rotation
// check, the emission of each entry and the whole aging sweep, so entries
// never interleave in the file.
type Backend struct {
	path      string
	formatter Formatter
	clock     Clock
	ownClock  *cachedClock // non-nil when Close must stop it
	fileMode  os.FileMode
	utc       bool
	rotatedRE *regexp.Regexp

	mu            sync.Mutex
	file          *os.File
	rotateEvery   time.Duration
	compressAfter time.Duration
	retention     time.Duration
	nextRotation  time.Time // zero when rotation is disabled
	closed        bool
	scratch       []byte

	sweeper   *backgroundSweeper
	closeOnce sync.Once
}

// New creates the log directory, rotates aside any file already present at
// the path, and opens a fresh active file.
//
// Directory creation and file open failures are returned; the backend cannot
// work without a writable file. A failure to rotate the old file aside is
// not fatal: the old content is kept, appended to, and the failure is
// recorded as its next entry.
//
// Example:
//
//	b, err := eunoe.New(eunoe.Config{Path: "app.log"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
func New(cfg Config) (*Backend, error) {
	path, err := sanitizePath(cfg.Path)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("eunoe: failed to create log directory %q: %w", dir, err)
	}

	b := &Backend{
		path:          path,
		formatter:     cfg.Formatter,
		clock:         cfg.Clock,
		fileMode:      cfg.FileMode,
		utc:           cfg.UTC,
		rotatedRE:     rotatedPattern(filepath.Base(path)),
		rotateEvery:   cfg.RotateEvery,
		compressAfter: cfg.CompressAfter,
		retention:     cfg.Retention,
	}
	if b.clock == nil {
		b.ownClock = newCachedClock()
		b.clock = b.ownClock
	}
	b.sweeper = newBackgroundSweeper(b.runSweep)

	if err := b.initFile(); err != nil {
		if b.ownClock != nil {
			b.ownClock.stop()
		}
		return nil, err
	}
	return b, nil
}

// Write is the full entry path: it rotates the active file if its deadline
// has passed, then renders and durably writes the entry.
//
// Rotation and sweep failures never surface here; they are recorded as
// housekeeping entries in the log itself. An error is returned only when
// the entry itself could not be written, or after Close (ErrClosed).
func (b *Backend) Write(e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	now := b.now()
	if !b.nextRotation.IsZero() && !now.Before(b.nextRotation) {
		b.rotateLocked(now)
	}

	if e.Time.IsZero() {
		e.Time = now
	}
	return b.emit(&e)
}

// Rotate forces a rotation now, regardless of the deadline.
// The deadline restarts from the current time and a sweep is scheduled.
// Failures are recorded in the log, not returned.
func (b *Backend) Rotate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.rotateLocked(b.now())
	return nil
}

// Sweep runs one aging sweep synchronously on the caller's goroutine.
func (b *Backend) Sweep() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.sweepLocked(b.now())
	return nil
}

// WaitForBackgroundTasks blocks until no background sweep is queued or
// running.
//
// Example:
//
//	b.Rotate()                 // schedules a sweep
//	b.WaitForBackgroundTasks() // wait for compression to complete
//	// now safe to check for .gz files
func (b *Backend) WaitForBackgroundTasks() {
	b.sweeper.wait()
}

// SetRotateEvery changes the rotation span and recomputes the deadline from
// the current time. d <= 0 disables rotation. Setting the current span
// again leaves the deadline alone.
func (b *Backend) SetRotateEvery(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d == b.rotateEvery {
		return
	}
	b.rotateEvery = d
	b.nextRotation = NextRotation(b.now(), d)
}

// SetCompressAfter changes the compression age. d <= 0 disables compression.
func (b *Backend) SetCompressAfter(d time.Duration) {
	b.mu.Lock()
	b.compressAfter = d
	b.mu.Unlock()
}

// SetRetention changes the retention age. d <= 0 keeps rotated files forever.
func (b *Backend) SetRetention(d time.Duration) {
	b.mu.Lock()
	b.retention = d
	b.mu.Unlock()
}

// Path returns the sanitized path of the active file.
func (b *Backend) Path() string {
	return b.path
}

// Deadline returns the next rotation deadline, or the zero time when
// rotation is disabled.
func (b *Backend) Deadline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextRotation
}

// Close stops accepting entries, waits for a queued or running sweep to
// finish, then closes the active file. It is safe to call Close multiple
// times; subsequent calls return nil.
func (b *Backend) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		// the sweep takes b.mu, so b.mu must not be held here
		b.sweeper.stop()

		b.mu.Lock()
		if b.file != nil {
			closeErr = b.file.Close()
			b.file = nil
		}
		b.mu.Unlock()

		if b.ownClock != nil {
			b.ownClock.stop()
		}
	})
	return closeErr
}

// initFile opens the first active file, rotating aside a previous one
func (b *Backend) initFile() error {
	now := b.now()
	b.nextRotation = NextRotation(now, b.rotateEvery)

	info, err := os.Lstat(b.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := b.openActive(); err != nil {
			return err
		}
		b.note(now, slog.LevelInfo, "opened: %s", b.path)
		return nil
	case err != nil:
		return fmt.Errorf("eunoe: failed to stat log file %q: %w", b.path, err)
	case info.IsDir():
		return fmt.Errorf("eunoe: log file path %q is a directory", b.path)
	}

	rotated := rotatedName(b.path, now)
	renameErr := renameAside(b.path, rotated)

	if err := b.openActive(); err != nil {
		return err
	}
	if renameErr != nil {
		b.note(now, slog.LevelError, "rotate failed: %s → %s: %v", b.path, rotated, renameErr)
		return nil
	}
	b.note(now, slog.LevelInfo, "rotated: %s → %s", b.path, rotated)
	b.sweeper.submit()
	return nil
}

// openActive opens the file at b.path for appending and makes it active
func (b *Backend) openActive() error {
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, b.fileMode) // #nosec G304 -- path sanitized in New
	if err != nil {
		return fmt.Errorf("eunoe: failed to open log file %q: %w", b.path, err)
	}
	b.file = f
	return nil
}

// emit is the raw entry path: render, separate, write, sync. It performs no
// rotation check, so housekeeping code can call it while rotating.
func (b *Backend) emit(e *Entry) error {
	if b.file == nil {
		return ErrClosed
	}

	b.scratch = b.formatter.Format(b.scratch[:0], e)
	b.scratch = append(b.scratch, '\n')

	if _, err := b.file.Write(b.scratch); err != nil {
		return fmt.Errorf("eunoe: write %s: %w", b.file.Name(), err)
	}
	if err := b.file.Sync(); err != nil {
		return fmt.Errorf("eunoe: sync %s: %w", b.file.Name(), err)
	}
	return nil
}

// note writes a housekeeping entry through the raw path. There is nowhere
// left to report a failure of this write, so it is dropped.
func (b *Backend) note(now time.Time, level slog.Level, format string, args ...any) {
	_ = b.emit(&Entry{
		Time:    now,
		Level:   level,
		Source:  HousekeepingSource,
		Message: fmt.Sprintf(format, args...),
	})
}

// now returns the clock's time in the configured location
func (b *Backend) now() time.Time {
	t := b.clock.Now()
	if b.utc {
		return t.UTC()
	}
	return t
}
