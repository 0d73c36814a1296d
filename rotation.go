// rotation.go: Rotation scheduling, rotation and aging sweep
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
	"strings"
	"sync"
	"time"
)

// timestampLayout is the date part of a rotated-file suffix; three
// millisecond digits follow it
const timestampLayout = "20060102150405"

// NextRotation computes the rotation deadline for a file opened at now.
//
// Spans of one day or more are day-aligned: the deadline is the start of the
// calendar day (in now's location) containing now+span. Shorter spans are
// exact: the deadline is now+span. A span <= 0 disables rotation and yields
// the zero time.
func NextRotation(now time.Time, span time.Duration) time.Time {
	if span <= 0 {
		return time.Time{}
	}
	next := now.Add(span)
	if span < 24*time.Hour {
		return next
	}
	y, m, d := next.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, next.Location())
}

// rotatedName returns path plus a fixed-width millisecond timestamp, so
// lexicographic order of rotated names is chronological order
func rotatedName(path string, t time.Time) string {
	ms := t.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf("%s.%s%03d", path, t.Format(timestampLayout), ms)
}

// rotatedPattern matches the rotated and compressed names derived from base
func rotatedPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `\.\d{17}(` + regexp.QuoteMeta(compressedSuffix) + `)?$`)
}

// renameAside moves path to rotated, refusing to replace an existing file
func renameAside(path, rotated string) error {
	if _, err := os.Lstat(rotated); err == nil {
		return ErrRotatedExists
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(path, rotated)
}

// rotateLocked rotates the active file, restarts the deadline and schedules
// a sweep. Caller holds b.mu.
//
// A failed rename leaves the old handle active; the deadline still advances,
// so the next attempt happens one period later.
func (b *Backend) rotateLocked(now time.Time) {
	b.performRotation(now)
	b.nextRotation = NextRotation(now, b.rotateEvery)
	b.sweeper.submit()
}

// performRotation renames the active file aside and opens a fresh one
func (b *Backend) performRotation(now time.Time) {
	rotated := rotatedName(b.path, now)

	if err := renameAside(b.path, rotated); err != nil {
		b.note(now, slog.LevelError, "rotate failed: %s → %s: %v", b.path, rotated, err)
		return
	}

	old := b.file
	if err := b.openActive(); err != nil {
		// old still points at the renamed file; keep writing there
		b.note(now, slog.LevelError, "rotate failed: reopen %s: %v", b.path, err)
		return
	}

	b.note(now, slog.LevelInfo, "rotated: %s → %s", b.path, rotated)
	if err := old.Close(); err != nil {
		b.note(now, slog.LevelError, "close failed: %s: %v", rotated, err)
	}
}

// runSweep is the background sweep task
func (b *Backend) runSweep() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return
	}
	b.sweepLocked(b.now())
}

// sweepLocked applies retention and compression to every rotated file in
// the active file's directory. Each file is handled independently and every
// outcome is recorded. Caller holds b.mu.
func (b *Backend) sweepLocked(now time.Time) {
	dir := filepath.Dir(b.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.note(now, slog.LevelError, "sweep failed: %s: %v", dir, err)
		return
	}

	for _, de := range entries {
		if de.IsDir() || !b.rotatedRE.MatchString(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue // removed since the listing
		}
		b.age(now, filepath.Join(dir, de.Name()), now.Sub(info.ModTime()))
	}
}

// age applies the aging policy to one rotated file. Retention wins over
// compression, so a file old enough for both is deleted and never
// compressed first.
func (b *Backend) age(now time.Time, path string, age time.Duration) {
	switch {
	case b.retention > 0 && age >= b.retention:
		if err := os.Remove(path); err != nil {
			b.note(now, slog.LevelError, "purge failed: %s: %v", path, err)
			return
		}
		b.note(now, slog.LevelInfo, "purged: %s", path)

	case b.compressAfter > 0 && age >= b.compressAfter && !strings.HasSuffix(path, compressedSuffix):
		target := path + compressedSuffix
		done, err := Compress(path, target)
		if err != nil {
			b.note(now, slog.LevelError, "compress failed: %s → %s: %v", path, target, err)
			return
		}
		if done {
			b.note(now, slog.LevelInfo, "compressed: %s → %s", path, target)
		}
	}
}

// backgroundSweeper runs sweeps on one goroutine, started on first use.
// A submit while a sweep is already queued joins that sweep: it has not
// listed the directory yet, so it will see the new rotated file too.
type backgroundSweeper struct {
	run func()

	mu      sync.Mutex
	idle    *sync.Cond
	started bool
	stopped bool
	queued  bool
	running bool
	wake    chan struct{}
	done    chan struct{}
}

func newBackgroundSweeper(run func()) *backgroundSweeper {
	s := &backgroundSweeper{
		run:  run,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// submit schedules a sweep without waiting for it. It is a no-op after stop.
func (s *backgroundSweeper) submit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.queued {
		return
	}
	if !s.started {
		s.started = true
		go s.worker()
	}
	s.queued = true
	s.wake <- struct{}{} // never blocks: at most one token while queued
}

func (s *backgroundSweeper) worker() {
	defer close(s.done)

	for range s.wake {
		s.mu.Lock()
		s.queued = false
		s.running = true
		s.mu.Unlock()

		s.run()

		s.mu.Lock()
		s.running = false
		if !s.queued {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

// wait blocks until no sweep is queued or running
func (s *backgroundSweeper) wait() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.queued || s.running {
		s.idle.Wait()
	}
}

// stop refuses new sweeps, lets a queued one run, and waits for the worker
// to exit. Safe to call more than once.
func (s *backgroundSweeper) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if started {
		close(s.wake)
		<-s.done
	}
}
