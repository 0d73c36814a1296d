// rotation_test.go: Deadline computation, naming and aging sweep tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRotated creates a rotated sibling of active with the given mtime
func writeRotated(t *testing.T, active string, mtime time.Time, content string) string {
	t.Helper()

	name := rotatedName(active, mtime)
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(name, mtime, mtime))
	return name
}

func TestNextRotation(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2025, 3, 10, 14, 30, 15, 250_000_000, zone)

	tests := []struct {
		name string
		span time.Duration
		want time.Time
	}{
		{"OneDay", 24 * time.Hour, time.Date(2025, 3, 11, 0, 0, 0, 0, zone)},
		{"TwoDays", 48 * time.Hour, time.Date(2025, 3, 12, 0, 0, 0, 0, zone)},
		{"DayAndAHalf", 36 * time.Hour, time.Date(2025, 3, 12, 0, 0, 0, 0, zone)},
		{"Week", 7 * 24 * time.Hour, time.Date(2025, 3, 17, 0, 0, 0, 0, zone)},
		{"FiveMinutes", 5 * time.Minute, now.Add(5 * time.Minute)},
		{"JustUnderADay", 24*time.Hour - time.Second, now.Add(24*time.Hour - time.Second)},
		{"Millisecond", time.Millisecond, now.Add(time.Millisecond)},
		{"Zero", 0, time.Time{}},
		{"Negative", -time.Hour, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRotation(now, tt.span)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestNextRotation_DayAlignedAcrossTimes(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		now := start.Add(time.Duration(i)*37*time.Minute + time.Duration(i)*time.Millisecond)
		for _, span := range []time.Duration{24 * time.Hour, 30 * time.Hour, 72 * time.Hour} {
			got := NextRotation(now, span)
			y, m, d := now.Add(span).Date()
			assert.Equal(t, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), got)
			assert.True(t, got.After(now))
		}
	}
}

func TestRotatedName(t *testing.T) {
	at := time.Date(2025, 3, 10, 14, 30, 5, 7_900_000, time.UTC)
	assert.Equal(t, "/var/log/app.log.20250310143005007", rotatedName("/var/log/app.log", at))
}

func TestRotatedPattern(t *testing.T) {
	re := rotatedPattern("app.log")

	for _, name := range []string{
		"app.log.20250310143005007",
		"app.log.20250310143005007.gz",
	} {
		assert.True(t, re.MatchString(name), name)
	}
	for _, name := range []string{
		"app.log",
		"app.log.gz",
		"app.log.2025031014300500",
		"app.log.20250310143005007.gz.tmp",
		"app.log.20250310143005007.bak",
		"appxlog.20250310143005007",
		"other.log.20250310143005007",
		"app.log.old",
	} {
		assert.False(t, re.MatchString(name), name)
	}
}

func TestSweep_RetentionDeletes(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, Retention: 24 * time.Hour})

	old := writeRotated(t, b.Path(), clock.Now().Add(-48*time.Hour), "old\n")
	require.NoError(t, b.Sweep())

	assert.NoFileExists(t, old)
	assert.NoFileExists(t, old+compressedSuffix)

	lines := readLines(t, b.Path())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "INFO  [eunoe] purged: "+old)
}

func TestSweep_RetentionDeletesCompressed(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, Retention: 24 * time.Hour})

	mtime := clock.Now().Add(-72 * time.Hour)
	gz := rotatedName(b.Path(), mtime) + compressedSuffix
	require.NoError(t, os.WriteFile(gz, []byte("not really gzip"), 0o600))
	require.NoError(t, os.Chtimes(gz, mtime, mtime))

	require.NoError(t, b.Sweep())
	assert.NoFileExists(t, gz)
}

func TestSweep_Compresses(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, CompressAfter: time.Hour})

	content := bytes.Repeat([]byte("2025-03-10 12:30:00.000 INFO  [api] request served\n"), 200)
	mtime := clock.Now().Add(-2 * time.Hour)
	old := rotatedName(b.Path(), mtime)
	require.NoError(t, os.WriteFile(old, content, 0o600))
	require.NoError(t, os.Chtimes(old, mtime, mtime))

	require.NoError(t, b.Sweep())

	assert.NoFileExists(t, old)
	gz := old + compressedSuffix
	require.FileExists(t, gz)
	assert.Equal(t, content, gunzip(t, gz))

	st, err := os.Stat(gz)
	require.NoError(t, err)
	assert.True(t, mtime.Equal(st.ModTime()), "mtime %v, want %v", st.ModTime(), mtime)

	lines := readLines(t, b.Path())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "INFO  [eunoe] compressed: "+old+" → "+gz)
}

func TestSweep_YoungFilesUntouched(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, CompressAfter: time.Hour, Retention: 24 * time.Hour})

	young := writeRotated(t, b.Path(), clock.Now().Add(-30*time.Minute), "young\n")
	require.NoError(t, b.Sweep())

	assert.FileExists(t, young)
	assert.NoFileExists(t, young+compressedSuffix)
	assert.Len(t, readLines(t, b.Path()), 1)
}

func TestSweep_RetentionWinsOverCompression(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, CompressAfter: time.Hour, Retention: 24 * time.Hour})

	old := writeRotated(t, b.Path(), clock.Now().Add(-48*time.Hour), "old\n")
	require.NoError(t, b.Sweep())

	assert.NoFileExists(t, old)
	assert.NoFileExists(t, old+compressedSuffix)
}

func TestSweep_Idempotent(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, CompressAfter: time.Hour})

	mtime := clock.Now().Add(-2 * time.Hour)
	src := writeRotated(t, b.Path(), mtime, "source\n")
	gz := src + compressedSuffix
	require.NoError(t, os.WriteFile(gz, []byte("existing"), 0o600))
	require.NoError(t, os.Chtimes(gz, mtime, mtime))

	require.NoError(t, b.Sweep())
	require.NoError(t, b.Sweep())

	got, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "source\n", string(got))

	got, err = os.ReadFile(gz)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(got))

	assert.Len(t, readLines(t, b.Path()), 1, "a skipped compression is not reported")
}

func TestSweep_IgnoresUnrelatedFiles(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, CompressAfter: time.Hour, Retention: 24 * time.Hour})

	dir := filepath.Dir(b.Path())
	mtime := clock.Now().Add(-30 * 24 * time.Hour)
	for _, name := range []string{"app.log.old", "other.log.20250101000000000", "notes.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("keep"), 0o600))
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app.log.20250101000000000"), 0o750))

	require.NoError(t, b.Sweep())

	for _, name := range []string{"app.log.old", "other.log.20250101000000000", "notes.txt"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.DirExists(t, filepath.Join(dir, "app.log.20250101000000000"))
}

func TestSweep_AfterRotation(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: 5 * time.Minute, CompressAfter: time.Hour})

	old := writeRotated(t, b.Path(), clock.Now().Add(-2*time.Hour), "yesterday\n")

	clock.Advance(5 * time.Minute)
	require.NoError(t, b.Write(info("triggers rotation")))
	b.WaitForBackgroundTasks()

	assert.NoFileExists(t, old)
	assert.FileExists(t, old+compressedSuffix)
}

func TestSweep_FailureIsRecorded(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	b, clock := newTestBackend(t, Config{RotateEvery: -1, Retention: time.Hour})
	old := writeRotated(t, b.Path(), clock.Now().Add(-2*time.Hour), "old\n")

	dir := filepath.Dir(b.Path())
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o750) })

	require.NoError(t, b.Sweep())
	require.NoError(t, os.Chmod(dir, 0o750))

	assert.FileExists(t, old)
	lines := readLines(t, b.Path())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "ERROR [eunoe] purge failed: "+old)
}

func TestSetAgingSpans(t *testing.T) {
	b, clock := newTestBackend(t, Config{RotateEvery: -1, CompressAfter: -1})

	old := writeRotated(t, b.Path(), clock.Now().Add(-48*time.Hour), "old\n")
	require.NoError(t, b.Sweep())
	assert.FileExists(t, old)

	b.SetCompressAfter(time.Hour)
	require.NoError(t, b.Sweep())
	assert.FileExists(t, old+compressedSuffix)

	b.SetRetention(24 * time.Hour)
	require.NoError(t, b.Sweep())
	assert.NoFileExists(t, old+compressedSuffix)
}

func TestBackgroundSweeper_Coalesces(t *testing.T) {
	var runs atomic.Int32
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	var once sync.Once

	s := newBackgroundSweeper(func() {
		runs.Add(1)
		once.Do(func() {
			entered <- struct{}{}
			<-gate
		})
	})

	s.submit()
	<-entered // first sweep is running

	s.submit()
	s.submit()
	s.submit()
	close(gate)

	s.wait()
	assert.Equal(t, int32(2), runs.Load())

	s.stop()
	s.submit()
	s.wait()
	assert.Equal(t, int32(2), runs.Load(), "submit after stop must not run")
	s.stop()
}

func TestBackgroundSweeper_StopWithoutStart(t *testing.T) {
	s := newBackgroundSweeper(func() { t.Fatal("must not run") })
	s.wait()
	s.stop()
	s.submit()
}

func gunzip(t *testing.T, path string) []byte {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return data
}
