// compress_test.go: gzip codec tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.log.20250310143000000")
	dst := src + compressedSuffix

	content := strings.Repeat("line of log output\n", 1000)
	mtime := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(src, []byte(content), 0o640))
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	done, err := Compress(src, dst)
	require.NoError(t, err)
	assert.True(t, done)

	assert.NoFileExists(t, src)
	assert.NoFileExists(t, dst+".tmp")
	assert.Equal(t, content, string(gunzip(t, dst)))

	st, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, mtime.Equal(st.ModTime()))
	assert.Equal(t, os.FileMode(0o640), st.Mode().Perm())

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(src), zr.Name)
	assert.True(t, mtime.Equal(zr.ModTime))
}

func TestCompress_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(src, nil, 0o600))

	done, err := Compress(src, src+compressedSuffix)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, gunzip(t, src+compressedSuffix))
}

func TestCompress_Skips(t *testing.T) {
	t.Run("MissingSource", func(t *testing.T) {
		dir := t.TempDir()
		done, err := Compress(filepath.Join(dir, "gone"), filepath.Join(dir, "gone.gz"))
		require.NoError(t, err)
		assert.False(t, done)
		assert.NoFileExists(t, filepath.Join(dir, "gone.gz"))
	})

	t.Run("SourceIsDirectory", func(t *testing.T) {
		dir := t.TempDir()
		done, err := Compress(dir, dir+".gz")
		require.NoError(t, err)
		assert.False(t, done)
		assert.NoFileExists(t, dir+".gz")
	})

	t.Run("TargetExists", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src")
		dst := filepath.Join(dir, "src.gz")
		require.NoError(t, os.WriteFile(src, []byte("source"), 0o600))
		require.NoError(t, os.WriteFile(dst, []byte("target"), 0o600))

		done, err := Compress(src, dst)
		require.NoError(t, err)
		assert.False(t, done)

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "target", string(got))
		assert.FileExists(t, src)
	})
}

func TestCompress_UnwritableTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0o600))

	done, err := Compress(src, filepath.Join(dir, "missing", "src.gz"))
	require.Error(t, err)
	assert.False(t, done)
	assert.FileExists(t, src, "the source survives a failed compression")
}
