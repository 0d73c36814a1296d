// compress.go: gzip codec for aged log files
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// compressedSuffix is appended to a rotated file name once compressed
const compressedSuffix = ".gz"

// Compress gzips source into target and then removes source.
//
// It does nothing and returns false when source is missing or a directory,
// or when target already exists, so a sweep interrupted halfway can be
// repeated safely. target receives source's modification time, so its age
// keeps counting from the original rotation.
//
// The data goes to a temporary file that is renamed to target only once it
// is fully written and synced; source is deleted last. An interrupted
// compression therefore never loses the original.
func Compress(source, target string) (bool, error) {
	info, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}

	if _, err := os.Lstat(target); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	tempName := target + ".tmp"
	if err := compressTo(source, tempName, info); err != nil {
		_ = os.Remove(tempName) // Ignore remove error during cleanup
		return false, err
	}

	if err := os.Rename(tempName, target); err != nil {
		_ = os.Remove(tempName) // Ignore remove error during cleanup
		return false, fmt.Errorf("failed to rename %s to %s: %w", tempName, target, err)
	}

	if err := os.Remove(source); err != nil {
		return true, fmt.Errorf("compressed, but failed to remove %s: %w", source, err)
	}
	return true, nil
}

// compressTo streams source through gzip into name and stamps name with
// source's modification time
func compressTo(source, name string, info fs.FileInfo) error {
	src, err := os.Open(source) // #nosec G304 -- source is a rotated file found by the sweep
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()) // #nosec G304 -- name derived from source
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	gz.Name = filepath.Base(source)
	gz.ModTime = info.ModTime()

	if _, err := io.Copy(gz, src); err != nil {
		_ = gz.Close()
		_ = dst.Close()
		return fmt.Errorf("failed to compress %s: %w", source, err)
	}
	if err := gz.Close(); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	return os.Chtimes(name, info.ModTime(), info.ModTime())
}
