// config.go: Backend configuration and parsing utilities
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Production defaults applied by New for zero-valued Config fields.
const (
	DefaultRotateEvery   = 24 * time.Hour
	DefaultCompressAfter = 7 * 24 * time.Hour
	DefaultFileMode      = os.FileMode(0644)

	// dirMode is used when the log directory has to be created.
	dirMode = 0750
)

// Config holds the options for creating a Backend.
//
// Zero values select the production defaults. A negative RotateEvery or
// CompressAfter disables that behavior; Retention <= 0 keeps rotated files
// forever.
type Config struct {
	// Path is the active log file. Required.
	// The containing directory is created if it doesn't exist.
	Path string `json:"path"`

	// RotateEvery is how long the active file may live before rotation.
	// Spans of a day or more rotate at the start of a calendar day,
	// shorter spans rotate at exact intervals. Default: 24h.
	RotateEvery time.Duration `json:"rotate_every"`

	// CompressAfter is the age at which a rotated file is gzipped.
	// Default: 7 days.
	CompressAfter time.Duration `json:"compress_after"`

	// Retention is the age at which a rotated file, compressed or not,
	// is deleted. Default: 0 (never).
	Retention time.Duration `json:"retention"`

	// Formatter renders entries. Default: TextFormatter{}.
	Formatter Formatter `json:"-"`

	// FileMode is used when creating log files (default: 0644).
	FileMode os.FileMode `json:"file_mode"`

	// UTC makes deadlines and rotated-file timestamps use UTC instead of
	// the local timezone.
	UTC bool `json:"utc"`

	// Clock supplies the current time. Default: a millisecond timecache.
	Clock Clock `json:"-"`
}

// withDefaults returns a copy of c with unset fields filled in
func (c Config) withDefaults() Config {
	if c.RotateEvery == 0 {
		c.RotateEvery = DefaultRotateEvery
	}
	if c.CompressAfter == 0 {
		c.CompressAfter = DefaultCompressAfter
	}
	if c.Formatter == nil {
		c.Formatter = TextFormatter{}
	}
	if c.FileMode == 0 {
		c.FileMode = DefaultFileMode
	}
	return c
}

// ParseDuration converts duration strings like "7d", "24h" to time.Duration
// Supports Go durations plus day, week and year suffixes
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	// Try standard Go duration first
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	s = strings.ToLower(strings.TrimSpace(s))

	var multiplier time.Duration
	var numStr string

	switch {
	case strings.HasSuffix(s, "d"):
		multiplier = 24 * time.Hour
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "w"):
		multiplier = 7 * 24 * time.Hour
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "y"):
		multiplier = 365 * 24 * time.Hour
		numStr = s[:len(s)-1]
	default:
		return 0, fmt.Errorf("unknown duration suffix in %q", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration number in %q: %v", s, err)
	}

	if val < 0 || val > int64(math.MaxInt64/multiplier) { // Overflow check
		return 0, fmt.Errorf("duration %q out of range", s)
	}

	return time.Duration(val) * multiplier, nil
}

// SanitizeFilename removes or replaces invalid characters for cross-platform compatibility
func SanitizeFilename(filename string) string {
	if runtime.GOOS == "windows" {
		// Windows invalid characters: < > : " | ? * and control characters
		invalidChars := []string{"<", ">", ":", "\"", "|", "?", "*"}
		result := filename

		for _, char := range invalidChars {
			result = strings.ReplaceAll(result, char, "_")
		}

		var sanitized strings.Builder
		for _, r := range result {
			if r >= 32 {
				sanitized.WriteRune(r)
			} else {
				sanitized.WriteRune('_')
			}
		}

		return sanitized.String()
	}

	// For Unix-like systems, just remove null characters
	return strings.ReplaceAll(filename, "\x00", "_")
}

// ValidatePathLength checks if the path length is within OS limits
func ValidatePathLength(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %v", err)
	}

	pathLen := len(absPath)

	// leave room for the ".YYYYMMDDHHMMSSfff.gz.tmp" suffix of aged files
	pathLen += len(".") + len(timestampLayout) + 3 + len(compressedSuffix) + len(".tmp")

	switch runtime.GOOS {
	case "windows":
		if pathLen > 260 {
			return fmt.Errorf("path too long for Windows: %d characters with rotation suffix (limit: 260)", pathLen)
		}
	default:
		if pathLen > 4096 {
			return fmt.Errorf("path too long: %d characters with rotation suffix (limit: 4096)", pathLen)
		}
	}

	return nil
}

// sanitizePath validates the configured path and returns its cleaned form
func sanitizePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return "", fmt.Errorf("eunoe: path %q is a directory", path)
	}
	if err := ValidatePathLength(path); err != nil {
		return "", fmt.Errorf("eunoe: invalid log file path: %w", err)
	}

	dir := filepath.Dir(path)
	base := SanitizeFilename(filepath.Base(path))
	return filepath.Clean(filepath.Join(dir, base)), nil
}
