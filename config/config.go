// config.go: File-based configuration for eunoe backends
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package config loads eunoe backend settings from YAML or JSON files,
// computes the default log path, and watches configuration files for
// changes.
//
//	f, err := config.Load("/etc/app/logging.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg, err := f.Options()
//	if err != nil {
//		log.Fatal(err)
//	}
//	b, err := eunoe.New(cfg)
//
// A file looks like:
//
//	path: /var/log/app/app.log
//	rotate_every: 1d
//	compress_after: 7d
//	retention: 90d
//	format: text
//	level: info
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/agilira/eunoe"
)

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	// ErrEmptyPath is returned when no configuration path is given.
	ErrEmptyPath = errors.New("config: path is required")

	// ErrUnsupportedFormat is returned for unknown file extensions and formats.
	ErrUnsupportedFormat = errors.New("config: unsupported format")

	// ErrInvalid wraps every field validation failure.
	ErrInvalid = errors.New("config: invalid value")
)

// disabledWords turn a span off entirely
var disabledWords = map[string]bool{"off": true, "never": true, "none": true, "0": true}

// File is the on-disk form of a backend configuration. Empty strings select
// the eunoe defaults. Spans accept Go durations plus d/w/y suffixes, or one
// of off/never/none/0 to disable.
type File struct {
	Path          string `koanf:"path"`
	RotateEvery   string `koanf:"rotate_every"`
	CompressAfter string `koanf:"compress_after"`
	Retention     string `koanf:"retention"`
	Format        string `koanf:"format"`
	Level         string `koanf:"level"`
	UTC           bool   `koanf:"utc"`
	FileMode      string `koanf:"file_mode"`
}

// Load reads and validates the file at path. The format follows the
// extension: .yaml, .yml or .json.
func Load(path string) (*File, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- configuration path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes parses data in the given format. Empty data yields a File
// with every field defaulted.
func LoadBytes(data []byte, format Format) (*File, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("config: failed to parse: %w", err)
		}
	}

	f := &File{}
	if err := k.UnmarshalWithConf("", f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks every field without applying anything.
func (f *File) Validate() error {
	if _, _, _, err := f.Spans(); err != nil {
		return err
	}
	if _, err := f.LevelValue(); err != nil {
		return err
	}
	if _, err := f.Formatter(); err != nil {
		return err
	}
	if _, err := f.fileMode(); err != nil {
		return err
	}
	return nil
}

// Spans resolves the rotation, compression and retention spans with
// defaults applied. A negative span means disabled.
func (f *File) Spans() (rotateEvery, compressAfter, retention time.Duration, err error) {
	if rotateEvery, err = parseSpan("rotate_every", f.RotateEvery, eunoe.DefaultRotateEvery); err != nil {
		return 0, 0, 0, err
	}
	if compressAfter, err = parseSpan("compress_after", f.CompressAfter, eunoe.DefaultCompressAfter); err != nil {
		return 0, 0, 0, err
	}
	if retention, err = parseSpan("retention", f.Retention, -1); err != nil {
		return 0, 0, 0, err
	}
	return rotateEvery, compressAfter, retention, nil
}

// LevelValue returns the configured minimum level (default info).
func (f *File) LevelValue() (slog.Level, error) {
	if f.Level == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(f.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: level %q", ErrInvalid, f.Level)
	}
	return l, nil
}

// Formatter returns the formatter named by Format: "text" (default) or "json".
func (f *File) Formatter() (eunoe.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(f.Format)) {
	case "", "text":
		return eunoe.TextFormatter{}, nil
	case "json":
		return eunoe.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("%w: format %q (want text or json)", ErrInvalid, f.Format)
	}
}

// Options converts f into an eunoe.Config. Path stays empty when the file
// doesn't set one; callers usually fall back to DefaultPath.
func (f *File) Options() (eunoe.Config, error) {
	rotateEvery, compressAfter, retention, err := f.Spans()
	if err != nil {
		return eunoe.Config{}, err
	}
	formatter, err := f.Formatter()
	if err != nil {
		return eunoe.Config{}, err
	}
	mode, err := f.fileMode()
	if err != nil {
		return eunoe.Config{}, err
	}

	return eunoe.Config{
		Path:          f.Path,
		RotateEvery:   rotateEvery,
		CompressAfter: compressAfter,
		Retention:     retention,
		Formatter:     formatter,
		FileMode:      mode,
		UTC:           f.UTC,
	}, nil
}

// Tunable is the part of a Backend that can change while it runs.
type Tunable interface {
	SetRotateEvery(time.Duration)
	SetCompressAfter(time.Duration)
	SetRetention(time.Duration)
}

// Apply pushes the spans of f into a running backend. Path, format and file
// mode only take effect at construction and are ignored here.
func (f *File) Apply(b Tunable) error {
	rotateEvery, compressAfter, retention, err := f.Spans()
	if err != nil {
		return err
	}
	b.SetRotateEvery(rotateEvery)
	b.SetCompressAfter(compressAfter)
	b.SetRetention(retention)
	return nil
}

func (f *File) fileMode() (os.FileMode, error) {
	if f.FileMode == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(f.FileMode, 8, 32)
	if err != nil || v&^0o777 != 0 {
		return 0, fmt.Errorf("%w: file_mode %q (want octal permission bits such as 0640)", ErrInvalid, f.FileMode)
	}
	return os.FileMode(v), nil
}

func parseSpan(field, s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	if disabledWords[strings.ToLower(s)] {
		return -1, nil
	}
	d, err := eunoe.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, field, s)
	}
	return d, nil
}

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}
