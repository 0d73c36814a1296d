// Package eunoe manages the lifecycle of a log file behind log/slog.
//
// A Backend owns one active file. Every entry is written and synced
// immediately. When the rotation deadline passes, the next write renames
// the active file to <name>.<YYYYMMDDHHMMSSfff> and opens a fresh one; a
// background sweep then ages the rotated files, gzipping those older than
// CompressAfter and deleting those older than Retention.
//
// # Quick Start
//
//	b, err := eunoe.New(eunoe.Config{
//		Path:          "/var/log/app/app.log",
//		RotateEvery:   24 * time.Hour,     // rotate at midnight
//		CompressAfter: 7 * 24 * time.Hour, // gzip after a week
//		Retention:     90 * 24 * time.Hour,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	slog.SetDefault(slog.New(eunoe.NewHandler(b, nil)))
//	slog.Info("service started", "port", 8080)
//
// # Rotation Deadlines
//
// Spans of a day or more are aligned to the start of a calendar day, so
// RotateEvery: 24*time.Hour rotates at midnight no matter when the process
// started. Shorter spans are exact intervals from the last rotation:
//
//	eunoe.NextRotation(now, 24*time.Hour)   // next midnight
//	eunoe.NextRotation(now, 15*time.Minute) // now + 15m
//
// # Housekeeping Entries
//
// The backend reports its own rotations, compressions and purges, and the
// failures of those, as entries with source tag "eunoe" in the log itself:
//
//	2025-01-02 00:00:00.013 INFO  [eunoe] rotated: app.log → app.log.20250102000000013
//	2025-01-02 00:00:00.020 ERROR [eunoe] purge failed: app.log.20241001000000002: permission denied
//
// These failures never reach the caller of Write; they are retried at the
// next natural cycle (next deadline, next sweep).
//
// # Formatters
//
// TextFormatter is the default. JSONFormatter writes one JSON object per
// line. Any Formatter can be supplied through Config.Formatter:
//
//	eunoe.Config{
//		Path: "app.log",
//		Formatter: eunoe.FormatterFunc(func(dst []byte, e *eunoe.Entry) []byte {
//			return append(dst, e.Message...)
//		}),
//	}
//
// # Configuration Files
//
// Package github.com/agilira/eunoe/config loads the same settings from YAML
// or JSON, computes the default log path from the executable location, and
// watches the file for hot reload.
package eunoe
