// format.go: Entry model and pluggable formatters
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"
)

// Entry is one log record delivered to the Backend.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Source  string
	Message string
	Attrs   []slog.Attr
	Err     error
}

// Formatter renders one entry by appending its bytes to dst.
// The record separator is added by the Backend, not the Formatter.
// Format is always called with the Backend lock held.
type Formatter interface {
	Format(dst []byte, e *Entry) []byte
}

// FormatterFunc adapts an ordinary function to the Formatter interface.
type FormatterFunc func(dst []byte, e *Entry) []byte

// Format calls f(dst, e).
func (f FormatterFunc) Format(dst []byte, e *Entry) []byte {
	return f(dst, e)
}

// DefaultTimeLayout is the timestamp layout used by TextFormatter.
const DefaultTimeLayout = "2006-01-02 15:04:05.000"

// TextFormatter renders the short human-readable line format:
//
//	2025-01-02 15:04:05.000 INFO  [source] message key=value error="..."
type TextFormatter struct {
	// TimeLayout overrides DefaultTimeLayout.
	TimeLayout string
}

// Format implements Formatter.
func (f TextFormatter) Format(dst []byte, e *Entry) []byte {
	layout := f.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}

	dst = e.Time.AppendFormat(dst, layout)
	dst = append(dst, ' ')
	dst = appendLevel(dst, e.Level)
	if e.Source != "" {
		dst = append(dst, " ["...)
		dst = append(dst, e.Source...)
		dst = append(dst, ']')
	}
	dst = append(dst, ' ')
	dst = appendMessage(dst, e.Message)

	for _, a := range e.Attrs {
		dst = appendAttr(dst, "", a)
	}
	if e.Err != nil {
		dst = append(dst, " error="...)
		dst = appendValue(dst, e.Err.Error())
	}
	return dst
}

// appendLevel writes the level name padded to five columns
func appendLevel(dst []byte, l slog.Level) []byte {
	name := l.String()
	dst = append(dst, name...)
	for i := len(name); i < 5; i++ {
		dst = append(dst, ' ')
	}
	return dst
}

func appendAttr(dst []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			dst = appendAttr(dst, prefix, ga)
		}
		return dst
	}

	dst = append(dst, ' ')
	dst = append(dst, prefix...)
	dst = append(dst, a.Key...)
	dst = append(dst, '=')
	if a.Value.Kind() == slog.KindTime {
		return a.Value.Time().AppendFormat(dst, time.RFC3339Nano)
	}
	return appendValue(dst, a.Value.String())
}

// appendMessage keeps one entry on one line: a message holding control
// characters is written quoted
func appendMessage(dst []byte, msg string) []byte {
	for i := 0; i < len(msg); i++ {
		if c := msg[i]; c < ' ' || c == 0x7f {
			return strconv.AppendQuote(dst, msg)
		}
	}
	return append(dst, msg...)
}

// appendValue quotes s only when it would not survive a whitespace split
func appendValue(dst []byte, s string) []byte {
	if needsQuoting(s) {
		return strconv.AppendQuote(dst, s)
	}
	return append(dst, s...)
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); {
		b := s[i]
		if b < utf8.RuneSelf {
			if b <= ' ' || b == '=' || b == '"' || b == 0x7f {
				return true
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError {
			return true
		}
		i += size
	}
	return false
}

// JSONFormatter renders each entry as one JSON object using slog's JSON
// encoding. The source tag is written under SourceKey.
type JSONFormatter struct {
	// SourceKey overrides DefaultSourceKey.
	SourceKey string
}

// Format implements Formatter.
func (f JSONFormatter) Format(dst []byte, e *Entry) []byte {
	key := f.SourceKey
	if key == "" {
		key = DefaultSourceKey
	}

	buf := bytes.NewBuffer(dst)
	h := slog.NewJSONHandler(buf, nil)

	r := slog.NewRecord(e.Time, e.Level, e.Message, 0)
	if e.Source != "" {
		r.AddAttrs(slog.String(key, e.Source))
	}
	r.AddAttrs(e.Attrs...)
	if e.Err != nil {
		r.AddAttrs(slog.String("error", e.Err.Error()))
	}
	// Handle only fails if the buffer does, and bytes.Buffer doesn't
	_ = h.Handle(context.Background(), r)

	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}
