// handler.go: log/slog integration
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultSourceKey is the attribute key that sets an entry's source tag.
const DefaultSourceKey = "source"

var _ slog.Handler = (*Handler)(nil)

// HandlerOptions configures a Handler. A nil *HandlerOptions selects the
// defaults.
type HandlerOptions struct {
	// Level is the minimum level handled. Default: slog.LevelInfo.
	Level slog.Leveler

	// Source is the source tag of entries that don't carry one.
	Source string

	// SourceKey is the top-level attribute key whose string value becomes
	// the entry's source tag instead of an attribute. Default: "source".
	SourceKey string
}

// Handler delivers slog records to a Backend.
//
// Top-level attributes named SourceKey set Entry.Source, and an error value
// under "err" or "error" sets Entry.Err. Everything else becomes Entry.Attrs,
// with keys qualified by the open groups ("group.key").
type Handler struct {
	b      *Backend
	level  slog.Leveler
	key    string
	source string
	attrs  []slog.Attr
	prefix string
}

// NewHandler returns a Handler writing to b.
//
//	logger := slog.New(eunoe.NewHandler(b, &eunoe.HandlerOptions{
//		Level:  slog.LevelDebug,
//		Source: "api",
//	}))
func NewHandler(b *Backend, opts *HandlerOptions) *Handler {
	h := &Handler{b: b, level: slog.LevelInfo, key: DefaultSourceKey}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		if opts.SourceKey != "" {
			h.key = opts.SourceKey
		}
		h.source = opts.Source
	}
	return h
}

// Enabled reports whether level is at or above the configured minimum.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle converts r into an Entry and writes it.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level,
		Source:  h.source,
		Message: r.Message,
	}
	if n := len(h.attrs) + r.NumAttrs(); n > 0 {
		e.Attrs = make([]slog.Attr, 0, n)
		e.Attrs = append(e.Attrs, h.attrs...)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(&e, a)
		return true
	})
	return h.b.Write(e)
}

// WithAttrs returns a Handler that adds attrs to every entry.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	e := Entry{Source: h2.source, Attrs: h2.attrs}
	for _, a := range attrs {
		h2.collect(&e, a)
	}
	if e.Err != nil {
		e.Attrs = append(e.Attrs, slog.Any("error", e.Err))
	}
	h2.source = e.Source
	h2.attrs = e.Attrs
	return h2
}

// WithGroup returns a Handler that qualifies later attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.prefix += name + "."
	return h2
}

func (h *Handler) clone() *Handler {
	h2 := *h
	h2.attrs = append([]slog.Attr(nil), h.attrs...)
	return &h2
}

// collect routes one attribute into e
func (h *Handler) collect(e *Entry, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if h.prefix == "" {
		switch {
		case a.Key == h.key && a.Value.Kind() == slog.KindString:
			e.Source = a.Value.String()
			return
		case a.Key == "err" || a.Key == "error":
			if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny {
				e.Err = err
				return
			}
		}
	}

	switch {
	case h.prefix == "":
	case a.Key == "" && a.Value.Kind() == slog.KindGroup:
		a.Key = strings.TrimSuffix(h.prefix, ".")
	default:
		a.Key = h.prefix + a.Key
	}
	e.Attrs = append(e.Attrs, a)
}
