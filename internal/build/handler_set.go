package build

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans a log record out to several btclog handlers, so the
// daemon can write the same stream to the console and a rotating file.
type HandlerSet struct {
	level    btclog.Level
	handlers []btclogv2.Handler
}

// NewHandlerSet groups the given handlers behind a single handler. The
// set starts at the Info level.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{
		handlers: handlers,
		level:    btclog.LevelInfo,
	}
	h.SetLevel(h.level)

	return h
}

// Enabled reports whether every member handler accepts records at the
// given level.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

// Handle forwards the record to each member handler, stopping at the
// first error.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if err := handler.Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs implements slog.Handler. The result only needs to satisfy
// slog.Handler, so it drops down to a plain slog fan-out.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &slogFanout{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.WithAttrs(attrs)
	}

	return out
}

// WithGroup implements slog.Handler.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	out := &slogFanout{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.WithGroup(name)
	}

	return out
}

// SubSystem returns a copy of the set tagged with the given sub-system
// on every member.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	out := &HandlerSet{
		level:    h.level,
		handlers: make([]btclogv2.Handler, len(h.handlers)),
	}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.SubSystem(tag)
	}

	return out
}

// SetLevel applies the level to every member handler.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.handlers {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the level last applied through SetLevel.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

// WithPrefix returns a copy of the set with the prefix applied to every
// member.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	out := &HandlerSet{
		level:    h.level,
		handlers: make([]btclogv2.Handler, len(h.handlers)),
	}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.WithPrefix(prefix)
	}

	return out
}

var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogFanout is the slog-only counterpart of HandlerSet. WithAttrs and
// WithGroup return slog.Handlers rather than btclog handlers, so the
// derived sets live here.
type slogFanout struct {
	handlers []slog.Handler
}

func (s *slogFanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range s.handlers {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

func (s *slogFanout) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range s.handlers {
		if err := handler.Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

func (s *slogFanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &slogFanout{handlers: make([]slog.Handler, len(s.handlers))}
	for i, handler := range s.handlers {
		out.handlers[i] = handler.WithAttrs(attrs)
	}

	return out
}

func (s *slogFanout) WithGroup(name string) slog.Handler {
	out := &slogFanout{handlers: make([]slog.Handler, len(s.handlers))}
	for i, handler := range s.handlers {
		out.handlers[i] = handler.WithGroup(name)
	}

	return out
}

var _ slog.Handler = (*slogFanout)(nil)
