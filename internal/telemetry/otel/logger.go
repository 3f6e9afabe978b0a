package otel

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// NewLogger returns the application logger writing text records to w. When provider is non-nil the
// records are also sent through the otelslog bridge so they are exported with traces and metrics.
func NewLogger(provider *sdklog.LoggerProvider, serviceName string, w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	text := slog.NewTextHandler(w, nil)
	if provider == nil {
		return slog.New(text)
	}
	return slog.New(fanout{text, otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider))})
}

// fanout dispatches each record to every handler that is enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
