package observer

import (
	"context"
	"log/slog"

	"intake-platform/pkg/logger"
)

// Observer is the reportable-sink capability injected into services that
// previously called an error-reporting SDK directly. Implementations must be
// safe for concurrent use and must never block or fail a caller's critical
// path.
type Observer interface {
	RecordError(ctx context.Context, scope string, err error)
	RecordEvent(ctx context.Context, name string, attrs map[string]any)
}

// LogObserver reports through the structured logger. This is the production
// implementation; an external error-reporting backend would wrap it here
// without touching callers.
type LogObserver struct {
	log *slog.Logger
}

func NewLogObserver(l *slog.Logger) *LogObserver {
	return &LogObserver{log: l}
}

func (o *LogObserver) RecordError(ctx context.Context, scope string, err error) {
	if err == nil {
		return
	}
	l := o.log
	if l == nil {
		l = logger.From(ctx)
	}
	l.Error("observed error", "scope", scope, "err", err)
}

func (o *LogObserver) RecordEvent(ctx context.Context, name string, attrs map[string]any) {
	l := o.log
	if l == nil {
		l = logger.From(ctx)
	}
	kv := make([]any, 0, len(attrs)*2+2)
	kv = append(kv, "event", name)
	for k, v := range attrs {
		kv = append(kv, k, v)
	}
	l.Info("observed event", kv...)
}

// Multi fans each signal out to every sink in order.
type Multi []Observer

func (m Multi) RecordError(ctx context.Context, scope string, err error) {
	for _, o := range m {
		o.RecordError(ctx, scope, err)
	}
}

func (m Multi) RecordEvent(ctx context.Context, name string, attrs map[string]any) {
	for _, o := range m {
		o.RecordEvent(ctx, name, attrs)
	}
}

// Nop discards everything. Useful as a default when wiring is optional.
type Nop struct{}

func (Nop) RecordError(context.Context, string, error)          {}
func (Nop) RecordEvent(context.Context, string, map[string]any) {}
