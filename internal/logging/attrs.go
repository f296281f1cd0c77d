package logging

import (
	"log/slog"
	"time"
)

// Canonical field names shared across components so log lines stay greppable.
const (
	FieldComponent = "component"
	FieldItemID    = "item_id"
	FieldSessionID = "session_id"
	FieldMethod    = "method"
	FieldTool      = "tool"
	FieldURI       = "uri"
	FieldEventType = "event_type"
	FieldStatus    = "status"
)

type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// WithComponent tags a logger with the canonical component field.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger.With(String(FieldComponent, component))
}
