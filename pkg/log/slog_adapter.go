package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger. Useful in
// development to see the protocol trace in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("role", event.Role.String()),
	}

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("from", event.StateChange.From),
			slog.String("to", event.StateChange.To),
		)
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "state transition", attrs...)
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("size", event.Frame.Size),
		)
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "frame", attrs...)
	case event.Error != nil:
		attrs = append(attrs, slog.String("error", event.Error.Message))
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol error", attrs...)
	default:
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol event", attrs...)
	}
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
