package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter mirrors protocol events into operational logs. Traffic and
// transitions go out at debug level, protocol errors at warn.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes one record for event.
func (a *SlogAdapter) Log(event Event) {
	msg, level, detail := describe(event)

	attrs := make([]slog.Attr, 0, 6)
	attrs = append(attrs,
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	)
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	attrs = append(attrs, detail...)

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// describe picks the record message, level and payload attributes.
func describe(e Event) (string, slog.Level, []slog.Attr) {
	switch {
	case e.Frame != nil:
		f := e.Frame
		attrs := []slog.Attr{slog.Int("frame_size", f.Size), slog.String("frame", hex.EncodeToString(f.Data))}
		if f.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
		return "protocol frame", slog.LevelDebug, attrs

	case e.Message != nil:
		m := e.Message
		attrs := []slog.Attr{slog.String("msg_type", m.Type.String())}
		if m.Opcode != nil {
			attrs = append(attrs, slog.String("opcode", m.Opcode.String()))
		}
		if m.Marker != nil {
			attrs = append(attrs, slog.String("marker", m.Marker.String()))
		}
		if m.ErrorCode != nil {
			attrs = append(attrs, slog.String("error_code", m.ErrorCode.String()))
		}
		if m.RoundTrip != nil {
			attrs = append(attrs, slog.Duration("round_trip", *m.RoundTrip))
		}
		return "protocol message", slog.LevelDebug, attrs

	case e.StateChange != nil:
		s := e.StateChange
		attrs := []slog.Attr{
			slog.String("entity", s.Entity.String()),
			slog.String("old_state", s.OldState),
			slog.String("new_state", s.NewState),
		}
		if s.Reason != "" {
			attrs = append(attrs, slog.String("reason", s.Reason))
		}
		return "protocol state", slog.LevelDebug, attrs

	case e.Error != nil:
		x := e.Error
		attrs := []slog.Attr{
			slog.String("error_layer", x.Layer.String()),
			slog.String("error_msg", x.Message),
			slog.String("error_context", x.Context),
		}
		if x.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *x.Code))
		}
		return "protocol error", slog.LevelWarn, attrs
	}
	return "protocol", slog.LevelDebug, nil
}

var _ Logger = (*SlogAdapter)(nil)
