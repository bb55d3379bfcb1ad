package log

import (
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Filter selects events from a capture. Zero fields select everything.
type Filter struct {
	ConnectionID string
	DeviceID     string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// Opcode keeps only commands with this opcode.
	Opcode *wire.Opcode
}

// Match reports whether e passes every criterion of f.
func (f Filter) Match(e Event) bool {
	switch {
	case f.ConnectionID != "" && e.ConnectionID != f.ConnectionID,
		f.DeviceID != "" && e.DeviceID != f.DeviceID:
		return false
	case f.Direction != nil && e.Direction != *f.Direction,
		f.Layer != nil && e.Layer != *f.Layer,
		f.Category != nil && e.Category != *f.Category:
		return false
	case f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.Opcode == nil {
		return true
	}
	m := e.Message
	return m != nil && m.Opcode != nil && *m.Opcode == *f.Opcode
}
