package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Options holds the event selection shared by the commands. Empty fields
// match everything.
type Options struct {
	ConnID    string
	DeviceID  string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Opcode    string
}

// optional parses s with parse unless it is empty.
func optional[T any](s string, parse func(string) (T, error)) (*T, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parse(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseTime(flag string) func(string) (time.Time, error) {
	return func(s string) (time.Time, error) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return t, fmt.Errorf("invalid %s: %w", flag, err)
		}
		return t, nil
	}
}

// Filter converts the options to a log.Filter.
func (o Options) Filter() (log.Filter, error) {
	f := log.Filter{ConnectionID: o.ConnID, DeviceID: o.DeviceID}
	var err error
	if f.TimeStart, err = optional(o.TimeStart, parseTime("time-start")); err != nil {
		return f, err
	}
	if f.TimeEnd, err = optional(o.TimeEnd, parseTime("time-end")); err != nil {
		return f, err
	}
	if f.Layer, err = optional(o.Layer, log.ParseLayer); err != nil {
		return f, err
	}
	if f.Direction, err = optional(o.Direction, log.ParseDirection); err != nil {
		return f, err
	}
	if f.Category, err = optional(o.Category, log.ParseCategory); err != nil {
		return f, err
	}
	if f.Opcode, err = optional(o.Opcode, ParseOpcode); err != nil {
		return f, err
	}
	return f, nil
}

// ParseOpcode parses an opcode by name, e.g. "commit_config" or
// "update-parameter".
func ParseOpcode(s string) (wire.Opcode, error) {
	want := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for i := range 256 {
		if op := wire.Opcode(i); op.String() == want {
			return op, nil
		}
	}
	return 0, fmt.Errorf("invalid opcode: %s", s)
}

// each calls fn for every event in path matching filter. It reports whether
// the capture ended inside a record.
func each(path string, filter log.Filter, fn func(log.Event) error) (truncated bool, err error) {
	r, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return false, fmt.Errorf("open capture: %w", err)
	}
	defer r.Close()

	for {
		e, err := r.Next()
		if err == io.EOF {
			return r.Truncated(), nil
		}
		if err != nil {
			return false, fmt.Errorf("read capture: %w", err)
		}
		if err := fn(e); err != nil {
			return false, err
		}
	}
}

const truncatedNote = "note: capture ends in a partial record"
