// Package commands implements the ledctl-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// RunView prints the matching events of the capture at path.
func RunView(path string, opts Options, w io.Writer) error {
	filter, err := opts.Filter()
	if err != nil {
		return err
	}
	truncated, err := each(path, filter, func(e log.Event) error {
		formatEvent(w, e)
		return nil
	})
	if truncated {
		fmt.Fprintln(w, truncatedNote)
	}
	return err
}

// formatEvent prints a header line, indented details and a blank line.
func formatEvent(w io.Writer, e log.Event) {
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s",
		e.Timestamp.UTC().Format(timeLayout), shortenConnID(e.ConnectionID), e.Direction, e.Layer, eventType(e))
	if e.DeviceID != "" {
		fmt.Fprintf(w, " (%s)", e.DeviceID)
	}
	fmt.Fprintln(w)
	for _, line := range details(e) {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)
}

func eventType(e log.Event) string {
	switch {
	case e.Frame != nil:
		return "Frame"
	case e.Message != nil:
		return e.Message.Type.String()
	case e.StateChange != nil:
		return "State"
	case e.Error != nil:
		return "Error"
	}
	return "Unknown"
}

func shortenConnID(id string) string {
	return id[:min(len(id), 8)]
}

// named renders an enum with its byte value.
func named[T ~uint8](v T) string {
	return fmt.Sprintf("%v (0x%02X)", v, uint8(v))
}

func details(e log.Event) []string {
	var out []string
	add := func(format string, args ...any) { out = append(out, fmt.Sprintf(format, args...)) }

	switch {
	case e.Frame != nil:
		add("Size: %d bytes", e.Frame.Size)
		if len(e.Frame.Data) > 0 {
			data := hex.EncodeToString(e.Frame.Data)
			if e.Frame.Truncated {
				data += " (truncated)"
			}
			add("Data: %s", data)
		}

	case e.Message != nil:
		m := e.Message
		if m.Opcode != nil {
			add("Opcode: %s", named(*m.Opcode))
		}
		if m.Marker != nil {
			add("Marker: %s", named(*m.Marker))
		}
		if m.ErrorCode != nil {
			add("Error: %s", named(*m.ErrorCode))
		}
		if m.RoundTrip != nil {
			add("RTT: %s", formatDuration(*m.RoundTrip))
		}

	case e.StateChange != nil:
		s := e.StateChange
		add("Entity: %s", s.Entity)
		if s.OldState != "" {
			add("%s -> %s", s.OldState, s.NewState)
		} else {
			add("-> %s", s.NewState)
		}
		if s.Reason != "" {
			add("Reason: %s", s.Reason)
		}

	case e.Error != nil:
		x := e.Error
		add("Layer: %s", x.Layer)
		add("Message: %s", x.Message)
		if x.Code != nil {
			add("Code: %d", *x.Code)
		}
		if x.Context != "" {
			add("Context: %s", x.Context)
		}
	}
	return out
}

// formatDuration prints d with three decimals in the largest fitting unit.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
