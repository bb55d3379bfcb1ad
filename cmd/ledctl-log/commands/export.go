package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
)

// RunExport writes the matching events of the capture at path as JSON
// lines or CSV. An empty output writes to stdout.
func RunExport(path, format, output string, opts Options) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
	filter, err := opts.Filter()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(path, filter, w)
	}
	return exportJSONL(path, filter, w)
}

func exportJSONL(path string, filter log.Filter, w io.Writer) error {
	enc := json.NewEncoder(w)
	_, err := each(path, filter, func(e log.Event) error {
		return enc.Encode(e)
	})
	return err
}

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "layer", "category", "device_id",
	"type", "opcode", "marker", "error_code", "rtt_us",
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	_, err := each(path, filter, func(e log.Event) error {
		var opcode, marker, code, rtt string
		if m := e.Message; m != nil {
			if m.Opcode != nil {
				opcode = m.Opcode.String()
			}
			if m.Marker != nil {
				marker = m.Marker.String()
			}
			if m.ErrorCode != nil {
				code = m.ErrorCode.String()
			}
			if m.RoundTrip != nil {
				rtt = strconv.FormatInt(m.RoundTrip.Microseconds(), 10)
			}
		}
		row := []string{
			e.Timestamp.UTC().Format(timeLayout),
			e.ConnectionID,
			e.Direction.String(),
			e.Layer.String(),
			e.Category.String(),
			e.DeviceID,
			eventType(e),
			opcode,
			marker,
			code,
			rtt,
		}
		return cw.Write(row)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
