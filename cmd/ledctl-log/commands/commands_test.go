package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

var t0 = time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

func writeCapture(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.llog")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	return path
}

func ptr[T any](v T) *T { return &v }

// session returns a short exchange: enter, a rejected update, a commit.
func session() []log.Event {
	const conn = "c0ffee00-1111-2222-3333-444455556666"
	return []log.Event{
		{
			Timestamp: t0, ConnectionID: conn, DeviceID: "desk",
			Direction: log.DirectionOut, Layer: log.LayerTransport, Category: log.CategoryMessage,
			Frame: &log.FrameEvent{Size: 1, Data: []byte{0x10}},
		},
		{
			Timestamp: t0, ConnectionID: conn, DeviceID: "desk",
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeCommand, Opcode: ptr(wire.OpEnterConfig)},
		},
		{
			Timestamp: t0.Add(20 * time.Millisecond), ConnectionID: conn, DeviceID: "desk",
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{
				Type: log.MessageTypeResponse, Marker: ptr(wire.MarkerAckSuccess),
				RoundTrip: ptr(20 * time.Millisecond),
			},
		},
		{
			Timestamp: t0.Add(time.Second), ConnectionID: conn, DeviceID: "desk",
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeCommand, Opcode: ptr(wire.OpUpdateParameter)},
		},
		{
			Timestamp: t0.Add(time.Second + 40*time.Millisecond), ConnectionID: conn, DeviceID: "desk",
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{
				Type: log.MessageTypeResponse, Marker: ptr(wire.MarkerAckError),
				ErrorCode: ptr(wire.ErrorOutOfRange), RoundTrip: ptr(40 * time.Millisecond),
			},
		},
		{
			Timestamp: t0.Add(2 * time.Second), ConnectionID: conn, DeviceID: "desk",
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeCommand, Opcode: ptr(wire.OpCommitConfig)},
		},
		{
			Timestamp: t0.Add(3 * time.Second), ConnectionID: conn, DeviceID: "desk",
			Layer: log.LayerService, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity: log.StateEntitySession, OldState: "CONFIGURING", NewState: "COMMITTED",
			},
		},
		{
			Timestamp: t0.Add(4 * time.Second), ConnectionID: conn, DeviceID: "desk",
			Layer: log.LayerService, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerService, Message: "link lost", Context: "telemetry"},
		},
	}
}

func TestView(t *testing.T) {
	path := writeCapture(t, session())

	var buf bytes.Buffer
	require.NoError(t, RunView(path, Options{}, &buf))
	out := buf.String()

	assert.Contains(t, out, "2026-03-02T18:30:00.000000Z [conn:c0ffee00] OUT TRANSPORT Frame (desk)")
	assert.Contains(t, out, "Data: 10")
	assert.Contains(t, out, "Opcode: ENTER_CONFIG (0x10)")
	assert.Contains(t, out, "Marker: ACK_ERROR (0x91)")
	assert.Contains(t, out, "Error: OUT_OF_RANGE (0x03)")
	assert.Contains(t, out, "RTT: 40.000ms")
	assert.Contains(t, out, "CONFIGURING -> COMMITTED")
	assert.Contains(t, out, "Message: link lost")
}

func TestViewFiltered(t *testing.T) {
	path := writeCapture(t, session())

	var buf bytes.Buffer
	require.NoError(t, RunView(path, Options{Opcode: "commit-config"}, &buf))
	out := buf.String()
	assert.Contains(t, out, "COMMIT_CONFIG")
	assert.NotContains(t, out, "ENTER_CONFIG")

	buf.Reset()
	require.NoError(t, RunView(path, Options{Direction: "in", Layer: "wire"}, &buf))
	assert.Equal(t, 2, strings.Count(buf.String(), "RESPONSE"))
	assert.NotContains(t, buf.String(), "COMMAND")
}

func TestOptionErrors(t *testing.T) {
	for _, opts := range []Options{
		{Layer: "radio"},
		{Direction: "sideways"},
		{Category: "control"},
		{Opcode: "reboot"},
		{TimeStart: "yesterday"},
		{TimeEnd: "tomorrow"},
	} {
		_, err := opts.Filter()
		assert.Error(t, err, "%+v", opts)
	}
}

func TestParseOpcode(t *testing.T) {
	op, err := ParseOpcode("update_color")
	require.NoError(t, err)
	assert.Equal(t, wire.OpUpdateColor, op)

	op, err = ParseOpcode("Claim-Device")
	require.NoError(t, err)
	assert.Equal(t, wire.OpClaimDevice, op)
}

func TestFilterWritesCapture(t *testing.T) {
	path := writeCapture(t, session())
	out := filepath.Join(t.TempDir(), "errors.llog")

	var buf bytes.Buffer
	require.NoError(t, RunFilter(path, out, Options{Category: "error"}, &buf))
	assert.Contains(t, buf.String(), "Filtered 1 events")

	r, err := log.NewReader(out)
	require.NoError(t, err)
	defer r.Close()
	e, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, e.Error)
	assert.Equal(t, "link lost", e.Error.Message)

	assert.Error(t, RunFilter(path, "", Options{}, &buf))
}

func TestStats(t *testing.T) {
	path := writeCapture(t, session())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, Options{}, &buf))
	out := buf.String()

	assert.Contains(t, out, "Total Events: 8")
	assert.Contains(t, out, "Duration:   4s")
	assert.Contains(t, out, "ENTER_CONFIG:")
	assert.Contains(t, out, "COMMIT_CONFIG:")
	assert.Contains(t, out, "OUT_OF_RANGE:")
	assert.Contains(t, out, "Connections: 1")
	assert.Contains(t, out, "Device: desk")
	assert.Contains(t, out, "RTT: avg 30.000ms, max 40.000ms over 2 responses")
	assert.Contains(t, out, "Errors: 1")
}

func TestStatsEmpty(t *testing.T) {
	path := writeCapture(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, Options{}, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.NotContains(t, buf.String(), "Time Range")
}

func TestExportJSONL(t *testing.T) {
	path := writeCapture(t, session())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	require.NoError(t, RunExport(path, "jsonl", out, Options{Layer: "service"}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var e log.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	require.NotNil(t, e.StateChange)
	assert.Equal(t, "COMMITTED", e.StateChange.NewState)
}

func TestExportCSV(t *testing.T) {
	path := writeCapture(t, session())
	out := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, RunExport(path, "csv", out, Options{}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 9)

	assert.Equal(t, "opcode", rows[0][7])
	assert.Equal(t, "ENTER_CONFIG", rows[2][7])
	assert.Equal(t, "ACK_ERROR", rows[5][8])
	assert.Equal(t, "OUT_OF_RANGE", rows[5][9])
	assert.Equal(t, "40000", rows[5][10])
}

func TestExportUnknownFormat(t *testing.T) {
	path := writeCapture(t, session())
	assert.Error(t, RunExport(path, "xml", filepath.Join(t.TempDir(), "x"), Options{}))
}

func TestTruncatedCapture(t *testing.T) {
	path := writeCapture(t, session())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	var buf bytes.Buffer
	require.NoError(t, RunView(path, Options{}, &buf))
	assert.Contains(t, buf.String(), "CONFIGURING -> COMMITTED")
	assert.NotContains(t, buf.String(), "link lost")
	assert.Contains(t, buf.String(), truncatedNote)

	buf.Reset()
	require.NoError(t, RunStats(path, Options{}, &buf))
	assert.Contains(t, buf.String(), "Total Events: 7")
	assert.Contains(t, buf.String(), truncatedNote)
}

func TestMissingFile(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, RunView(filepath.Join(t.TempDir(), "nope.llog"), Options{}, &buf))
}
