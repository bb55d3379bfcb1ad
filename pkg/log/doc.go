// Package log captures a machine-readable trace of the controller protocol.
//
// It is separate from operational logging (slog). Every command written,
// every frame received, every session and connection transition and every
// error can be recorded as an Event and replayed later with ledctl-log.
//
// # Basic Usage
//
//	// Console
//	cfg.Protocol = log.NewSlogAdapter(slog.Default())
//
//	// Capture file
//	fl, _ := log.NewFileLogger("/var/lib/ledctl/session.llog")
//	cfg.Protocol = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Components hold an Emitter per link, which stamps the connection and
// device IDs onto each event.
//
// # File Format
//
// Capture files, conventionally named *.llog, start with the bytes "LLOG"
// and a version byte. One CBOR record per event follows, keyed by small
// integers. Reopening a capture appends to it. A record cut off by a crash
// ends the capture without failing the reader.
package log
