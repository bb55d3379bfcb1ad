// Package wire defines the binary wire format spoken with the LED controller.
//
// Every frame is a single BLE write (host to peripheral) or notification
// (peripheral to host). The first byte discriminates the frame; payloads are
// fixed-width and big-endian.
//
// # Commands
//
// Commands are encoded by Encode. Numeric fields outside 0-255 are clamped,
// never rejected, so Encode is total:
//
//	0x10 enter-config       0x11 exit-config      0x12 commit-config
//	0x13 claim  +16 token   0x14 verify +16 token  0x15 unclaim
//	0x02 update-parameter +id +value
//	0x03 update-color     +h +s +v
//	0x20 request-analytics
//	0x21 confirm-analytics +4 batch id
//
// # Responses
//
// Responses are decoded by Decode:
//
//	0x90 ack-success (optionally followed by a 7 byte config snapshot)
//	0x91 ack-error   +code (+ optional UTF-8 message)
//	0xA0 analytics batch (22 byte header + 14 byte session records)
//
// Frames that cannot be decoded produce a *FrameError wrapping
// ErrMalformedFrame or ErrUnknownFrame; Decode never panics.
//
// # Legacy Text Responses
//
// Older firmware answers with text lines of the form "ERROR:<code>:<message>"
// and "SUCCESS:<message>". Decode recognizes both and produces the same
// Response values as the binary path, so callers handle one shape.
//
// # Correlation
//
// The protocol carries no sequence numbers. A response belongs to the single
// outstanding command on the device that sent it.
package wire
