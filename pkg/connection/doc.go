// Package connection discovers, connects and reconnects LED controllers.
//
// A Manager owns every link. Connect opens the transport, then runs the
// ownership step: an unknown controller is claimed with the user's owner
// token, a paired one is verified. A failed ownership step leaves the link
// up but opens no configuration session. Trusted mode skips the step.
//
// # Reconnection
//
// A reconnect window opens on app launch, on foreground with nothing
// connected, when a scan sees a paired controller, and on unexpected link
// loss. Inside the window the manager makes one direct connect to the last
// connected controller, then scans for any paired controller in rounds
// spaced by exponential backoff:
//
//	500ms, 1s, 2s, 4s (max), each plus up to 25% jitter
//
// The window closes after ReconnectWindow (10 s by default) whatever the
// outcome and the status returns to Idle. An attempt still in flight may
// complete afterwards and connect. Failures are reported through
// OnReconnect only.
//
// # Status
//
// Status is derived, in order of precedence: Connected if any link is up,
// Reconnecting while a window is open, Connecting during an explicit
// Connect, Scanning during Scan, otherwise Idle.
package connection
