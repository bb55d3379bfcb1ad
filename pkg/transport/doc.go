// Package transport defines the link between the host and LED controllers.
//
// The Transport interface abstracts the radio. Three implementations exist:
//
//   - ble: a BLE central on tinygo.org/x/bluetooth, writing to the Nordic
//     UART style RX characteristic and subscribing to TX notifications
//   - bridge: a TCP link speaking length-prefixed frames, used with the
//     ledctl-sim simulator and discovered over mDNS
//   - loopback: an in-memory transport hosting simulated peripherals
//
// # Framing
//
// BLE carries exactly one command or response per write or notification.
// Stream transports wrap each one in a frame:
//
//	┌────────────────┬─────────────────────┐
//	│ length (2B BE) │ payload (1..4096 B) │
//	└────────────────┴─────────────────────┘
package transport
