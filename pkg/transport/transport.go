package transport

import (
	"context"
	"errors"
	"strings"
)

// Transport errors.
var (
	// ErrNotConnected indicates the peripheral has no open link.
	ErrNotConnected = errors.New("not connected")

	// ErrUnknownDevice indicates the peripheral is not reachable by this transport.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrScanInProgress indicates a second concurrent scan was requested.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrBusy indicates the write queue for the device is full.
	ErrBusy = errors.New("write queue full")

	// ErrClosed indicates the transport has been shut down.
	ErrClosed = errors.New("transport closed")
)

// Transport is the radio-agnostic link to LED controllers.
//
// Connect returns once the command characteristic is writable and
// notifications are enabled. Handlers registered with OnNotify and
// OnDisconnect replace any earlier handler for the same device and survive
// reconnects. Implementations must be safe for concurrent use.
type Transport interface {
	// Connect opens a link to the peripheral with the given ID.
	Connect(ctx context.Context, id string) error

	// Disconnect closes the link. Closing an absent link is not an error.
	Disconnect(id string) error

	// Write sends one command frame.
	Write(id string, data []byte) error

	// OnNotify registers the handler for frames from the peripheral.
	OnNotify(id string, handler func(data []byte))

	// OnDisconnect registers the handler for link loss, deliberate or not.
	OnDisconnect(id string, handler func())

	// Scan reports advertisements until ctx is done or cancel is called.
	Scan(ctx context.Context, found func(Discovered)) (cancel func(), err error)
}

// Discovered is one advertisement seen during a scan.
type Discovered struct {
	ID               string
	Name             string
	RSSI             int
	ManufacturerData []byte
	ServiceUUIDs     []string
}

// AdvertisedName is the local name prefix LED controllers advertise with.
const AdvertisedName = "LED Controller"

// ServiceUUID is the primary GATT service exposed by LED controllers.
const ServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"

// IsController reports whether an advertisement belongs to an LED controller.
func (d Discovered) IsController() bool {
	for _, u := range d.ServiceUUIDs {
		if strings.EqualFold(u, ServiceUUID) {
			return true
		}
	}
	return strings.HasPrefix(d.Name, AdvertisedName)
}
