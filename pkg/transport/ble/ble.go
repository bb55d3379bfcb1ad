// Package ble is the radio transport: a BLE central on tinygo.org/x/bluetooth.
//
// Controllers expose a Nordic UART style service. Commands are written
// without response to the RX characteristic and responses arrive as
// notifications on TX. Writes go through a per-link queue paced by a token
// bucket so bursts of parameter updates do not overrun the controller.
//
// Controllers are addressed by the adapter's address string. An address
// becomes connectable once a scan has seen it.
package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

// GATT layout of the controller.
const (
	rxCharacteristicUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	txCharacteristicUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// Defaults.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteRate      = 50
	DefaultWriteBurst     = 4
	DefaultQueueSize      = 16
)

// ErrNoService indicates the peripheral lacks the controller service.
var ErrNoService = errors.New("controller service not found")

var (
	serviceUUID = mustUUID(transport.ServiceUUID)
	rxUUID      = mustUUID(rxCharacteristicUUID)
	txUUID      = mustUUID(txCharacteristicUUID)
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Config configures the BLE transport.
type Config struct {
	// Adapter is the host radio. Nil uses bluetooth.DefaultAdapter.
	Adapter *bluetooth.Adapter

	// ConnectTimeout bounds connect plus service discovery.
	ConnectTimeout time.Duration

	// WriteRate is the sustained writes per second per link.
	WriteRate float64

	// WriteBurst is the number of writes allowed back to back.
	WriteBurst int

	// QueueSize bounds pending writes per link. Write fails with
	// transport.ErrBusy when the queue is full.
	QueueSize int

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		WriteRate:      DefaultWriteRate,
		WriteBurst:     DefaultWriteBurst,
		QueueSize:      DefaultQueueSize,
	}
}

type link struct {
	device bluetooth.Device
	writer *pacedWriter
}

// Transport is a transport.Transport over a BLE adapter.
type Transport struct {
	cfg     Config
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	mu         sync.Mutex
	seen       map[string]bluetooth.Address
	links      map[string]*link
	notify     map[string]func([]byte)
	disconnect map[string]func()
	scanning   bool
	closed     bool
}

// New enables the adapter and returns a transport using it.
func New(cfg Config) (*Transport, error) {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteRate <= 0 {
		cfg.WriteRate = def.WriteRate
	}
	if cfg.WriteBurst <= 0 {
		cfg.WriteBurst = def.WriteBurst
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Adapter == nil {
		cfg.Adapter = bluetooth.DefaultAdapter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := cfg.Adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	t := &Transport{
		cfg:        cfg,
		adapter:    cfg.Adapter,
		logger:     logger,
		seen:       make(map[string]bluetooth.Address),
		links:      make(map[string]*link),
		notify:     make(map[string]func([]byte)),
		disconnect: make(map[string]func()),
	}
	t.adapter.SetConnectHandler(t.onConnectEvent)
	return t, nil
}

// onConnectEvent receives adapter-level link changes. Only losses matter:
// connects are driven by Connect.
func (t *Transport) onConnectEvent(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	t.dropLink(device.Address.String())
}

func (t *Transport) dropLink(id string) {
	t.mu.Lock()
	l, ok := t.links[id]
	if ok {
		delete(t.links, id)
	}
	handler := t.disconnect[id]
	t.mu.Unlock()
	if !ok {
		return
	}

	l.writer.close()
	t.logger.Info("ble link lost", "device", id)
	if handler != nil {
		go handler()
	}
}

// Connect opens a link, discovers the controller service and subscribes to
// its notifications.
func (t *Transport) Connect(ctx context.Context, id string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if _, ok := t.links[id]; ok {
		t.mu.Unlock()
		return nil
	}
	addr, ok := t.seen[id]
	t.mu.Unlock()
	if !ok {
		return transport.ErrUnknownDevice
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	type result struct {
		device bluetooth.Device
		rx     bluetooth.DeviceCharacteristic
		err    error
	}
	done := make(chan result, 1)

	go func() {
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			done <- result{err: fmt.Errorf("connect %s: %w", id, err)}
			return
		}
		rx, err := t.subscribe(id, device)
		if err != nil {
			device.Disconnect()
			done <- result{err: err}
			return
		}
		done <- result{device: device, rx: rx}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// The adapter call cannot be interrupted; tear down whatever it
		// produces once it returns.
		go func() {
			if r := <-done; r.err == nil {
				r.device.Disconnect()
			}
		}()
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}

	w := newPacedWriter(res.rx, rate.NewLimiter(rate.Limit(t.cfg.WriteRate), t.cfg.WriteBurst), t.cfg.QueueSize)
	w.onError = func(err error) {
		t.logger.Warn("ble write failed", "device", id, "error", err)
		t.dropLink(id)
		res.device.Disconnect()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		w.close()
		res.device.Disconnect()
		return transport.ErrClosed
	}
	t.links[id] = &link{device: res.device, writer: w}
	t.mu.Unlock()

	go w.run()
	t.logger.Info("ble connected", "device", id)
	return nil
}

func (t *Transport) subscribe(id string, device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	var rx bluetooth.DeviceCharacteristic

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return rx, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return rx, ErrNoService
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{rxUUID, txUUID})
	if err != nil {
		return rx, fmt.Errorf("discover characteristics: %w", err)
	}

	var tx bluetooth.DeviceCharacteristic
	var haveRX, haveTX bool
	for _, c := range chars {
		switch c.UUID() {
		case rxUUID:
			rx, haveRX = c, true
		case txUUID:
			tx, haveTX = c, true
		}
	}
	if !haveRX || !haveTX {
		return rx, ErrNoService
	}

	err = tx.EnableNotifications(func(buf []byte) {
		frame := append([]byte(nil), buf...)
		t.mu.Lock()
		handler := t.notify[id]
		t.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	})
	if err != nil {
		return rx, fmt.Errorf("enable notifications: %w", err)
	}
	return rx, nil
}

// Disconnect closes the link and reports it to the disconnect handler.
func (t *Transport) Disconnect(id string) error {
	t.mu.Lock()
	l, ok := t.links[id]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	t.dropLink(id)
	return l.device.Disconnect()
}

// Write queues one frame for the link.
func (t *Transport) Write(id string, data []byte) error {
	t.mu.Lock()
	l, ok := t.links[id]
	t.mu.Unlock()
	if !ok {
		return transport.ErrNotConnected
	}
	return l.writer.enqueue(data)
}

// OnNotify registers the notification handler for id.
func (t *Transport) OnNotify(id string, handler func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notify[id] = handler
}

// OnDisconnect registers the link-loss handler for id.
func (t *Transport) OnDisconnect(id string, handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnect[id] = handler
}

// Scan reports advertisements until ctx is done or cancel is called.
// Every advertisement is reported; filtering is the caller's concern.
func (t *Transport) Scan(ctx context.Context, found func(transport.Discovered)) (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if t.scanning {
		t.mu.Unlock()
		return nil, transport.ErrScanInProgress
	}
	t.scanning = true
	t.mu.Unlock()

	scanCtx, cancelCtx := context.WithCancel(ctx)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			if err := t.adapter.StopScan(); err != nil {
				t.logger.Debug("stop scan", "error", err)
			}
		})
	}

	go func() {
		defer func() {
			t.mu.Lock()
			t.scanning = false
			t.mu.Unlock()
		}()
		err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if scanCtx.Err() != nil {
				return
			}
			d := advertisement(result)
			t.mu.Lock()
			t.seen[d.ID] = result.Address
			t.mu.Unlock()
			found(d)
		})
		if err != nil {
			t.logger.Warn("scan failed", "error", err)
		}
	}()

	go func() {
		<-scanCtx.Done()
		cancel()
	}()

	return cancel, nil
}

func advertisement(result bluetooth.ScanResult) transport.Discovered {
	d := transport.Discovered{
		ID:   result.Address.String(),
		Name: result.LocalName(),
		RSSI: int(result.RSSI),
	}
	if result.HasServiceUUID(serviceUUID) {
		d.ServiceUUIDs = []string{transport.ServiceUUID}
	}
	for _, m := range result.ManufacturerData() {
		d.ManufacturerData = append(d.ManufacturerData, byte(m.CompanyID), byte(m.CompanyID>>8))
		d.ManufacturerData = append(d.ManufacturerData, m.Data...)
	}
	return d
}

// Close drops every link. The adapter stays enabled.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	ids := make([]string, 0, len(t.links))
	for id := range t.links {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	_ = t.adapter.StopScan()
	for _, id := range ids {
		_ = t.Disconnect(id)
	}
}

var _ transport.Transport = (*Transport)(nil)
