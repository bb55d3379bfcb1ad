// Package loopback is an in-memory Transport hosting simulated peripherals.
//
// Links can be dropped, taken out of range and made to refuse connections,
// which lets tests drive the reconnect and fault paths deterministically.
package loopback

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/peripheral"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

// Config configures a loopback transport.
type Config struct {
	// ResponseDelay is the latency between a write and its notification.
	ResponseDelay time.Duration

	// ConnectDelay is how long Connect takes to succeed.
	ConnectDelay time.Duration

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with a small, realistic latency.
func DefaultConfig() Config {
	return Config{
		ResponseDelay: 2 * time.Millisecond,
		ConnectDelay:  5 * time.Millisecond,
	}
}

type link struct {
	dev     *peripheral.Device
	rssi    int
	inRange bool

	connected    bool
	refuse       int
	writes       chan []byte
	done         chan struct{}
	onNotify     func([]byte)
	onDisconnect func()
}

// Transport is an in-memory transport.Transport.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	links   map[string]*link
	scanner func(transport.Discovered)
	wg      sync.WaitGroup
}

// New creates an empty loopback transport.
func New(cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transport{
		cfg:    cfg,
		logger: logger,
		links:  make(map[string]*link),
	}
}

// Add makes dev reachable and in range.
func (t *Transport) Add(dev *peripheral.Device, rssi int) {
	t.mu.Lock()
	l := &link{dev: dev, rssi: rssi, inRange: true}
	t.links[dev.ID()] = l
	scanner := t.scanner
	t.mu.Unlock()

	if scanner != nil {
		scanner(l.advertisement())
	}
}

func (l *link) advertisement() transport.Discovered {
	return transport.Discovered{
		ID:           l.dev.ID(),
		Name:         l.dev.Name(),
		RSSI:         l.rssi,
		ServiceUUIDs: []string{transport.ServiceUUID},
	}
}

// SetInRange moves a device in or out of range. Going out of range drops
// an open link; coming back into range advertises to a running scan.
func (t *Transport) SetInRange(id string, inRange bool) {
	t.mu.Lock()
	l, ok := t.links[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	l.inRange = inRange
	scanner := t.scanner
	t.mu.Unlock()

	if !inRange {
		t.drop(id)
		return
	}
	if scanner != nil {
		scanner(l.advertisement())
	}
}

// Drop simulates unexpected link loss.
func (t *Transport) Drop(id string) {
	t.drop(id)
}

// RefuseConnects makes the next n Connect calls for id fail.
func (t *Transport) RefuseConnects(id string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.links[id]; ok {
		l.refuse = n
	}
}

// Connected reports whether id has an open link.
func (t *Transport) Connected(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.links[id]
	return ok && l.connected
}

// Connect opens a link after ConnectDelay.
func (t *Transport) Connect(ctx context.Context, id string) error {
	select {
	case <-time.After(t.cfg.ConnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.links[id]
	if !ok || !l.inRange {
		return transport.ErrUnknownDevice
	}
	if l.refuse > 0 {
		l.refuse--
		return transport.ErrUnknownDevice
	}
	if l.connected {
		return nil
	}

	l.connected = true
	l.writes = make(chan []byte, 16)
	l.done = make(chan struct{})
	t.wg.Add(1)
	go t.serve(l, l.writes, l.done)

	t.logger.Debug("loopback connected", "device", id)
	return nil
}

// serve delivers writes to the device in order and notifies responses.
func (t *Transport) serve(l *link, writes <-chan []byte, done <-chan struct{}) {
	defer t.wg.Done()
	for {
		select {
		case <-done:
			return
		case data := <-writes:
			if t.cfg.ResponseDelay > 0 {
				select {
				case <-time.After(t.cfg.ResponseDelay):
				case <-done:
					return
				}
			}
			resp := l.dev.Handle(data)
			if resp == nil {
				continue
			}

			t.mu.Lock()
			handler := l.onNotify
			live := l.done == done
			t.mu.Unlock()

			if live && handler != nil {
				handler(resp)
			}
		}
	}
}

// Disconnect closes the link and reports it to the disconnect handler.
func (t *Transport) Disconnect(id string) error {
	t.drop(id)
	return nil
}

func (t *Transport) drop(id string) {
	t.mu.Lock()
	l, ok := t.links[id]
	if !ok || !l.connected {
		t.mu.Unlock()
		return
	}
	l.connected = false
	close(l.done)
	l.done = nil
	handler := l.onDisconnect
	t.mu.Unlock()

	l.dev.LinkLost()
	t.logger.Debug("loopback disconnected", "device", id)
	if handler != nil {
		go handler()
	}
}

// Write queues one frame for the device.
func (t *Transport) Write(id string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.links[id]
	if !ok || !l.connected {
		return transport.ErrNotConnected
	}
	select {
	case l.writes <- append([]byte(nil), data...):
		return nil
	default:
		return transport.ErrBusy
	}
}

// OnNotify registers the notification handler for id.
func (t *Transport) OnNotify(id string, handler func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.links[id]; ok {
		l.onNotify = handler
	}
}

// OnDisconnect registers the link-loss handler for id.
func (t *Transport) OnDisconnect(id string, handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.links[id]; ok {
		l.onDisconnect = handler
	}
}

// Scan reports every in-range device, then any that come into range later.
func (t *Transport) Scan(ctx context.Context, found func(transport.Discovered)) (func(), error) {
	t.mu.Lock()
	if t.scanner != nil {
		t.mu.Unlock()
		return nil, transport.ErrScanInProgress
	}
	var once sync.Once
	var stopped atomic.Bool
	report := func(d transport.Discovered) {
		if !stopped.Load() {
			found(d)
		}
	}
	t.scanner = report

	var initial []transport.Discovered
	for _, l := range t.links {
		if l.inRange {
			initial = append(initial, l.advertisement())
		}
	}
	t.mu.Unlock()

	scanCtx, cancelCtx := context.WithCancel(ctx)
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			stopped.Store(true)
			t.mu.Lock()
			t.scanner = nil
			t.mu.Unlock()
		})
	}

	go func() {
		for _, d := range initial {
			report(d)
		}
		<-scanCtx.Done()
		cancel()
	}()

	return cancel, nil
}

// Close drops every link and waits for delivery goroutines to exit.
func (t *Transport) Close() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.links))
	for id := range t.links {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.drop(id)
	}
	t.wg.Wait()
}

var _ transport.Transport = (*Transport)(nil)
