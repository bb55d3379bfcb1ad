// Package bridge carries controller frames over TCP.
//
// A bridge stands in for the radio during development: ledctl-sim serves a
// simulated controller with Server and advertises it over mDNS, and the
// host reaches it through Transport. Each command and each response travels
// as one length-prefixed frame (see the transport package).
//
// Controllers are addressed by their mDNS instance name. Peers may also be
// configured statically, which is how the tests run without multicast.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

// DefaultDialTimeout bounds the TCP connect.
const DefaultDialTimeout = 5 * time.Second

// Config configures a bridge transport.
type Config struct {
	// Peers maps controller IDs to host:port. They are reported by every
	// scan and can be connected without one.
	Peers map[string]string

	// Browse enables mDNS discovery during scans.
	Browse bool

	// Interface restricts mDNS browsing to one network interface.
	Interface string

	// DialTimeout bounds a connect across all of a controller's addresses.
	// Zero uses DefaultDialTimeout.
	DialTimeout time.Duration

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger
}

type conn struct {
	nc     net.Conn
	framer *transport.Framer
}

// Transport is a transport.Transport over TCP.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	addrs      map[string][]string
	adverts    map[string]transport.Discovered
	conns      map[string]*conn
	notify     map[string]func([]byte)
	disconnect map[string]func()
	scanning   bool
	closed     bool
	wg         sync.WaitGroup
}

// New creates a bridge transport.
func New(cfg Config) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	t := &Transport{
		cfg:        cfg,
		logger:     logger,
		addrs:      make(map[string][]string),
		adverts:    make(map[string]transport.Discovered),
		conns:      make(map[string]*conn),
		notify:     make(map[string]func([]byte)),
		disconnect: make(map[string]func()),
	}
	for id, addr := range cfg.Peers {
		t.addrs[id] = []string{addr}
		t.adverts[id] = transport.Discovered{
			ID:           id,
			Name:         transport.AdvertisedName,
			ServiceUUIDs: []string{transport.ServiceUUID},
		}
	}
	return t
}

// AddPeer makes a controller reachable at addr.
func (t *Transport) AddPeer(id, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[id] = []string{addr}
	t.adverts[id] = transport.Discovered{
		ID:           id,
		Name:         transport.AdvertisedName,
		ServiceUUIDs: []string{transport.ServiceUUID},
	}
}

// Connect dials the controller. Connecting an open link is a no-op.
func (t *Transport) Connect(ctx context.Context, id string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if _, ok := t.conns[id]; ok {
		t.mu.Unlock()
		return nil
	}
	addrs := t.addrs[id]
	t.mu.Unlock()
	if len(addrs) == 0 {
		return transport.ErrUnknownDevice
	}

	nc, err := t.dial(ctx, addrs)
	if err != nil {
		return err
	}

	c := &conn{nc: nc, framer: transport.NewFramer(nc, nil)}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		nc.Close()
		return transport.ErrClosed
	}
	if _, ok := t.conns[id]; ok {
		t.mu.Unlock()
		nc.Close()
		return nil
	}
	t.conns[id] = c
	t.wg.Add(1)
	t.mu.Unlock()

	go t.readLoop(id, c)

	t.logger.Debug("bridge connected", "device", id, "addr", nc.RemoteAddr().String())
	return nil
}

// dial tries addrs in order until one answers. Each attempt gets an equal
// share of what is left of the dial timeout so one unreachable address
// cannot use up the whole budget.
func (t *Transport) dial(ctx context.Context, addrs []string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	var errs []error
	for i, addr := range addrs {
		if ctx.Err() != nil {
			break
		}
		share := time.Until(deadline) / time.Duration(len(addrs)-i)
		d := net.Dialer{Timeout: share}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return nc, nil
		}
		t.logger.Debug("bridge dial failed", "addr", addr, "error", err)
		errs = append(errs, fmt.Errorf("dial %s: %w", addr, err))
	}
	if len(errs) == 0 {
		return nil, ctx.Err()
	}
	return nil, errors.Join(errs...)
}

// readLoop delivers frames until the connection fails, then reports the
// link loss once.
func (t *Transport) readLoop(id string, c *conn) {
	defer t.wg.Done()

	for {
		frame, err := c.framer.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				t.logger.Debug("bridge read failed", "device", id, "error", err)
			}
			break
		}

		t.mu.Lock()
		handler := t.notify[id]
		t.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	}

	c.nc.Close()

	t.mu.Lock()
	if t.conns[id] == c {
		delete(t.conns, id)
	}
	handler := t.disconnect[id]
	t.mu.Unlock()

	t.logger.Debug("bridge disconnected", "device", id)
	if handler != nil {
		handler()
	}
}

// Disconnect closes the link. The disconnect handler runs once the read
// loop sees the connection close.
func (t *Transport) Disconnect(id string) error {
	t.mu.Lock()
	c, ok := t.conns[id]
	t.mu.Unlock()
	if ok {
		c.nc.Close()
	}
	return nil
}

// Write sends one frame.
func (t *Transport) Write(id string, data []byte) error {
	t.mu.Lock()
	c, ok := t.conns[id]
	t.mu.Unlock()
	if !ok {
		return transport.ErrNotConnected
	}
	return c.framer.WriteFrame(data)
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

// Scan reports the configured peers and, with Browse set, every bridge
// seen over mDNS. Each controller is reported once per scan.
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
	initial := make([]transport.Discovered, 0, len(t.adverts))
	for _, d := range t.adverts {
		initial = append(initial, d)
	}
	t.mu.Unlock()

	scanCtx, cancelCtx := context.WithCancel(ctx)
	var stopped atomic.Bool
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stopped.Store(true)
			cancelCtx()
			t.mu.Lock()
			t.scanning = false
			t.mu.Unlock()
		})
	}

	var seenMu sync.Mutex
	seen := make(map[string]bool)
	report := func(d transport.Discovered) {
		seenMu.Lock()
		dup := seen[d.ID]
		seen[d.ID] = true
		seenMu.Unlock()
		if !dup && !stopped.Load() {
			found(d)
		}
	}

	if t.cfg.Browse {
		browse(scanCtx, t.cfg.Interface, func(p peer) {
			if addrs := p.dialAddrs(localNets()); len(addrs) > 0 {
				t.mu.Lock()
				t.addrs[p.adv.ID] = addrs
				t.mu.Unlock()
			}
			report(p.adv)
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

// Close drops every link and waits for the read loops to exit.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		c.nc.Close()
	}
	t.wg.Wait()
}

var _ transport.Transport = (*Transport)(nil)
