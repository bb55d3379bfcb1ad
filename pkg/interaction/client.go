package interaction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/fault"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// DefaultRequestTimeout bounds the wait for a response.
const DefaultRequestTimeout = 5 * time.Second

// Client errors.
var (
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Config configures a Client.
type Config struct {
	// DeviceID is the transport address of the peripheral.
	DeviceID string

	// Timeout bounds the wait for each response. Zero uses DefaultRequestTimeout.
	Timeout time.Duration

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// Protocol receives frame and message capture events. May be nil.
	Protocol *log.Emitter
}

type result struct {
	resp wire.Response
	err  error
}

type pendingCommand struct {
	op   wire.Opcode
	sent time.Time
	ch   chan result
}

// Client sends commands to one peripheral, one at a time.
type Client struct {
	transport transport.Transport
	id        string
	timeout   time.Duration
	logger    *slog.Logger
	protocol  *log.Emitter

	// slot holds a token while a command is outstanding.
	slot chan struct{}

	mu          sync.Mutex
	pending     *pendingCommand
	closed      bool
	closeCh     chan struct{}
	unsolicited func(wire.Response)
}

// NewClient creates a client and subscribes to the peripheral's
// notifications. The caller owns the transport's disconnect handler and
// must forward link loss to HandleDisconnect.
func NewClient(tr transport.Transport, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		transport: tr,
		id:        cfg.DeviceID,
		timeout:   cfg.Timeout,
		logger:    logger.With("device", cfg.DeviceID),
		protocol:  cfg.Protocol,
		slot:      make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
	tr.OnNotify(cfg.DeviceID, c.HandleFrame)
	return c
}

// DeviceID returns the peripheral address.
func (c *Client) DeviceID() string {
	return c.id
}

// SetUnsolicitedHandler sets the handler for responses that arrive with no
// command outstanding.
func (c *Client) SetUnsolicitedHandler(handler func(wire.Response)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsolicited = handler
}

// InFlight reports whether a command is awaiting its response.
func (c *Client) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Do sends cmd and waits for its response.
//
// ctx bounds only the wait for the in-flight slot; once written, a command
// runs to its response, timeout or disconnect. An ack-error is returned
// together with a protocol fault.
func (c *Client) Do(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	op := cmd.Opcode()

	select {
	case c.slot <- struct{}{}:
	case <-c.closeCh:
		return nil, c.fault(fault.KindDisconnected, op, ErrClientClosed)
	case <-ctx.Done():
		kind := fault.KindTransport
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = fault.KindTimeout
		}
		return nil, c.fault(kind, op, ctx.Err())
	}
	defer func() { <-c.slot }()

	p := &pendingCommand{op: op, ch: make(chan result, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, c.fault(fault.KindDisconnected, op, ErrClientClosed)
	}
	p.sent = time.Now()
	c.pending = p
	c.mu.Unlock()

	frame := wire.Encode(cmd)
	c.protocol.Command(op)
	c.protocol.Frame(log.DirectionOut, frame)

	if err := c.transport.Write(c.id, frame); err != nil {
		c.clearPending(p)
		kind := fault.KindTransport
		if errors.Is(err, transport.ErrNotConnected) {
			kind = fault.KindDisconnected
		}
		c.logger.Debug("write failed", "opcode", op, "error", err)
		return nil, c.fault(kind, op, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-p.ch:
		if r.err != nil {
			return nil, c.wrap(op, r.err)
		}
		if ack, ok := r.resp.(wire.AckError); ok {
			f := fault.FromEnvelope(op.String(), ack.Envelope)
			f.DeviceID = c.id
			return r.resp, f
		}
		return r.resp, nil

	case <-timer.C:
		c.clearPending(p)
		c.logger.Debug("command timed out", "opcode", op, "timeout", c.timeout)
		f := c.fault(fault.KindTimeout, op, fault.ErrTimeout)
		c.protocol.Error(log.LayerWire, op.String(), f, nil)
		return nil, f
	}
}

func (c *Client) clearPending(p *pendingCommand) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()
}

func (c *Client) fault(kind fault.Kind, op wire.Opcode, err error) *fault.Fault {
	f := fault.New(kind, op.String(), err)
	f.DeviceID = c.id
	return f
}

func (c *Client) wrap(op wire.Opcode, err error) *fault.Fault {
	f := fault.FromError(op.String(), err)
	f.DeviceID = c.id
	return f
}

// takePending detaches the outstanding command, if any.
func (c *Client) takePending() (*pendingCommand, func(wire.Response)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p, c.unsolicited
}

// HandleFrame processes one notification from the peripheral. It is
// registered with the transport by NewClient.
func (c *Client) HandleFrame(data []byte) {
	c.protocol.Frame(log.DirectionIn, data)

	resp, err := wire.Decode(data)
	p, unsolicited := c.takePending()

	if err != nil {
		c.logger.Warn("undecodable frame", "error", err, "outstanding", p != nil)
		c.protocol.Error(log.LayerWire, "decode", err, nil)
		if p != nil {
			p.ch <- result{err: err}
		}
		return
	}

	if p == nil {
		c.protocol.Response(resp, 0)
		c.logger.Debug("dropping unsolicited response", "marker", resp.Marker())
		if unsolicited != nil {
			unsolicited(resp)
		}
		return
	}

	c.protocol.Response(resp, time.Since(p.sent))
	p.ch <- result{resp: resp}
}

// HandleDisconnect fails the outstanding command with a disconnect fault.
// The client stays usable if the link comes back.
func (c *Client) HandleDisconnect() {
	if p, _ := c.takePending(); p != nil {
		p.ch <- result{err: fault.ErrDisconnected}
	}
}

// Close fails the outstanding command and rejects further ones.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()

	c.HandleDisconnect()
	return nil
}
