package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/fault"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/interaction"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/persistence"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/session"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/telemetry"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Defaults.
const (
	DefaultScanTimeout       = 10 * time.Second
	DefaultReconnectWindow   = 10 * time.Second
	DefaultConnectTimeout    = 5 * time.Second
	DefaultReconnectAttempts = 3
)

// Connection errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrNotConnected     = errors.New("not connected")
	ErrConnectInFlight  = errors.New("connect already in progress")
	ErrOwnership        = errors.New("ownership check failed")
	ErrNoPairings       = errors.New("no paired controllers")
	ErrNoMatch          = errors.New("no paired controller in range")
	ErrLinkLostOnAttach = errors.New("link lost while connecting")
)

// Config configures a Manager.
type Config struct {
	// UserID identifies the local user. Pairings are filtered by it and the
	// owner token is derived from it.
	UserID string

	// TokenSalt is mixed into owner tokens. Empty uses DefaultTokenSalt.
	TokenSalt []byte

	// TrustedMode skips claim and verify.
	TrustedMode bool

	// ScanTimeout bounds Scan and each reconnect scan round.
	ScanTimeout time.Duration

	// ReconnectWindow bounds how long Reconnecting stays visible.
	ReconnectWindow time.Duration

	// ConnectTimeout bounds each transport connect.
	ConnectTimeout time.Duration

	// ReconnectAttempts bounds the scan rounds of one reconnect window.
	ReconnectAttempts int

	// Backoff spaces scan rounds.
	Backoff BackoffConfig

	// AutoReconnect opens a reconnect window on unexpected link loss.
	AutoReconnect bool

	// CommandTimeout bounds each command. Zero uses the client default.
	CommandTimeout time.Duration

	// Session is the template for per-link sessions. DeviceID and Protocol
	// are filled in per link.
	Session session.Config

	// Telemetry collects analytics after each authenticated connect. May be nil.
	Telemetry *telemetry.Handler

	// Store persists pairings. Nil uses an in-memory store.
	Store *persistence.PairingStore

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// Protocol receives capture events for every link. May be nil.
	Protocol log.Logger

	// Now returns the pairing timestamp. Nil uses time.Now.
	Now func() time.Time

	// Callbacks. They run on manager goroutines and must not block.
	OnStatusChange func(from, to Status)
	OnConnected    func(*Link)
	OnDisconnected func(id string)
	OnReconnect    func(ReconnectOutcome)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ScanTimeout:       DefaultScanTimeout,
		ReconnectWindow:   DefaultReconnectWindow,
		ConnectTimeout:    DefaultConnectTimeout,
		ReconnectAttempts: DefaultReconnectAttempts,
		Backoff:           DefaultBackoffConfig(),
		AutoReconnect:     true,
		Session:           session.DefaultConfig(),
	}
}

// Link is one connected controller.
type Link struct {
	ID           string
	Name         string
	ConnectionID string
	ConnectedAt  time.Time

	Client *interaction.Client

	// Session is nil unless Ownership permits configuration.
	Session *session.Session

	Ownership    Ownership
	OwnershipErr error

	protocol *log.Emitter
	cancel   context.CancelFunc
	lost     atomic.Bool
}

// reconnectRun is one open reconnect window.
type reconnectRun struct {
	stop context.CancelFunc
	done chan struct{}
}

// Manager discovers, connects and reconnects controllers.
type Manager struct {
	tr      transport.Transport
	cfg     Config
	logger  *slog.Logger
	store   *persistence.PairingStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	status     Status
	links      map[string]*Link
	attaching  map[string]bool
	connecting int
	scanStop   func()
	reconnect  *reconnectRun
	closed     bool
}

// NewManager creates a manager on top of tr.
func NewManager(tr transport.Transport, cfg Config) *Manager {
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = DefaultScanTimeout
	}
	if cfg.ReconnectWindow <= 0 {
		cfg.ReconnectWindow = DefaultReconnectWindow
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = DefaultReconnectAttempts
	}
	if cfg.Store == nil {
		cfg.Store = persistence.NewPairingStore(persistence.NewMemoryKV())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tr:        tr,
		cfg:       cfg,
		logger:    logger,
		store:     cfg.Store,
		ctx:       ctx,
		cancel:    cancel,
		links:     make(map[string]*Link),
		attaching: make(map[string]bool),
	}
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Link returns the link for id, or nil.
func (m *Manager) Link(id string) *Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[id]
}

// Current returns the connected link, or nil. With one controller at a
// time this is the only link.
func (m *Manager) Current() *Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		return l
	}
	return nil
}

// Store returns the pairing store.
func (m *Manager) Store() *persistence.PairingStore {
	return m.store
}

func (m *Manager) deriveStatusLocked() Status {
	switch {
	case len(m.links) > 0:
		return StatusConnected
	case m.reconnect != nil:
		return StatusReconnecting
	case m.connecting > 0:
		return StatusConnecting
	case m.scanStop != nil:
		return StatusScanning
	default:
		return StatusIdle
	}
}

func (m *Manager) updateStatus(reason string) {
	m.mu.Lock()
	from := m.status
	to := m.deriveStatusLocked()
	m.status = to
	m.mu.Unlock()

	if from == to {
		return
	}
	m.logger.Debug("connection status", "from", from, "to", to, "reason", reason)
	if m.cfg.Protocol != nil {
		log.NewEmitter(m.cfg.Protocol, "", "").State(log.StateEntityConnection, from.String(), to.String(), reason)
	}
	if m.cfg.OnStatusChange != nil {
		m.cfg.OnStatusChange(from, to)
	}
}

// Scan reports controllers in range until timeout (zero uses ScanTimeout),
// ctx is done or StopScan is called. Each controller is reported once.
// Paired controllers seen while nothing is connected open a reconnect
// window.
func (m *Manager) Scan(ctx context.Context, timeout time.Duration, found func(transport.Discovered)) ([]transport.Discovered, error) {
	if timeout <= 0 {
		timeout = m.cfg.ScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.scanStop != nil {
		m.mu.Unlock()
		return nil, transport.ErrScanInProgress
	}
	m.scanStop = cancel
	m.mu.Unlock()
	m.updateStatus("scan")

	defer func() {
		m.mu.Lock()
		m.scanStop = nil
		m.mu.Unlock()
		m.updateStatus("scan stopped")
	}()

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		out  []transport.Discovered
	)
	stop, err := m.tr.Scan(ctx, func(d transport.Discovered) {
		if !d.IsController() {
			return
		}
		mu.Lock()
		first := !seen[d.ID]
		seen[d.ID] = true
		if first {
			out = append(out, d)
		}
		mu.Unlock()

		if first && found != nil {
			found(d)
		}
		m.HandleDiscovered(d)
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	<-ctx.Done()
	stop()

	mu.Lock()
	defer mu.Unlock()
	return append([]transport.Discovered(nil), out...), nil
}

// StopScan ends a running Scan.
func (m *Manager) StopScan() {
	m.mu.Lock()
	stop := m.scanStop
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Connect connects to d and runs the ownership step. A link whose
// ownership step failed is still returned, without a session, together with
// an error wrapping ErrOwnership and the fault.
func (m *Manager) Connect(ctx context.Context, d transport.Discovered) (*Link, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if l, ok := m.links[d.ID]; ok {
		m.mu.Unlock()
		return l, nil
	}
	m.connecting++
	m.mu.Unlock()
	m.updateStatus("connect")

	defer func() {
		m.mu.Lock()
		m.connecting--
		m.mu.Unlock()
		m.updateStatus("connect done")
	}()

	return m.connect(ctx, d)
}

func (m *Manager) connect(ctx context.Context, d transport.Discovered) (*Link, error) {
	m.mu.Lock()
	if m.attaching[d.ID] {
		m.mu.Unlock()
		return nil, ErrConnectInFlight
	}
	m.attaching[d.ID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.attaching, d.ID)
		m.mu.Unlock()
	}()

	cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	err := m.tr.Connect(cctx, d.ID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.ID, err)
	}

	link := &Link{
		ID:           d.ID,
		Name:         d.Name,
		ConnectionID: uuid.NewString(),
		ConnectedAt:  m.cfg.Now(),
	}
	link.protocol = log.NewEmitter(m.cfg.Protocol, link.ConnectionID, d.ID)
	link.Client = interaction.NewClient(m.tr, interaction.Config{
		DeviceID: d.ID,
		Timeout:  m.cfg.CommandTimeout,
		Logger:   m.logger,
		Protocol: link.protocol,
	})
	m.tr.OnDisconnect(d.ID, func() { m.handleLinkLost(link) })
	link.protocol.State(log.StateEntityConnection, "", "connected", "")

	rec, err := m.store.Lookup(d.ID)
	if err != nil {
		m.logger.Warn("pairing lookup failed", "device", d.ID, "error", err)
	}
	if rec != nil && !m.ownedByUser(rec) {
		rec = nil
	}

	link.Ownership, link.OwnershipErr = m.authenticate(ctx, link, rec != nil)
	m.recordConnect(d, rec, link.Ownership)

	if link.Ownership.Permits() {
		scfg := m.cfg.Session
		scfg.DeviceID = d.ID
		scfg.Protocol = link.protocol
		if scfg.Logger == nil {
			scfg.Logger = m.logger
		}
		link.Session = session.New(link.Client, scfg)
	}

	m.mu.Lock()
	if m.closed || link.lost.Load() {
		m.mu.Unlock()
		m.teardown(link)
		return nil, fault.New(fault.KindDisconnected, "connect", ErrLinkLostOnAttach)
	}
	m.links[d.ID] = link
	m.mu.Unlock()

	if link.Session != nil && m.cfg.Telemetry != nil {
		lctx, lcancel := context.WithCancel(m.ctx)
		link.cancel = lcancel
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.cfg.Telemetry.Run(lctx, link.ID, link.Client)
		}()
	}

	m.logger.Info("connected",
		"device", d.ID,
		"name", d.Name,
		"ownership", link.Ownership,
		"conn_id", link.ConnectionID)
	m.updateStatus("connected")
	if m.cfg.OnConnected != nil {
		m.cfg.OnConnected(link)
	}

	if link.OwnershipErr != nil {
		return link, fmt.Errorf("%w: %w", ErrOwnership, link.OwnershipErr)
	}
	return link, nil
}

// authenticate claims an unknown controller or verifies a known one.
func (m *Manager) authenticate(ctx context.Context, link *Link, known bool) (Ownership, error) {
	if m.cfg.TrustedMode {
		link.protocol.State(log.StateEntityOwnership, "", OwnershipTrusted.String(), "trusted mode")
		return OwnershipTrusted, nil
	}

	tok, err := OwnerToken(m.cfg.UserID, m.cfg.TokenSalt)
	if err != nil {
		return OwnershipUnknown, err
	}

	var (
		cmd     wire.Command = wire.ClaimDevice{OwnerToken: tok}
		success              = OwnershipClaimed
		op                   = "claim"
	)
	if known {
		cmd, success, op = wire.VerifyOwnership{OwnerToken: tok}, OwnershipVerified, "verify"
	}

	if _, err := link.Client.Do(ctx, cmd); err != nil {
		f := fault.FromError(op, err)
		state := OwnershipUnknown
		if f.Envelope != nil && fault.IsOwnershipConflict(f.Code()) {
			state = OwnershipDenied
		}
		m.logger.Warn("ownership check failed", "device", link.ID, "op", op, "error", f)
		link.protocol.State(log.StateEntityOwnership, "", state.String(), f.Error())
		return state, f
	}

	link.protocol.State(log.StateEntityOwnership, "", success.String(), "")
	return success, nil
}

func (m *Manager) ownedByUser(rec *persistence.PairedDevice) bool {
	return m.cfg.UserID == "" || rec.OwnerUserID == "" || rec.OwnerUserID == m.cfg.UserID
}

// recordConnect updates the pairing on every connect. A record is created
// only when this connect established ownership.
func (m *Manager) recordConnect(d transport.Discovered, rec *persistence.PairedDevice, own Ownership) {
	if rec == nil {
		if !own.Permits() {
			return
		}
		rec = &persistence.PairedDevice{ID: d.ID, OwnerUserID: m.cfg.UserID}
	}
	if d.Name != "" {
		rec.Name = d.Name
	}
	if d.RSSI != 0 {
		rec.RSSI = d.RSSI
	}
	if len(d.ManufacturerData) > 0 {
		rec.ManufacturerData = d.ManufacturerData
	}
	if len(d.ServiceUUIDs) > 0 {
		rec.ServiceUUIDs = d.ServiceUUIDs
	}
	rec.LastConnected = m.cfg.Now()
	rec.ConnectionCount++

	if err := m.store.Put(*rec); err != nil {
		m.logger.Warn("pairing update failed", "device", d.ID, "error", err)
	}
}

func (m *Manager) recordDisconnect(id string) {
	rec, err := m.store.Lookup(id)
	if err != nil || rec == nil {
		return
	}
	rec.LastConnected = m.cfg.Now()
	if err := m.store.Put(*rec); err != nil {
		m.logger.Warn("pairing update failed", "device", id, "error", err)
	}
}

func (m *Manager) teardown(link *Link) {
	if link.cancel != nil {
		link.cancel()
	}
	if link.Session != nil {
		link.Session.Close()
	}
	link.Client.HandleDisconnect()
	_ = link.Client.Close()
}

// Disconnect closes the link to id. It never opens a reconnect window.
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	link, ok := m.links[id]
	if ok {
		delete(m.links, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	m.teardown(link)
	err := m.tr.Disconnect(id)
	m.recordDisconnect(id)
	link.protocol.State(log.StateEntityConnection, "connected", "disconnected", "requested")
	m.logger.Info("disconnected", "device", id)

	m.updateStatus("disconnected")
	if m.cfg.OnDisconnected != nil {
		m.cfg.OnDisconnected(id)
	}
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	return nil
}

// handleLinkLost runs on the transport's disconnect notification.
func (m *Manager) handleLinkLost(link *Link) {
	link.lost.Store(true)
	link.Client.HandleDisconnect()

	m.mu.Lock()
	if m.links[link.ID] != link {
		m.mu.Unlock()
		return
	}
	delete(m.links, link.ID)
	closed := m.closed
	m.mu.Unlock()

	m.teardown(link)
	m.recordDisconnect(link.ID)
	link.protocol.State(log.StateEntityConnection, "connected", "disconnected", "link lost")
	m.logger.Warn("link lost", "device", link.ID)

	m.updateStatus("link lost")
	if m.cfg.OnDisconnected != nil {
		m.cfg.OnDisconnected(link.ID)
	}
	if m.cfg.AutoReconnect && !closed {
		m.startReconnect(TriggerLinkLost, nil)
	}
}

// Forget unclaims the controller if connected and owned, disconnects it
// and removes its pairing.
func (m *Manager) Forget(ctx context.Context, id string) error {
	if link := m.Link(id); link != nil {
		if link.Ownership == OwnershipClaimed || link.Ownership == OwnershipVerified {
			if _, err := link.Client.Do(ctx, wire.UnclaimDevice{}); err != nil {
				return fmt.Errorf("unclaim %s: %w", id, err)
			}
		}
		if err := m.Disconnect(id); err != nil && !errors.Is(err, ErrNotConnected) {
			m.logger.Warn("disconnect during forget failed", "device", id, "error", err)
		}
	}
	if err := m.store.Remove(id); err != nil {
		return fmt.Errorf("remove pairing %s: %w", id, err)
	}
	m.logger.Info("forgot controller", "device", id)
	return nil
}

// Close stops scans and reconnects, disconnects every link and waits for
// background work.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	m.StopScan()
	m.StopReconnect()
	m.cancel()

	for _, id := range ids {
		if err := m.Disconnect(id); err != nil && !errors.Is(err, ErrNotConnected) {
			m.logger.Warn("disconnect on close failed", "device", id, "error", err)
		}
	}
	m.wg.Wait()
	return nil
}
