package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/fault"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/power"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// DefaultDebounce is the quiet period before a write is sent.
const DefaultDebounce = 150 * time.Millisecond

// Session errors.
var (
	// ErrNotActive indicates Commit was called outside config mode.
	ErrNotActive = errors.New("session not active")

	// ErrClosed indicates the session was closed.
	ErrClosed = errors.New("session closed")
)

// Commander sends one command and waits for its response.
// *interaction.Client implements it.
type Commander interface {
	Do(ctx context.Context, cmd wire.Command) (wire.Response, error)
}

// Config configures a Session.
type Config struct {
	// DeviceID identifies the controller in logs and faults.
	DeviceID string

	// Debounce is the per-key quiet period. Zero uses DefaultDebounce.
	Debounce time.Duration

	// Budget bounds brightness and colour combinations.
	Budget power.Budget

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// Protocol receives state change and error capture events. May be nil.
	Protocol *log.Emitter

	// OnStateChange is called after every transition.
	OnStateChange func(from, to State)

	// OnError receives failures of debounced writes.
	OnError func(*fault.Fault)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Debounce: DefaultDebounce,
		Budget:   power.DefaultBudget(),
	}
}

// writeKey identifies a debounced value. Writes for different keys are
// independent; writes for the same key coalesce.
type writeKey string

const colorKey writeKey = "color"

func paramKey(p wire.ParameterID) writeKey {
	return writeKey(p.String())
}

// Session is the configuration session for one controller.
type Session struct {
	cmd      Commander
	cfg      Config
	logger   *slog.Logger
	protocol *log.Emitter

	// enterMu serializes EnterConfig attempts.
	enterMu sync.Mutex

	mu    sync.Mutex
	idle  *sync.Cond
	state State

	// epoch changes on link loss; work from an older epoch is dropped.
	epoch     uint64
	epochCtx  context.Context
	cancelCtx context.CancelFunc
	closed    bool

	known     *wire.ConfigSnapshot
	requested map[wire.ParameterID]uint8
	color     *[3]uint8

	timers   map[writeKey]*time.Timer
	pending  map[writeKey]wire.Command
	busy     map[writeKey]bool
	inflight int
}

// New creates an Inactive session sending through cmd.
func New(cmd Commander, cfg Config) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Session{
		cmd:       cmd,
		cfg:       cfg,
		logger:    logger.With("device", cfg.DeviceID),
		protocol:  cfg.Protocol,
		requested: make(map[wire.ParameterID]uint8),
		timers:    make(map[writeKey]*time.Timer),
		pending:   make(map[writeKey]wire.Command),
		busy:      make(map[writeKey]bool),
	}
	s.idle = sync.NewCond(&s.mu)
	s.epochCtx, s.cancelCtx = context.WithCancel(context.Background())
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the last configuration reported by the controller, or
// nil if none has been seen.
func (s *Session) Snapshot() *wire.ConfigSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known == nil {
		return nil
	}
	snap := *s.known
	return &snap
}

// Pending returns the number of debounced writes not yet sent.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) currentEpoch() (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch, s.epochCtx
}

// setStateIf moves to the given state unless the link dropped since epoch.
func (s *Session) setStateIf(epoch uint64, to State) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.notifyState(from, to, "")
	return true
}

// swapState moves from one state to another, and only if the session is
// still in from on the same link.
func (s *Session) swapState(epoch uint64, from, to State) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.notifyState(from, to, "")
	return true
}

func (s *Session) notifyState(from, to State, reason string) {
	if from == to {
		return
	}
	s.logger.Debug("session state", "from", from, "to", to)
	s.protocol.State(log.StateEntitySession, from.String(), to.String(), reason)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
}

func (s *Session) absorb(resp wire.Response) {
	ack, ok := resp.(wire.AckSuccess)
	if !ok || ack.Snapshot == nil {
		return
	}
	s.mu.Lock()
	snap := *ack.Snapshot
	s.known = &snap
	s.mu.Unlock()
}

func (s *Session) fault(kind fault.Kind, op string, err error) *fault.Fault {
	f := fault.New(kind, op, err)
	f.DeviceID = s.cfg.DeviceID
	return f
}

func (s *Session) normalize(op string, err error) *fault.Fault {
	f := fault.FromError(op, err)
	if f.DeviceID == "" {
		f.DeviceID = s.cfg.DeviceID
	}
	return f
}

// Enter puts the controller into config mode. An already_in_config_mode
// answer counts as success.
func (s *Session) Enter(ctx context.Context) error {
	epoch, _ := s.currentEpoch()
	return s.ensureConfigMode(ctx, epoch)
}

func (s *Session) ensureConfigMode(ctx context.Context, epoch uint64) error {
	s.enterMu.Lock()
	defer s.enterMu.Unlock()

	s.mu.Lock()
	closed, state := s.closed, s.state
	s.mu.Unlock()
	if closed {
		return s.fault(fault.KindDisconnected, "enter", ErrClosed)
	}
	if state.inConfigMode() {
		return nil
	}

	if !s.setStateIf(epoch, StateEntering) {
		return s.fault(fault.KindDisconnected, "enter", fault.ErrDisconnected)
	}

	resp, err := s.cmd.Do(ctx, wire.EnterConfig{})
	switch {
	case err == nil:
		s.absorb(resp)
	case fault.HasCode(err, wire.ErrorAlreadyInConfigMode):
		s.logger.Debug("controller already in config mode")
	default:
		s.setStateIf(epoch, StateFaulted)
		f := s.normalize("enter", err)
		s.protocol.Error(log.LayerService, "enter", f, nil)
		return f
	}

	if !s.setStateIf(epoch, StateActive) {
		return s.fault(fault.KindDisconnected, "enter", fault.ErrDisconnected)
	}
	return nil
}

// UpdateParameter validates value and schedules it for sending after the
// debounce period. Only validation failures are returned; send failures go
// to OnError.
func (s *Session) UpdateParameter(p wire.ParameterID, value int) error {
	op := "update " + p.String()
	if _, known := wire.ParseParameterID(p.String()); !known {
		return s.validation(op, fmt.Errorf("unknown parameter 0x%02x", uint8(p)))
	}
	lo, hi := p.Range()
	if value < int(lo) || value > int(hi) {
		return s.validation(op, fmt.Errorf("%s must be between %d and %d, got %d", p, lo, hi, value))
	}

	s.mu.Lock()
	if p == wire.ParamBrightness {
		h, sat, v := s.desiredColorLocked()
		if err := s.cfg.Budget.Check(uint8(value), h, sat, v); err != nil {
			s.mu.Unlock()
			return s.validation(op, err)
		}
	}
	s.requested[p] = uint8(value)
	s.mu.Unlock()

	return s.schedule(paramKey(p), wire.UpdateParameter{Parameter: p, Value: value})
}

// UpdateColor validates the HSV colour and schedules it like UpdateParameter.
func (s *Session) UpdateColor(h, sat, v int) error {
	const op = "update color"
	for _, c := range []int{h, sat, v} {
		if c < 0 || c > 255 {
			return s.validation(op, fmt.Errorf("color components must be between 0 and 255, got %d/%d/%d", h, sat, v))
		}
	}

	s.mu.Lock()
	if err := s.cfg.Budget.Check(s.desiredBrightnessLocked(), uint8(h), uint8(sat), uint8(v)); err != nil {
		s.mu.Unlock()
		return s.validation(op, err)
	}
	s.color = &[3]uint8{uint8(h), uint8(sat), uint8(v)}
	s.mu.Unlock()

	return s.schedule(colorKey, wire.UpdateColor{H: h, S: sat, V: v})
}

func (s *Session) desiredColorLocked() (h, sat, v uint8) {
	if s.color != nil {
		return s.color[0], s.color[1], s.color[2]
	}
	if s.known != nil {
		return s.known.Hue, s.known.Saturation, s.known.Value
	}
	return 0, 0, 0
}

func (s *Session) desiredBrightnessLocked() uint8 {
	if b, ok := s.requested[wire.ParamBrightness]; ok {
		return b
	}
	if s.known != nil {
		return s.known.Brightness
	}
	return 0
}

func (s *Session) validation(op string, err error) error {
	f := s.fault(fault.KindValidation, op, err)
	s.logger.Debug("rejected write", "op", op, "error", err)
	s.protocol.Error(log.LayerService, op, f, nil)
	return f
}

// schedule arms or re-arms the debounce timer for key. The latest value wins.
func (s *Session) schedule(key writeKey, cmd wire.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.fault(fault.KindDisconnected, "update "+string(key), ErrClosed)
	}

	s.pending[key] = cmd
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	epoch := s.epoch
	s.timers[key] = time.AfterFunc(s.cfg.Debounce, func() {
		s.fire(key, epoch)
	})
	return nil
}

// fire sends the pending value for key, then any value that arrived while
// it was in flight.
func (s *Session) fire(key writeKey, epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	if s.busy[key] {
		// The in-flight write picks the value up when it completes.
		s.mu.Unlock()
		return
	}
	cmd, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.busy[key] = true
	s.inflight++
	ctx := s.epochCtx
	s.mu.Unlock()

	for {
		if err := s.send(ctx, epoch, key, cmd); err != nil {
			s.report(epoch, err)
		}

		s.mu.Lock()
		next, more := s.pending[key]
		_, armed := s.timers[key]
		if more && !armed && s.epoch == epoch {
			delete(s.pending, key)
			cmd = next
			s.mu.Unlock()
			continue
		}
		if s.epoch == epoch {
			delete(s.busy, key)
		}
		s.inflight--
		s.idle.Broadcast()
		s.mu.Unlock()
		return
	}
}

// send runs the write path for one value: enter if needed, send, and on
// not_in_config_mode re-enter once and resend.
func (s *Session) send(ctx context.Context, epoch uint64, key writeKey, cmd wire.Command) error {
	op := "update " + string(key)

	if err := s.ensureConfigMode(ctx, epoch); err != nil {
		return err
	}

	resp, err := s.cmd.Do(ctx, cmd)
	if fault.HasCode(err, wire.ErrorNotInConfigMode) {
		s.logger.Info("controller left config mode, re-entering", "op", op)
		s.setStateIf(epoch, StateInactive)
		if err := s.ensureConfigMode(ctx, epoch); err != nil {
			return err
		}
		resp, err = s.cmd.Do(ctx, cmd)
	}
	if err != nil {
		return s.normalize(op, err)
	}
	s.absorb(resp)
	return nil
}

func (s *Session) report(epoch uint64, err error) {
	s.mu.Lock()
	stale := s.epoch != epoch
	s.mu.Unlock()

	f := fault.FromError("", err)
	if stale {
		s.logger.Debug("dropping failure from previous link", "error", err)
		return
	}
	s.logger.Warn("write failed", "error", err)
	s.protocol.Error(log.LayerService, f.Op, f, nil)
	if s.cfg.OnError != nil {
		s.cfg.OnError(f)
	}
}

// flush sends every pending value now and waits until no write is in
// flight.
func (s *Session) flush() {
	s.mu.Lock()
	epoch := s.epoch
	keys := make([]writeKey, 0, len(s.timers))
	for k, t := range s.timers {
		if t.Stop() {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()

	for _, k := range keys {
		go s.fire(k, epoch)
	}

	s.mu.Lock()
	for s.epoch == epoch && (s.inflight > 0 || len(s.pending) > 0) {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Commit flushes pending writes and persists the staged configuration.
// A failed commit leaves the session Active.
func (s *Session) Commit(ctx context.Context) error {
	s.flush()

	s.mu.Lock()
	epoch, state := s.epoch, s.state
	s.mu.Unlock()
	if state != StateActive {
		return fmt.Errorf("commit in state %s: %w", state, ErrNotActive)
	}
	if !s.setStateIf(epoch, StateCommitting) {
		return s.fault(fault.KindDisconnected, "commit", fault.ErrDisconnected)
	}

	resp, err := s.cmd.Do(ctx, wire.CommitConfig{})
	// A write that saw not_in_config_mode meanwhile has already moved on.
	s.swapState(epoch, StateCommitting, StateActive)
	if err != nil {
		f := s.normalize("commit", err)
		s.protocol.Error(log.LayerService, "commit", f, nil)
		return f
	}
	s.absorb(resp)
	return nil
}

// Exit flushes pending writes and leaves config mode. The session ends
// Inactive whatever the controller answers.
func (s *Session) Exit(ctx context.Context) error {
	s.flush()

	s.mu.Lock()
	epoch, state := s.epoch, s.state
	s.mu.Unlock()
	if state == StateInactive {
		return nil
	}
	if !s.setStateIf(epoch, StateExiting) {
		return nil
	}

	_, err := s.cmd.Do(ctx, wire.ExitConfig{})
	s.setStateIf(epoch, StateInactive)
	if err != nil && !fault.HasCode(err, wire.ErrorNotInConfigMode) {
		return s.normalize("exit", err)
	}
	return nil
}

// HandleDisconnect discards pending writes unsent, abandons in-flight
// work and returns to Inactive.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	s.epoch++
	s.cancelCtx()
	s.epochCtx, s.cancelCtx = context.WithCancel(context.Background())
	dropped := len(s.pending)
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
	s.pending = make(map[writeKey]wire.Command)
	s.busy = make(map[writeKey]bool)
	s.requested = make(map[wire.ParameterID]uint8)
	s.color = nil
	from := s.state
	s.state = StateInactive
	s.idle.Broadcast()
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Info("discarded pending writes on disconnect", "count", dropped)
	}
	s.notifyState(from, StateInactive, "disconnected")
}

// Close disconnects the session and rejects further writes.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.HandleDisconnect()
}
