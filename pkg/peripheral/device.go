// Package peripheral simulates the LED controller firmware.
//
// A Device consumes encoded command frames and produces encoded response
// frames, enforcing the same rules as the hardware: configuration changes
// only inside config mode, staged values committed to a flash image,
// one-time ownership claim, and an analytics buffer that is resent until
// the host confirms it. It backs the loopback transport in tests and the
// ledctl-sim TCP simulator.
package peripheral

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/persistence"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/power"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Config configures a simulated controller.
type Config struct {
	// ID is the transport address the device answers to.
	ID string

	// Name is the advertised local name.
	Name string

	// LegacyResponses makes acknowledgments use the text protocol.
	LegacyResponses bool

	// Flash holds the committed configuration and owner. Nil uses memory.
	Flash persistence.KV

	// Budget is checked on commit. A zero ceiling disables the check.
	Budget power.Budget

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// DefaultConfig returns a configuration for the reference controller.
func DefaultConfig(id string) Config {
	return Config{
		ID:     id,
		Name:   "LED Controller",
		Budget: power.DefaultBudget(),
	}
}

// DefaultSnapshot is the factory configuration.
var DefaultSnapshot = wire.ConfigSnapshot{
	Brightness: 128,
	Speed:      50,
	Hue:        0,
	Saturation: 0,
	Value:      255,
	Effect:     wire.EffectSolidWhite,
	Power:      0,
}

const (
	flashConfigKey = "flash/config"
	flashOwnerKey  = "flash/owner"
)

// flashImage is the persisted configuration.
type flashImage struct {
	Snapshot wire.ConfigSnapshot `json:"snapshot"`
	AutoOff  uint8               `json:"auto_off"`
}

// Device is a simulated controller. It is safe for concurrent use.
type Device struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex

	inConfig  bool
	committed flashImage
	staged    flashImage

	owner    wire.OwnerToken
	claimed  bool
	verified bool

	sessions    []wire.SessionRecord
	pending     *wire.AnalyticsBatch
	nextBatchID uint32

	flashReads  uint32
	flashWrites uint32
	errorCount  uint16
	lastError   *wire.ErrorCode
	peakMA      uint16
	sumMA       uint64
	samples     uint64

	// One-shot fault injection keyed by opcode.
	injected map[wire.Opcode]wire.ErrorCode
	silenced map[wire.Opcode]int
}

// New creates a device and loads its flash image.
func New(cfg Config) *Device {
	if cfg.Flash == nil {
		cfg.Flash = persistence.NewMemoryKV()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Device{
		cfg:         cfg,
		logger:      logger.With("device", cfg.ID),
		committed:   flashImage{Snapshot: DefaultSnapshot},
		nextBatchID: 1,
		injected:    make(map[wire.Opcode]wire.ErrorCode),
		silenced:    make(map[wire.Opcode]int),
	}
	d.loadFlash()
	return d
}

func (d *Device) loadFlash() {
	if data, err := d.cfg.Flash.Get(flashConfigKey); err == nil {
		var img flashImage
		if err := json.Unmarshal(data, &img); err == nil {
			d.committed = img
		}
		d.flashReads++
	}
	if data, err := d.cfg.Flash.Get(flashOwnerKey); err == nil {
		var tok wire.OwnerToken
		if err := json.Unmarshal(data, &tok); err == nil && !tok.IsZero() {
			d.owner = tok
			d.claimed = true
		}
		d.flashReads++
	}
}

// ID returns the device address.
func (d *Device) ID() string {
	return d.cfg.ID
}

// Name returns the advertised name.
func (d *Device) Name() string {
	return d.cfg.Name
}

// Handle processes one command frame and returns the response frame.
// A nil return means the device stays silent.
func (d *Device) Handle(frame []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd, err := wire.DecodeCommand(frame)
	if err != nil {
		d.logger.Debug("rejecting frame", "error", err)
		return d.encode(d.fail(wire.ErrorInvalidCommand, ""))
	}

	op := cmd.Opcode()
	if n := d.silenced[op]; n > 0 {
		d.silenced[op] = n - 1
		d.logger.Debug("dropping command", "opcode", op)
		return nil
	}
	if code, ok := d.injected[op]; ok {
		delete(d.injected, op)
		return d.encode(d.fail(code, ""))
	}

	resp := d.dispatch(cmd)
	d.logger.Debug("handled command", "opcode", op, "marker", resp.Marker())
	return d.encode(resp)
}

func (d *Device) encode(resp wire.Response) []byte {
	if d.cfg.LegacyResponses {
		if line := wire.EncodeLegacy(resp); line != "" {
			return []byte(line)
		}
	}
	return wire.EncodeResponse(resp)
}

func (d *Device) fail(code wire.ErrorCode, msg string) wire.Response {
	d.errorCount++
	c := code
	d.lastError = &c
	return wire.AckError{Envelope: wire.NewErrorEnvelope(code, msg)}
}

func (d *Device) ack() wire.Response {
	snap := d.committed.Snapshot
	if d.inConfig {
		snap = d.staged.Snapshot
	}
	return wire.AckSuccess{Snapshot: &snap}
}

func (d *Device) dispatch(cmd wire.Command) wire.Response {
	switch c := cmd.(type) {
	case wire.EnterConfig:
		if d.inConfig {
			return d.fail(wire.ErrorAlreadyInConfigMode, "")
		}
		d.inConfig = true
		d.staged = d.committed
		return d.ack()

	case wire.ExitConfig:
		if !d.inConfig {
			return d.fail(wire.ErrorNotInConfigMode, "")
		}
		d.inConfig = false
		d.staged = flashImage{}
		return d.ack()

	case wire.CommitConfig:
		if !d.inConfig {
			return d.fail(wire.ErrorNotInConfigMode, "")
		}
		s := d.staged.Snapshot
		if err := d.cfg.Budget.Check(s.Brightness, s.Hue, s.Saturation, s.Value); err != nil {
			return d.fail(wire.ErrorValidationFailed, err.Error())
		}
		if err := d.writeFlash(flashConfigKey, d.staged); err != nil {
			return d.fail(wire.ErrorFlashWriteFailed, "")
		}
		d.committed = d.staged
		d.sample()
		return d.ack()

	case wire.UpdateParameter:
		if !d.inConfig {
			return d.fail(wire.ErrorNotInConfigMode, "")
		}
		return d.updateParameter(c)

	case wire.UpdateColor:
		if !d.inConfig {
			return d.fail(wire.ErrorNotInConfigMode, "")
		}
		d.staged.Snapshot.Hue = wire.Clamp(c.H)
		d.staged.Snapshot.Saturation = wire.Clamp(c.S)
		d.staged.Snapshot.Value = wire.Clamp(c.V)
		return d.ack()

	case wire.ClaimDevice:
		if d.claimed && d.owner != c.OwnerToken {
			return d.fail(wire.ErrorAlreadyClaimed, "")
		}
		if !d.claimed {
			if err := d.writeFlash(flashOwnerKey, c.OwnerToken); err != nil {
				return d.fail(wire.ErrorFlashWriteFailed, "")
			}
			d.owner = c.OwnerToken
			d.claimed = true
		}
		d.verified = true
		return wire.AckSuccess{}

	case wire.VerifyOwnership:
		if d.claimed && d.owner != c.OwnerToken {
			d.verified = false
			return d.fail(wire.ErrorNotOwner, "")
		}
		d.verified = true
		return wire.AckSuccess{}

	case wire.UnclaimDevice:
		if !d.claimed {
			return wire.AckSuccess{}
		}
		if !d.verified {
			return d.fail(wire.ErrorNotOwner, "")
		}
		if err := d.cfg.Flash.Delete(flashOwnerKey); err != nil {
			return d.fail(wire.ErrorFlashWriteFailed, "")
		}
		d.flashWrites++
		d.owner = wire.OwnerToken{}
		d.claimed = false
		return wire.AckSuccess{}

	case wire.RequestAnalytics:
		if d.pending == nil {
			d.pending = d.buildBatch()
		}
		return d.pending

	case wire.ConfirmAnalytics:
		if d.pending == nil || d.pending.BatchID != c.BatchID {
			return d.fail(wire.ErrorInvalidParameter, "")
		}
		d.sessions = d.sessions[len(d.pending.Sessions):]
		d.pending = nil
		return wire.AckSuccess{}

	default:
		return d.fail(wire.ErrorInvalidCommand, "")
	}
}

func (d *Device) updateParameter(c wire.UpdateParameter) wire.Response {
	if c.Value < 0 || c.Value > 255 {
		return d.fail(wire.ErrorOutOfRange, "")
	}
	v := uint8(c.Value)
	lo, hi := c.Parameter.Range()
	if v < lo || v > hi {
		return d.fail(wire.ErrorOutOfRange, "")
	}

	s := &d.staged.Snapshot
	switch c.Parameter {
	case wire.ParamBrightness:
		s.Brightness = v
	case wire.ParamSpeed:
		s.Speed = v
	case wire.ParamEffect:
		s.Effect = v
	case wire.ParamPowerMode:
		s.Power = v
	case wire.ParamAutoOff:
		d.staged.AutoOff = v
	default:
		return d.fail(wire.ErrorInvalidParameter, "")
	}
	return d.ack()
}

func (d *Device) writeFlash(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := d.cfg.Flash.Set(key, data); err != nil {
		d.logger.Warn("flash write failed", "key", key, "error", err)
		return err
	}
	d.flashWrites++
	return nil
}

// sample records the draw of the committed configuration.
func (d *Device) sample() {
	s := d.committed.Snapshot
	ma := uint16(d.cfg.Budget.Estimate(s.Brightness, s.Hue, s.Saturation, s.Value))
	if ma > d.peakMA {
		d.peakMA = ma
	}
	d.sumMA += uint64(ma)
	d.samples++
}

func (d *Device) buildBatch() *wire.AnalyticsBatch {
	n := len(d.sessions)
	if n > wire.MaxSessionsPerBatch {
		n = wire.MaxSessionsPerBatch
	}
	b := &wire.AnalyticsBatch{
		BatchID:      d.nextBatchID,
		SessionCount: n,
		Sessions:     append([]wire.SessionRecord(nil), d.sessions[:n]...),
		FlashReads:   d.flashReads,
		FlashWrites:  d.flashWrites,
		ErrorCount:   d.errorCount,
	}
	d.nextBatchID++
	if d.lastError != nil {
		c := *d.lastError
		b.LastErrorCode = &c
	}
	if d.samples > 0 {
		avg := uint16(d.sumMA / d.samples)
		peak := d.peakMA
		b.AveragePowerConsumption = &avg
		b.PeakPowerConsumption = &peak
	}
	return b
}

// LinkLost resets per-link state: config mode ends, staged values are
// discarded and ownership must be verified again.
func (d *Device) LinkLost() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inConfig = false
	d.staged = flashImage{}
	d.verified = false
}

// ExpireConfigMode leaves config mode as if the firmware's idle timeout fired.
func (d *Device) ExpireConfigMode() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inConfig = false
	d.staged = flashImage{}
}

// RecordSession buffers one usage session for the next analytics batch.
func (d *Device) RecordSession(start, end time.Time, on, off uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = append(d.sessions, wire.SessionRecord{
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		TurnedOn:  on,
		TurnedOff: off,
	})
}

// Inject makes the next command with opcode op fail with code.
func (d *Device) Inject(op wire.Opcode, code wire.ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.injected[op] = code
}

// Silence makes the device ignore the next n commands with opcode op.
func (d *Device) Silence(op wire.Opcode, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silenced[op] += n
}

// State is a point-in-time view of the device for tests and the simulator UI.
type State struct {
	InConfigMode   bool
	Committed      wire.ConfigSnapshot
	Staged         wire.ConfigSnapshot
	AutoOff        uint8
	Claimed        bool
	Owner          wire.OwnerToken
	BufferedCount  int
	PendingBatchID uint32
	FlashWrites    uint32
}

// State returns a copy of the device state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := State{
		InConfigMode:  d.inConfig,
		Committed:     d.committed.Snapshot,
		Staged:        d.staged.Snapshot,
		AutoOff:       d.committed.AutoOff,
		Claimed:       d.claimed,
		Owner:         d.owner,
		BufferedCount: len(d.sessions),
		FlashWrites:   d.flashWrites,
	}
	if d.pending != nil {
		st.PendingBatchID = d.pending.BatchID
	}
	return st
}
