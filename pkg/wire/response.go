package wire

import "time"

// SnapshotSize is the width of the config snapshot trailing an ack-success.
const SnapshotSize = 7

// Response is a peripheral-to-host frame. Implementations are AckSuccess,
// AckError and *AnalyticsBatch.
type Response interface {
	// Marker returns the frame discriminant.
	Marker() Marker
}

// ConfigSnapshot is the device configuration reported with an ack-success.
type ConfigSnapshot struct {
	Brightness uint8
	Speed      uint8
	Hue        uint8
	Saturation uint8
	Value      uint8
	Effect     uint8
	Power      uint8
}

// AckSuccess acknowledges the outstanding command.
type AckSuccess struct {
	// Snapshot is set when the peripheral appended its configuration.
	Snapshot *ConfigSnapshot

	// Message is only set by the legacy text protocol.
	Message string
}

// AckError rejects the outstanding command.
type AckError struct {
	Envelope ErrorEnvelope
}

// SessionRecord is one usage session buffered by the peripheral.
type SessionRecord struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	TurnedOn  uint8
	TurnedOff uint8
}

// AnalyticsBatch is a set of usage sessions plus device counters.
type AnalyticsBatch struct {
	BatchID uint32

	// SessionCount is the count advertised in the header. It may exceed
	// len(Sessions) if the frame was truncated.
	SessionCount int
	Sessions     []SessionRecord

	FlashReads  uint32
	FlashWrites uint32
	ErrorCount  uint16

	// Optional fields; nil when the peripheral did not report them.
	LastErrorCode           *ErrorCode
	AveragePowerConsumption *uint16 // mA
	PeakPowerConsumption    *uint16 // mA
}

func (AckSuccess) Marker() Marker      { return MarkerAckSuccess }
func (AckError) Marker() Marker        { return MarkerAckError }
func (*AnalyticsBatch) Marker() Marker { return MarkerAnalytics }
