package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Kind distinguishes per-session events from the batch summary.
type Kind uint8

const (
	// KindSession is one usage session reported by the controller.
	KindSession Kind = iota

	// KindSummary carries the device counters of a batch.
	KindSummary
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Event is one telemetry record handed to a Sink.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	DeviceID  string    `json:"device_id"`
	BatchID   uint32    `json:"batch_id"`
	Timestamp time.Time `json:"timestamp"`

	Session *SessionData `json:"session,omitempty"`
	Summary *SummaryData `json:"summary,omitempty"`
}

// SessionData describes one usage session.
type SessionData struct {
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Duration  time.Duration `json:"duration"`
	TurnedOn  uint8         `json:"turned_on"`
	TurnedOff uint8         `json:"turned_off"`
}

// SummaryData holds the counters that accompany a batch.
type SummaryData struct {
	// SessionCount is the count the controller advertised.
	SessionCount int `json:"session_count"`

	// Received is the number of session records actually decoded.
	Received int `json:"received"`

	FlashReads    uint32 `json:"flash_reads"`
	FlashWrites   uint32 `json:"flash_writes"`
	ErrorCount    uint16 `json:"error_count"`
	LastErrorCode string `json:"last_error_code,omitempty"`

	AveragePowerMA *uint16 `json:"average_power_ma,omitempty"`
	PeakPowerMA    *uint16 `json:"peak_power_ma,omitempty"`
}

// sessionEvent converts one record. The end may not precede the start.
func sessionEvent(deviceID string, batchID uint32, rec wire.SessionRecord, now time.Time) (Event, error) {
	if rec.EndTime.Before(rec.StartTime) {
		return Event{}, ErrInvalidRecord
	}
	d := rec.Duration
	if d == 0 {
		d = rec.EndTime.Sub(rec.StartTime)
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindSession,
		DeviceID:  deviceID,
		BatchID:   batchID,
		Timestamp: now,
		Session: &SessionData{
			Start:     rec.StartTime,
			End:       rec.EndTime,
			Duration:  d,
			TurnedOn:  rec.TurnedOn,
			TurnedOff: rec.TurnedOff,
		},
	}, nil
}

func summaryEvent(deviceID string, b *wire.AnalyticsBatch, now time.Time) Event {
	s := &SummaryData{
		SessionCount:   b.SessionCount,
		Received:       len(b.Sessions),
		FlashReads:     b.FlashReads,
		FlashWrites:    b.FlashWrites,
		ErrorCount:     b.ErrorCount,
		AveragePowerMA: b.AveragePowerConsumption,
		PeakPowerMA:    b.PeakPowerConsumption,
	}
	if b.LastErrorCode != nil {
		s.LastErrorCode = b.LastErrorCode.String()
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindSummary,
		DeviceID:  deviceID,
		BatchID:   b.BatchID,
		Timestamp: now,
		Summary:   s,
	}
}
