package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Analytics frame layout.
const (
	// AnalyticsHeaderSize is the fixed header width including the marker.
	AnalyticsHeaderSize = 22

	// SessionRecordSize is the fixed width of one session record.
	SessionRecordSize = 14

	// MaxSessionsPerBatch is the largest count the header can advertise.
	MaxSessionsPerBatch = 255
)

const (
	analyticsFlagAverage = 1 << 0
	analyticsFlagPeak    = 1 << 1
)

// Decode errors.
var (
	// ErrMalformedFrame indicates a known frame type with an invalid layout.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownFrame indicates an unrecognized frame discriminant.
	ErrUnknownFrame = errors.New("unknown frame")
)

// FrameError describes why a frame could not be decoded.
type FrameError struct {
	// Err is ErrMalformedFrame or ErrUnknownFrame.
	Err error

	// Reason is a short human-readable explanation.
	Reason string

	// Frame holds the offending bytes.
	Frame []byte
}

// Error implements the error interface.
func (e *FrameError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

// Unwrap returns the sentinel error.
func (e *FrameError) Unwrap() error {
	return e.Err
}

// Decode decodes a peripheral-to-host frame.
//
// The first byte discriminates the frame. Binary markers are checked first,
// then the legacy text prefixes. Anything else yields ErrUnknownFrame.
func Decode(data []byte) (Response, error) {
	if len(data) == 0 {
		return nil, &FrameError{Err: ErrMalformedFrame, Reason: "empty frame"}
	}

	switch Marker(data[0]) {
	case MarkerAckSuccess:
		return decodeAckSuccess(data)
	case MarkerAckError:
		return decodeAckError(data)
	case MarkerAnalytics:
		return decodeAnalytics(data)
	}

	if isLegacy(data) {
		return DecodeLegacy(string(data))
	}

	return nil, &FrameError{
		Err:    ErrUnknownFrame,
		Reason: fmt.Sprintf("discriminant 0x%02x", data[0]),
		Frame:  data,
	}
}

func decodeAckSuccess(data []byte) (Response, error) {
	switch len(data) {
	case 1:
		return AckSuccess{}, nil
	case 1 + SnapshotSize:
		s := data[1:]
		return AckSuccess{Snapshot: &ConfigSnapshot{
			Brightness: s[0],
			Speed:      s[1],
			Hue:        s[2],
			Saturation: s[3],
			Value:      s[4],
			Effect:     s[5],
			Power:      s[6],
		}}, nil
	default:
		return nil, &FrameError{
			Err:    ErrMalformedFrame,
			Reason: fmt.Sprintf("ack-success length %d", len(data)),
			Frame:  data,
		}
	}
}

func decodeAckError(data []byte) (Response, error) {
	if len(data) < 2 {
		return nil, &FrameError{Err: ErrMalformedFrame, Reason: "ack-error without code", Frame: data}
	}

	msg := ""
	if len(data) > 2 && utf8.Valid(data[2:]) {
		msg = string(data[2:])
	}
	return AckError{Envelope: NewErrorEnvelope(ErrorCodeFromByte(data[1]), msg)}, nil
}

func decodeAnalytics(data []byte) (Response, error) {
	if len(data) < AnalyticsHeaderSize {
		return nil, &FrameError{
			Err:    ErrMalformedFrame,
			Reason: fmt.Sprintf("analytics header needs %d bytes, got %d", AnalyticsHeaderSize, len(data)),
			Frame:  data,
		}
	}

	b := &AnalyticsBatch{
		BatchID:      binary.BigEndian.Uint32(data[1:5]),
		SessionCount: int(data[5]),
		FlashReads:   binary.BigEndian.Uint32(data[6:10]),
		FlashWrites:  binary.BigEndian.Uint32(data[10:14]),
		ErrorCount:   binary.BigEndian.Uint16(data[14:16]),
	}
	if data[16] != 0 {
		code := ErrorCodeFromByte(data[16])
		b.LastErrorCode = &code
	}
	flags := data[17]
	if flags&analyticsFlagAverage != 0 {
		v := binary.BigEndian.Uint16(data[18:20])
		b.AveragePowerConsumption = &v
	}
	if flags&analyticsFlagPeak != 0 {
		v := binary.BigEndian.Uint16(data[20:22])
		b.PeakPowerConsumption = &v
	}

	// Never trust the advertised count beyond the bytes actually present.
	n := b.SessionCount
	if avail := (len(data) - AnalyticsHeaderSize) / SessionRecordSize; n > avail {
		n = avail
	}

	b.Sessions = make([]SessionRecord, 0, n)
	for i := 0; i < n; i++ {
		r := data[AnalyticsHeaderSize+i*SessionRecordSize:]
		b.Sessions = append(b.Sessions, SessionRecord{
			StartTime: time.Unix(int64(binary.BigEndian.Uint32(r[0:4])), 0).UTC(),
			EndTime:   time.Unix(int64(binary.BigEndian.Uint32(r[4:8])), 0).UTC(),
			Duration:  time.Duration(binary.BigEndian.Uint32(r[8:12])) * time.Second,
			TurnedOn:  r[12],
			TurnedOff: r[13],
		})
	}

	return b, nil
}

// EncodeResponse encodes a response frame. It is used by the peripheral
// simulator; the host only decodes responses.
func EncodeResponse(resp Response) []byte {
	switch r := resp.(type) {
	case AckSuccess:
		if r.Snapshot == nil {
			return []byte{byte(MarkerAckSuccess)}
		}
		s := r.Snapshot
		return []byte{byte(MarkerAckSuccess), s.Brightness, s.Speed, s.Hue, s.Saturation, s.Value, s.Effect, s.Power}

	case AckError:
		code := r.Envelope.Code
		buf := make([]byte, 0, 2+len(r.Envelope.Message))
		buf = append(buf, byte(MarkerAckError), byte(code))
		return append(buf, r.Envelope.Message...)

	case *AnalyticsBatch:
		return encodeAnalytics(r)

	default:
		return nil
	}
}

func encodeAnalytics(b *AnalyticsBatch) []byte {
	sessions := b.Sessions
	if len(sessions) > MaxSessionsPerBatch {
		sessions = sessions[:MaxSessionsPerBatch]
	}

	buf := make([]byte, AnalyticsHeaderSize, AnalyticsHeaderSize+len(sessions)*SessionRecordSize)
	buf[0] = byte(MarkerAnalytics)
	binary.BigEndian.PutUint32(buf[1:5], b.BatchID)
	buf[5] = byte(len(sessions))
	binary.BigEndian.PutUint32(buf[6:10], b.FlashReads)
	binary.BigEndian.PutUint32(buf[10:14], b.FlashWrites)
	binary.BigEndian.PutUint16(buf[14:16], b.ErrorCount)
	if b.LastErrorCode != nil {
		buf[16] = byte(*b.LastErrorCode)
	}
	var flags byte
	if b.AveragePowerConsumption != nil {
		flags |= analyticsFlagAverage
		binary.BigEndian.PutUint16(buf[18:20], *b.AveragePowerConsumption)
	}
	if b.PeakPowerConsumption != nil {
		flags |= analyticsFlagPeak
		binary.BigEndian.PutUint16(buf[20:22], *b.PeakPowerConsumption)
	}
	buf[17] = flags

	for _, s := range sessions {
		var rec [SessionRecordSize]byte
		binary.BigEndian.PutUint32(rec[0:4], uint32(s.StartTime.Unix()))
		binary.BigEndian.PutUint32(rec[4:8], uint32(s.EndTime.Unix()))
		binary.BigEndian.PutUint32(rec[8:12], uint32(s.Duration/time.Second))
		rec[12] = s.TurnedOn
		rec[13] = s.TurnedOff
		buf = append(buf, rec[:]...)
	}
	return buf
}
