package wire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// OwnerTokenSize is the fixed width of an owner token on the wire.
const OwnerTokenSize = 16

// OwnerToken identifies the owning user towards the peripheral.
type OwnerToken [OwnerTokenSize]byte

// String returns the token as hex.
func (t OwnerToken) String() string {
	return hex.EncodeToString(t[:])
}

// IsZero returns true if the token is unset.
func (t OwnerToken) IsZero() bool {
	return t == OwnerToken{}
}

// Command is a host-to-peripheral command. The set of implementations is
// closed; use a type switch to inspect a decoded command.
type Command interface {
	// Opcode returns the command's opcode byte.
	Opcode() Opcode

	appendPayload(dst []byte) []byte
}

// EnterConfig enters configuration mode.
type EnterConfig struct{}

// ExitConfig leaves configuration mode.
type ExitConfig struct{}

// CommitConfig persists the staged configuration.
type CommitConfig struct{}

// ClaimDevice sets the device owner.
type ClaimDevice struct {
	OwnerToken OwnerToken
}

// VerifyOwnership proves the caller owns the device.
type VerifyOwnership struct {
	OwnerToken OwnerToken
}

// UnclaimDevice removes the device owner.
type UnclaimDevice struct{}

// UpdateParameter stages a single parameter. Value is clamped to 0-255.
type UpdateParameter struct {
	Parameter ParameterID
	Value     int
}

// UpdateColor stages the HSV colour. Each component is clamped to 0-255.
type UpdateColor struct {
	H, S, V int
}

// RequestAnalytics asks for the buffered analytics batch.
type RequestAnalytics struct{}

// ConfirmAnalytics acknowledges a received analytics batch.
type ConfirmAnalytics struct {
	BatchID uint32
}

func (EnterConfig) Opcode() Opcode      { return OpEnterConfig }
func (ExitConfig) Opcode() Opcode       { return OpExitConfig }
func (CommitConfig) Opcode() Opcode     { return OpCommitConfig }
func (ClaimDevice) Opcode() Opcode      { return OpClaimDevice }
func (VerifyOwnership) Opcode() Opcode  { return OpVerifyOwnership }
func (UnclaimDevice) Opcode() Opcode    { return OpUnclaimDevice }
func (UpdateParameter) Opcode() Opcode  { return OpUpdateParameter }
func (UpdateColor) Opcode() Opcode      { return OpUpdateColor }
func (RequestAnalytics) Opcode() Opcode { return OpRequestAnalytics }
func (ConfirmAnalytics) Opcode() Opcode { return OpConfirmAnalytics }

func (EnterConfig) appendPayload(dst []byte) []byte      { return dst }
func (ExitConfig) appendPayload(dst []byte) []byte       { return dst }
func (CommitConfig) appendPayload(dst []byte) []byte     { return dst }
func (UnclaimDevice) appendPayload(dst []byte) []byte    { return dst }
func (RequestAnalytics) appendPayload(dst []byte) []byte { return dst }

func (c ClaimDevice) appendPayload(dst []byte) []byte {
	return append(dst, c.OwnerToken[:]...)
}

func (c VerifyOwnership) appendPayload(dst []byte) []byte {
	return append(dst, c.OwnerToken[:]...)
}

func (c UpdateParameter) appendPayload(dst []byte) []byte {
	return append(dst, byte(c.Parameter), Clamp(c.Value))
}

func (c UpdateColor) appendPayload(dst []byte) []byte {
	return append(dst, Clamp(c.H), Clamp(c.S), Clamp(c.V))
}

func (c ConfirmAnalytics) appendPayload(dst []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, c.BatchID)
}

// Clamp limits v to the byte range [0, 255].
func Clamp(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// payloadSize returns the fixed payload width for an opcode, or -1 if the
// opcode is unknown.
func payloadSize(op Opcode) int {
	switch op {
	case OpEnterConfig, OpExitConfig, OpCommitConfig, OpUnclaimDevice, OpRequestAnalytics:
		return 0
	case OpUpdateParameter:
		return 2
	case OpUpdateColor:
		return 3
	case OpConfirmAnalytics:
		return 4
	case OpClaimDevice, OpVerifyOwnership:
		return OwnerTokenSize
	default:
		return -1
	}
}

// Encode encodes a command to its wire bytes. It never fails: out-of-range
// numeric fields are clamped.
func Encode(cmd Command) []byte {
	op := cmd.Opcode()
	buf := make([]byte, 0, 1+payloadSize(op))
	buf = append(buf, byte(op))
	return cmd.appendPayload(buf)
}

// DecodeCommand decodes a host-to-peripheral frame. It is used by the
// peripheral simulator and by tests.
func DecodeCommand(data []byte) (Command, error) {
	if len(data) == 0 {
		return nil, &FrameError{Err: ErrMalformedFrame, Reason: "empty frame"}
	}

	op := Opcode(data[0])
	size := payloadSize(op)
	if size < 0 {
		return nil, &FrameError{Err: ErrUnknownFrame, Reason: fmt.Sprintf("opcode 0x%02x", data[0]), Frame: data}
	}
	if len(data)-1 != size {
		return nil, &FrameError{
			Err:    ErrMalformedFrame,
			Reason: fmt.Sprintf("%s expects %d payload bytes, got %d", op, size, len(data)-1),
			Frame:  data,
		}
	}

	payload := data[1:]
	switch op {
	case OpEnterConfig:
		return EnterConfig{}, nil
	case OpExitConfig:
		return ExitConfig{}, nil
	case OpCommitConfig:
		return CommitConfig{}, nil
	case OpUnclaimDevice:
		return UnclaimDevice{}, nil
	case OpRequestAnalytics:
		return RequestAnalytics{}, nil
	case OpUpdateParameter:
		return UpdateParameter{Parameter: ParameterID(payload[0]), Value: int(payload[1])}, nil
	case OpUpdateColor:
		return UpdateColor{H: int(payload[0]), S: int(payload[1]), V: int(payload[2])}, nil
	case OpConfirmAnalytics:
		return ConfirmAnalytics{BatchID: binary.BigEndian.Uint32(payload)}, nil
	case OpClaimDevice:
		var c ClaimDevice
		copy(c.OwnerToken[:], payload)
		return c, nil
	default: // OpVerifyOwnership
		var c VerifyOwnership
		copy(c.OwnerToken[:], payload)
		return c, nil
	}
}
