package wire

// Opcode is the first byte of a host-to-peripheral frame.
type Opcode uint8

const (
	// OpUpdateParameter stages a single parameter value (+id, +value).
	OpUpdateParameter Opcode = 0x02

	// OpUpdateColor stages the HSV colour (+h, +s, +v).
	OpUpdateColor Opcode = 0x03

	// OpEnterConfig enters configuration mode.
	OpEnterConfig Opcode = 0x10

	// OpExitConfig leaves configuration mode.
	OpExitConfig Opcode = 0x11

	// OpCommitConfig persists the staged configuration to flash.
	OpCommitConfig Opcode = 0x12

	// OpClaimDevice sets the device owner (one-time).
	OpClaimDevice Opcode = 0x13

	// OpVerifyOwnership proves the caller is the owner (per connection).
	OpVerifyOwnership Opcode = 0x14

	// OpUnclaimDevice removes the device owner.
	OpUnclaimDevice Opcode = 0x15

	// OpRequestAnalytics asks for the buffered analytics batch.
	OpRequestAnalytics Opcode = 0x20

	// OpConfirmAnalytics acknowledges receipt of a batch (+4 batch id).
	OpConfirmAnalytics Opcode = 0x21
)

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpUpdateParameter:
		return "UPDATE_PARAMETER"
	case OpUpdateColor:
		return "UPDATE_COLOR"
	case OpEnterConfig:
		return "ENTER_CONFIG"
	case OpExitConfig:
		return "EXIT_CONFIG"
	case OpCommitConfig:
		return "COMMIT_CONFIG"
	case OpClaimDevice:
		return "CLAIM_DEVICE"
	case OpVerifyOwnership:
		return "VERIFY_OWNERSHIP"
	case OpUnclaimDevice:
		return "UNCLAIM_DEVICE"
	case OpRequestAnalytics:
		return "REQUEST_ANALYTICS"
	case OpConfirmAnalytics:
		return "CONFIRM_ANALYTICS"
	default:
		return "UNKNOWN"
	}
}

// Marker is the first byte of a peripheral-to-host frame.
type Marker uint8

const (
	// MarkerAckSuccess acknowledges the outstanding command.
	MarkerAckSuccess Marker = 0x90

	// MarkerAckError rejects the outstanding command with an error code.
	MarkerAckError Marker = 0x91

	// MarkerAnalytics carries an analytics batch.
	MarkerAnalytics Marker = 0xA0
)

// String returns the marker name.
func (m Marker) String() string {
	switch m {
	case MarkerAckSuccess:
		return "ACK_SUCCESS"
	case MarkerAckError:
		return "ACK_ERROR"
	case MarkerAnalytics:
		return "ANALYTICS_BATCH"
	default:
		return "UNKNOWN"
	}
}

// ParameterID identifies a single configuration parameter.
type ParameterID uint8

const (
	// ParamBrightness is the global brightness (0-255).
	ParamBrightness ParameterID = 0x01

	// ParamSpeed is the animation speed (0-100).
	ParamSpeed ParameterID = 0x02

	// ParamEffect is the active pattern (0-9).
	ParamEffect ParameterID = 0x03

	// ParamPowerMode selects normal, low power or eco (0-2).
	ParamPowerMode ParameterID = 0x04

	// ParamAutoOff is the auto-off timeout in minutes, 0 disables it.
	ParamAutoOff ParameterID = 0x05
)

// String returns the parameter name.
func (p ParameterID) String() string {
	switch p {
	case ParamBrightness:
		return "brightness"
	case ParamSpeed:
		return "speed"
	case ParamEffect:
		return "effect"
	case ParamPowerMode:
		return "power_mode"
	case ParamAutoOff:
		return "auto_off"
	default:
		return "unknown"
	}
}

// Range returns the inclusive range the firmware accepts for the parameter.
// Unknown parameters accept the full byte range.
func (p ParameterID) Range() (min, max uint8) {
	switch p {
	case ParamSpeed:
		return 0, 100
	case ParamEffect:
		return 0, EffectCount - 1
	case ParamPowerMode:
		return 0, 2
	default:
		return 0, 255
	}
}

// ParseParameterID maps a parameter name to its id.
func ParseParameterID(name string) (ParameterID, bool) {
	for _, p := range Parameters() {
		if p.String() == name {
			return p, true
		}
	}
	return 0, false
}

// Parameters lists every known parameter id.
func Parameters() []ParameterID {
	return []ParameterID{ParamBrightness, ParamSpeed, ParamEffect, ParamPowerMode, ParamAutoOff}
}

// Effect patterns known to the firmware.
const (
	EffectOff uint8 = iota
	EffectSolidWhite
	EffectRainbow
	EffectPulse
	EffectFade
	EffectChase
	EffectTwinkle
	EffectWave
	EffectBreath
	EffectStrobe

	// EffectCount is the number of patterns the firmware ships with.
	EffectCount
)
