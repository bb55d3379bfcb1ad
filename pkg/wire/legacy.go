package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Legacy text protocol prefixes.
const (
	legacyErrorPrefix   = "ERROR:"
	legacySuccessPrefix = "SUCCESS:"
)

func isLegacy(data []byte) bool {
	return bytes.HasPrefix(data, []byte(legacyErrorPrefix)) ||
		bytes.HasPrefix(data, []byte(legacySuccessPrefix))
}

// DecodeLegacy parses a line of the deprecated text protocol:
//
//	ERROR:<decimal code>:<message>
//	SUCCESS:<message>
//
// Trailing CR/LF is ignored. The result has the same shape as a binary
// decode so downstream code does not care which firmware answered.
func DecodeLegacy(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")

	switch {
	case strings.HasPrefix(line, legacySuccessPrefix):
		return AckSuccess{Message: strings.TrimPrefix(line, legacySuccessPrefix)}, nil

	case strings.HasPrefix(line, legacyErrorPrefix):
		rest := strings.TrimPrefix(line, legacyErrorPrefix)
		codeText, msg, found := strings.Cut(rest, ":")
		if !found || codeText == "" {
			return nil, &FrameError{Err: ErrMalformedFrame, Reason: "legacy error without code", Frame: []byte(line)}
		}
		n, err := strconv.ParseUint(codeText, 10, 32)
		if err != nil {
			return nil, &FrameError{
				Err:    ErrMalformedFrame,
				Reason: fmt.Sprintf("legacy error code %q", codeText),
				Frame:  []byte(line),
			}
		}
		code := ErrorUnknown
		if n <= 0xff {
			code = ErrorCodeFromByte(byte(n))
		}
		return AckError{Envelope: NewErrorEnvelope(code, msg)}, nil

	default:
		return nil, &FrameError{Err: ErrUnknownFrame, Reason: "not a legacy line", Frame: []byte(line)}
	}
}

// EncodeLegacy renders an acknowledgment in the legacy text protocol.
// Analytics batches have no legacy form and return an empty string.
func EncodeLegacy(resp Response) string {
	switch r := resp.(type) {
	case AckSuccess:
		return legacySuccessPrefix + r.Message
	case AckError:
		return fmt.Sprintf("%s%d:%s", legacyErrorPrefix, uint8(r.Envelope.Code), r.Envelope.Message)
	default:
		return ""
	}
}
