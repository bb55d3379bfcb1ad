package log

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Capture files start with a short header followed by one CBOR record per
// event. The header lets readers reject files that are not captures before
// they decode garbage.
const (
	captureMagic   = "LLOG"
	captureVersion = 1
	headerSize     = len(captureMagic) + 1
)

var (
	// ErrNotCapture is returned for files that lack the capture header.
	ErrNotCapture = errors.New("log: not a capture file")

	// ErrCaptureVersion is returned for captures written by a newer format.
	ErrCaptureVersion = errors.New("log: unsupported capture version")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decoder: %v", err))
	}
}

// EncodeEvent returns the CBOR record for one event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent parses one CBOR record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

func captureHeader() []byte {
	return append([]byte(captureMagic), captureVersion)
}

// readHeader consumes and checks the capture header.
func readHeader(r io.Reader) error {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrNotCapture
		}
		return err
	}
	if !bytes.Equal(hdr[:len(captureMagic)], []byte(captureMagic)) {
		return ErrNotCapture
	}
	if v := hdr[len(captureMagic)]; v != captureVersion {
		return fmt.Errorf("%w: %d", ErrCaptureVersion, v)
	}
	return nil
}
