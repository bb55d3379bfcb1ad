package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
)

// A byte stream carries radio writes and notifications as frames: a
// big-endian uint16 payload length, then the payload. One frame stands for
// one GATT write or one notification.
const (
	frameHeader = 2

	// MaxFrameSize fits the largest analytics batch with room to spare.
	MaxFrameSize = 4096
)

var (
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFrameEmpty     = errors.New("frame is empty")
	ErrFrameTruncated = errors.New("frame truncated")
)

// Framer turns a byte stream into frames. Writes may come from any
// goroutine; reads must come from one.
type Framer struct {
	r   *bufio.Reader
	w   io.Writer
	wmu sync.Mutex
	log *log.Emitter
}

// NewFramer wraps rw. Frames in both directions are reported to e, which
// may be nil.
func NewFramer(rw io.ReadWriter, e *log.Emitter) *Framer {
	return &Framer{r: bufio.NewReaderSize(rw, frameHeader+MaxFrameSize), w: rw, log: e}
}

func checkSize(n int) error {
	switch {
	case n == 0:
		return ErrFrameEmpty
	case n > MaxFrameSize:
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, MaxFrameSize)
	}
	return nil
}

// WriteFrame sends data as one frame with a single Write.
func (f *Framer) WriteFrame(data []byte) error {
	if err := checkSize(len(data)); err != nil {
		return err
	}
	buf := binary.BigEndian.AppendUint16(make([]byte, 0, frameHeader+len(data)), uint16(len(data)))
	buf = append(buf, data...)

	f.wmu.Lock()
	_, err := f.w.Write(buf)
	f.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	f.log.Frame(log.DirectionOut, data)
	return nil
}

// ReadFrame returns the next payload. io.EOF means the stream ended cleanly
// between frames.
func (f *Framer) ReadFrame() ([]byte, error) {
	hdr, err := f.r.Peek(frameHeader)
	switch {
	case err == io.EOF && len(hdr) == 0:
		return nil, io.EOF
	case err == io.EOF:
		return nil, ErrFrameTruncated
	case err != nil:
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	n := int(binary.BigEndian.Uint16(hdr))
	if err := checkSize(n); err != nil {
		return nil, err
	}
	_, _ = f.r.Discard(frameHeader)

	payload := make([]byte, n)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	f.log.Frame(log.DirectionIn, payload)
	return payload, nil
}
