package log

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Reader streams events out of a capture file.
//
// A capture cut short by a crash ends in a partial record. Reader stops
// cleanly at that point and reports it through Truncated.
type Reader struct {
	f         *os.File
	dec       *cbor.Decoder
	filter    Filter
	truncated bool
}

// NewReader opens the capture at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the capture at path and yields only events that
// match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	if err := readHeader(br); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, dec: decMode.NewDecoder(br), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the capture.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		err := r.dec.Decode(&e)
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.truncated = true
			return Event{}, io.EOF
		case err != nil:
			return Event{}, err
		case r.filter.Match(e):
			return e, nil
		}
	}
}

// Truncated reports whether the capture ended inside a record.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Close releases the file.
func (r *Reader) Close() error {
	return r.f.Close()
}
