package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger appends events to a capture file. Each event goes out in a
// single write so a crash loses at most the record in flight. Safe for
// concurrent use.
type FileLogger struct {
	mu      sync.Mutex
	f       *os.File
	dropped int
}

// NewFileLogger opens the capture at path for appending. A missing or empty
// file gets a fresh header. An existing file must already be a capture.
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if err := prepareCapture(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileLogger{f: f}, nil
}

func prepareCapture(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		_, err = f.Write(captureHeader())
		return err
	}
	if err := readHeader(io.NewSectionReader(f, 0, int64(headerSize))); err != nil {
		return err
	}
	return nil
}

// Log appends event. Events that cannot be encoded or written are counted
// in Dropped. Calls after Close are ignored.
func (l *FileLogger) Log(event Event) {
	rec, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	if err == nil {
		_, err = l.f.Write(rec)
	}
	if err != nil {
		l.dropped++
	}
}

// Dropped returns how many events were lost.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes the capture to disk and closes it. Repeated calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	serr := f.Sync()
	if err := f.Close(); err != nil {
		return err
	}
	return serr
}

var _ Logger = (*FileLogger)(nil)
