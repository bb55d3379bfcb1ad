package ble

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

// characteristic is the write side of a GATT characteristic.
type characteristic interface {
	WriteWithoutResponse(p []byte) (int, error)
}

// pacedWriter serialises writes to one characteristic at the limiter's rate.
type pacedWriter struct {
	char    characteristic
	limiter *rate.Limiter
	queue   chan []byte
	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func newPacedWriter(char characteristic, limiter *rate.Limiter, size int) *pacedWriter {
	ctx, cancel := context.WithCancel(context.Background())
	return &pacedWriter{
		char:    char,
		limiter: limiter,
		queue:   make(chan []byte, size),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// enqueue copies data onto the queue without blocking.
func (w *pacedWriter) enqueue(data []byte) error {
	if w.ctx.Err() != nil {
		return transport.ErrNotConnected
	}
	select {
	case w.queue <- append([]byte(nil), data...):
		return nil
	default:
		return transport.ErrBusy
	}
}

// run writes queued frames until close. A failed write stops the writer
// and is reported once through onError.
func (w *pacedWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case data := <-w.queue:
			if err := w.limiter.Wait(w.ctx); err != nil {
				return
			}
			if _, err := w.char.WriteWithoutResponse(data); err != nil {
				w.close()
				if w.onError != nil {
					w.onError(err)
				}
				return
			}
		}
	}
}

func (w *pacedWriter) close() {
	w.once.Do(w.cancel)
}
