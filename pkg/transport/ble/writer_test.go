package ble

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

type fakeChar struct {
	mu     sync.Mutex
	writes [][]byte
	times  []time.Time
	fail   error
	block  chan struct{}
}

func (c *fakeChar) WriteWithoutResponse(p []byte) (int, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return 0, c.fail
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	c.times = append(c.times, time.Now())
	return len(p), nil
}

func (c *fakeChar) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func TestPacedWriterOrder(t *testing.T) {
	char := &fakeChar{}
	w := newPacedWriter(char, rate.NewLimiter(rate.Inf, 1), 8)
	go w.run()
	defer w.close()

	for i := byte(0); i < 5; i++ {
		require.NoError(t, w.enqueue([]byte{0x10, i}))
	}

	require.Eventually(t, func() bool { return char.count() == 5 }, time.Second, time.Millisecond)
	char.mu.Lock()
	defer char.mu.Unlock()
	for i, frame := range char.writes {
		assert.Equal(t, []byte{0x10, byte(i)}, frame)
	}
}

func TestPacedWriterRate(t *testing.T) {
	char := &fakeChar{}
	// One write every 20ms after a burst of one.
	w := newPacedWriter(char, rate.NewLimiter(rate.Every(20*time.Millisecond), 1), 8)
	go w.run()
	defer w.close()

	for i := 0; i < 4; i++ {
		require.NoError(t, w.enqueue([]byte{0x10}))
	}
	require.Eventually(t, func() bool { return char.count() == 4 }, 2*time.Second, time.Millisecond)

	char.mu.Lock()
	defer char.mu.Unlock()
	elapsed := char.times[3].Sub(char.times[0])
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestPacedWriterQueueFull(t *testing.T) {
	char := &fakeChar{block: make(chan struct{})}
	w := newPacedWriter(char, rate.NewLimiter(rate.Inf, 1), 2)
	go w.run()
	defer func() {
		close(char.block)
		w.close()
	}()

	// The first frame is taken by the writer and blocks; two fill the queue.
	require.NoError(t, w.enqueue([]byte{1}))
	require.Eventually(t, func() bool { return len(w.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, w.enqueue([]byte{2}))
	require.NoError(t, w.enqueue([]byte{3}))

	assert.ErrorIs(t, w.enqueue([]byte{4}), transport.ErrBusy)
}

func TestPacedWriterFailure(t *testing.T) {
	boom := errors.New("att error")
	char := &fakeChar{fail: boom}
	w := newPacedWriter(char, rate.NewLimiter(rate.Inf, 1), 4)

	reported := make(chan error, 1)
	w.onError = func(err error) { reported <- err }
	go w.run()

	require.NoError(t, w.enqueue([]byte{1}))

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("write failure not reported")
	}

	<-w.done
	assert.ErrorIs(t, w.enqueue([]byte{2}), transport.ErrNotConnected)
}

func TestPacedWriterClose(t *testing.T) {
	w := newPacedWriter(&fakeChar{}, rate.NewLimiter(rate.Inf, 1), 4)
	go w.run()

	w.close()
	w.close()

	select {
	case <-w.done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}
	assert.ErrorIs(t, w.enqueue([]byte{1}), transport.ErrNotConnected)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, float64(DefaultWriteRate), cfg.WriteRate)
	assert.Equal(t, DefaultWriteBurst, cfg.WriteBurst)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, transport.ServiceUUID, serviceUUID.String())
}
