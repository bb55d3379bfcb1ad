package loopback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/peripheral"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

func newTestTransport(t *testing.T) (*Transport, *peripheral.Device) {
	t.Helper()
	tr := New(Config{})
	dev := peripheral.New(peripheral.DefaultConfig("sim-1"))
	tr.Add(dev, -50)
	t.Cleanup(tr.Close)
	return tr, dev
}

func TestWriteNotify(t *testing.T) {
	tr, _ := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Connect(ctx, "sim-1"))
	assert.True(t, tr.Connected("sim-1"))

	got := make(chan []byte, 1)
	tr.OnNotify("sim-1", func(data []byte) { got <- data })

	require.NoError(t, tr.Write("sim-1", wire.Encode(wire.EnterConfig{})))

	select {
	case frame := <-got:
		resp, err := wire.Decode(frame)
		require.NoError(t, err)
		assert.IsType(t, wire.AckSuccess{}, resp)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestWriteNotConnected(t *testing.T) {
	tr, _ := newTestTransport(t)
	assert.ErrorIs(t, tr.Write("sim-1", []byte{0x10}), transport.ErrNotConnected)
	assert.ErrorIs(t, tr.Write("nope", []byte{0x10}), transport.ErrNotConnected)
}

func TestConnectFailures(t *testing.T) {
	tr, _ := newTestTransport(t)
	ctx := context.Background()

	assert.ErrorIs(t, tr.Connect(ctx, "nope"), transport.ErrUnknownDevice)

	tr.RefuseConnects("sim-1", 1)
	assert.ErrorIs(t, tr.Connect(ctx, "sim-1"), transport.ErrUnknownDevice)
	assert.NoError(t, tr.Connect(ctx, "sim-1"))

	slow := New(Config{ConnectDelay: time.Second})
	slow.Add(peripheral.New(peripheral.DefaultConfig("sim-2")), -40)
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, slow.Connect(cctx, "sim-2"), context.DeadlineExceeded)
}

func TestDropNotifiesAndResetsDevice(t *testing.T) {
	tr, dev := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background(), "sim-1"))

	var wg sync.WaitGroup
	wg.Add(1)
	tr.OnDisconnect("sim-1", wg.Done)

	ack := make(chan struct{}, 1)
	tr.OnNotify("sim-1", func([]byte) { ack <- struct{}{} })
	require.NoError(t, tr.Write("sim-1", wire.Encode(wire.EnterConfig{})))
	<-ack
	require.True(t, dev.State().InConfigMode)

	tr.Drop("sim-1")
	wg.Wait()

	assert.False(t, tr.Connected("sim-1"))
	assert.False(t, dev.State().InConfigMode)
	assert.NoError(t, tr.Disconnect("sim-1"), "disconnecting a closed link is not an error")
}

func TestScan(t *testing.T) {
	tr, _ := newTestTransport(t)
	other := peripheral.New(peripheral.DefaultConfig("sim-2"))
	tr.Add(other, -70)
	tr.SetInRange("sim-2", false)

	seen := make(chan transport.Discovered, 4)
	cancel, err := tr.Scan(context.Background(), func(d transport.Discovered) { seen <- d })
	require.NoError(t, err)

	_, err = tr.Scan(context.Background(), func(transport.Discovered) {})
	assert.ErrorIs(t, err, transport.ErrScanInProgress)

	first := <-seen
	assert.Equal(t, "sim-1", first.ID)
	assert.True(t, first.IsController())

	tr.SetInRange("sim-2", true)
	second := <-seen
	assert.Equal(t, "sim-2", second.ID)
	assert.Equal(t, -70, second.RSSI)

	cancel()
	cancel()
	_, err = tr.Scan(context.Background(), func(transport.Discovered) {})
	assert.NoError(t, err)
}
