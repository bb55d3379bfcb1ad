package bridge

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/interaction"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/peripheral"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

const simID = "sim-1"

type harness struct {
	dev    *peripheral.Device
	server *Server
	tr     *Transport
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dev := peripheral.New(peripheral.DefaultConfig(simID))
	srv, err := NewServer(ServerConfig{Address: "127.0.0.1:0", Device: dev})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	tr := New(Config{Peers: map[string]string{simID: srv.Addr().String()}})
	t.Cleanup(tr.Close)

	return &harness{dev: dev, server: srv, tr: tr}
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t)

	got := make(chan []byte, 1)
	h.tr.OnNotify(simID, func(data []byte) { got <- data })
	require.NoError(t, h.tr.Connect(context.Background(), simID))
	require.Eventually(t, h.server.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, h.tr.Write(simID, wire.Encode(wire.EnterConfig{})))

	select {
	case frame := <-got:
		resp, err := wire.Decode(frame)
		require.NoError(t, err)
		assert.IsType(t, wire.AckSuccess{}, resp)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
	assert.True(t, h.dev.State().InConfigMode)
}

func TestInteractionOverBridge(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tr.Connect(context.Background(), simID))

	client := interaction.NewClient(h.tr, interaction.Config{DeviceID: simID, Timeout: time.Second})
	defer client.Close()

	ctx := context.Background()
	_, err := client.Do(ctx, wire.EnterConfig{})
	require.NoError(t, err)

	_, err = client.Do(ctx, wire.UpdateParameter{Parameter: wire.ParamBrightness, Value: 90})
	require.NoError(t, err)

	_, err = client.Do(ctx, wire.CommitConfig{})
	require.NoError(t, err)
	assert.Equal(t, uint8(90), h.dev.State().Committed.Brightness)
}

func TestServerKickReportsDisconnect(t *testing.T) {
	h := newHarness(t)

	lost := make(chan struct{})
	h.tr.OnDisconnect(simID, func() { close(lost) })
	require.NoError(t, h.tr.Connect(context.Background(), simID))
	require.Eventually(t, h.server.Connected, time.Second, 5*time.Millisecond)

	h.server.Kick()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
	assert.ErrorIs(t, h.tr.Write(simID, []byte{0x10}), transport.ErrNotConnected)
	assert.Eventually(t, func() bool { return !h.server.Connected() }, time.Second, 5*time.Millisecond)
}

func TestDisconnectResetsConfigMode(t *testing.T) {
	h := newHarness(t)

	lost := make(chan struct{})
	h.tr.OnDisconnect(simID, func() { close(lost) })
	require.NoError(t, h.tr.Connect(context.Background(), simID))

	client := interaction.NewClient(h.tr, interaction.Config{DeviceID: simID, Timeout: time.Second})
	_, err := client.Do(context.Background(), wire.EnterConfig{})
	require.NoError(t, err)
	require.True(t, h.dev.State().InConfigMode)

	require.NoError(t, h.tr.Disconnect(simID))
	<-lost

	assert.Eventually(t, func() bool { return !h.dev.State().InConfigMode }, time.Second, 5*time.Millisecond)

	// Disconnecting an absent link is not an error.
	assert.NoError(t, h.tr.Disconnect(simID))
}

func TestReconnectAfterKick(t *testing.T) {
	h := newHarness(t)

	var losses atomic.Int32
	h.tr.OnDisconnect(simID, func() { losses.Add(1) })
	require.NoError(t, h.tr.Connect(context.Background(), simID))
	require.Eventually(t, h.server.Connected, time.Second, 5*time.Millisecond)

	h.server.Kick()
	require.Eventually(t, func() bool { return losses.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.server.Connected() }, time.Second, 5*time.Millisecond)

	got := make(chan []byte, 1)
	h.tr.OnNotify(simID, func(data []byte) { got <- data })
	require.NoError(t, h.tr.Connect(context.Background(), simID))
	require.NoError(t, h.tr.Write(simID, wire.Encode(wire.EnterConfig{})))

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after reconnect")
	}
}

func TestSecondCentralRefused(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tr.Connect(context.Background(), simID))
	require.Eventually(t, h.server.Connected, time.Second, 5*time.Millisecond)

	nc, err := net.Dial("tcp", h.server.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	require.NoError(t, nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = nc.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestConnectUnknown(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.tr.Connect(context.Background(), "nope"), transport.ErrUnknownDevice)
	assert.ErrorIs(t, h.tr.Write("nope", []byte{0x10}), transport.ErrNotConnected)
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	tr := New(Config{Peers: map[string]string{simID: addr}, DialTimeout: time.Second})
	defer tr.Close()
	assert.Error(t, tr.Connect(context.Background(), simID))
}

func TestScan(t *testing.T) {
	h := newHarness(t)
	h.tr.AddPeer("sim-2", "127.0.0.1:1")

	found := make(chan transport.Discovered, 4)
	stop, err := h.tr.Scan(context.Background(), func(d transport.Discovered) { found <- d })
	require.NoError(t, err)

	_, err = h.tr.Scan(context.Background(), func(transport.Discovered) {})
	assert.ErrorIs(t, err, transport.ErrScanInProgress)

	ids := map[string]bool{}
	for len(ids) < 2 {
		select {
		case d := <-found:
			assert.True(t, d.IsController())
			ids[d.ID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("peers not reported")
		}
	}
	assert.True(t, ids[simID])
	assert.True(t, ids["sim-2"])

	stop()
	stop2, err := h.tr.Scan(context.Background(), func(transport.Discovered) {})
	require.NoError(t, err)
	stop2()
}

func TestClosedTransport(t *testing.T) {
	h := newHarness(t)
	h.tr.Close()

	assert.ErrorIs(t, h.tr.Connect(context.Background(), simID), transport.ErrClosed)
	_, err := h.tr.Scan(context.Background(), func(transport.Discovered) {})
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestServerLifecycle(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)

	dev := peripheral.New(peripheral.DefaultConfig(simID))
	mem := log.NewMultiLogger()
	srv, err := NewServer(ServerConfig{Address: "127.0.0.1:0", Device: dev, Protocol: mem})
	require.NoError(t, err)
	assert.Nil(t, srv.Addr())

	require.NoError(t, srv.Start(context.Background()))
	assert.NotZero(t, srv.Port())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerRunning)

	require.NoError(t, srv.Stop())
	assert.ErrorIs(t, srv.Stop(), ErrServerNotRunning)
}

func TestTXT(t *testing.T) {
	txt := encodeTXT("LED Controller 2", -61)
	name, services, rssi := decodeTXT(append(txt, "junk", "other=1"))

	assert.Equal(t, "LED Controller 2", name)
	assert.Equal(t, []string{transport.ServiceUUID}, services)
	assert.Equal(t, -61, rssi)
}

func TestAddressAggregation(t *testing.T) {
	merged := mergeAddresses([]string{"10.0.0.2"}, []string{"10.0.0.2", "fe80::1"})
	assert.Equal(t, []string{"10.0.0.2", "fe80::1"}, merged)

	p := peer{port: 4500, addrs: merged}
	assert.Equal(t, []string{"10.0.0.2:4500", "[fe80::1]:4500"}, p.dialAddrs(nil))
	assert.Empty(t, (&peer{}).dialAddrs(nil))
}

func TestDialAddressOrder(t *testing.T) {
	_, lan, err := net.ParseCIDR("192.168.1.0/24")
	require.NoError(t, err)

	p := peer{port: 7400, addrs: []string{"192.0.2.2", "192.168.1.20", "127.0.0.1", "198.51.100.7"}}
	assert.Equal(t, []string{
		"127.0.0.1:7400",
		"192.168.1.20:7400",
		"192.0.2.2:7400",
		"198.51.100.7:7400",
	}, p.dialAddrs([]*net.IPNet{lan}))
}

func TestConnectFallsBackToNextAddress(t *testing.T) {
	h := newHarness(t)

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	dead.Close()

	tr := New(Config{DialTimeout: 2 * time.Second})
	defer tr.Close()
	tr.mu.Lock()
	tr.addrs[simID] = []string{deadAddr, h.server.Addr().String()}
	tr.mu.Unlock()

	require.NoError(t, tr.Connect(context.Background(), simID))
	require.Eventually(t, h.server.Connected, time.Second, 5*time.Millisecond)
}

func TestConnectReportsEveryAddress(t *testing.T) {
	var addrs []string
	for range 2 {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs = append(addrs, ln.Addr().String())
		ln.Close()
	}

	tr := New(Config{DialTimeout: time.Second})
	defer tr.Close()
	tr.mu.Lock()
	tr.addrs[simID] = addrs
	tr.mu.Unlock()

	err := tr.Connect(context.Background(), simID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addrs[0])
	assert.Contains(t, err.Error(), addrs[1])
}
