package ledctl_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/connection"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/peripheral"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/persistence"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/session"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/telemetry"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport/bridge"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

const simID = "bench-1"

// bench is one simulated controller behind a bridge server.
type bench struct {
	dev    *peripheral.Device
	server *bridge.Server
}

func startBench(t *testing.T, flash persistence.KV) *bench {
	t.Helper()
	return startBenchOn(t, "127.0.0.1:0", flash)
}

// startBenchOn serves the simulator on address.
func startBenchOn(t *testing.T, address string, flash persistence.KV) *bench {
	t.Helper()

	cfg := peripheral.DefaultConfig(simID)
	cfg.Flash = flash
	dev := peripheral.New(cfg)

	srv, err := bridge.NewServer(bridge.ServerConfig{Address: address, Device: dev})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	return &bench{dev: dev, server: srv}
}

func hostConfig(store *persistence.PairingStore) connection.Config {
	cfg := connection.DefaultConfig()
	cfg.UserID = "alice"
	cfg.Store = store
	cfg.ScanTimeout = 500 * time.Millisecond
	cfg.ReconnectWindow = 2 * time.Second
	cfg.CommandTimeout = time.Second
	cfg.Backoff = connection.BackoffConfig{Initial: 20 * time.Millisecond, Max: 100 * time.Millisecond}
	cfg.Session.Debounce = 20 * time.Millisecond
	return cfg
}

func newHost(t *testing.T, b *bench, cfg connection.Config) *connection.Manager {
	t.Helper()
	tr := bridge.New(bridge.Config{Peers: map[string]string{simID: b.server.Addr().String()}})
	m := connection.NewManager(tr, cfg)
	t.Cleanup(func() {
		_ = m.Close()
		tr.Close()
	})
	return m
}

func advert() transport.Discovered {
	return transport.Discovered{ID: simID, Name: transport.AdvertisedName, ServiceUUIDs: []string{transport.ServiceUUID}}
}

// TestE2E_ConfigureOverBridge runs a full configuration session against a
// simulated controller over TCP.
func TestE2E_ConfigureOverBridge(t *testing.T) {
	b := startBench(t, nil)

	capture := filepath.Join(t.TempDir(), "host.llog")
	fl, err := log.NewFileLogger(capture)
	require.NoError(t, err)

	sink := telemetry.NewMemorySink()
	start := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	b.dev.RecordSession(start, start.Add(45*time.Minute), 1, 1)

	cfg := hostConfig(persistence.NewPairingStore(persistence.NewMemoryKV()))
	cfg.Protocol = fl
	cfg.Telemetry = telemetry.NewHandler(telemetry.Config{Settle: 20 * time.Millisecond, Sink: sink})
	m := newHost(t, b, cfg)

	ctx := context.Background()
	link, err := m.Connect(ctx, advert())
	require.NoError(t, err)
	assert.Equal(t, connection.OwnershipClaimed, link.Ownership)
	require.NotNil(t, link.Session)

	// Telemetry is collected and confirmed in the background.
	require.Eventually(t, func() bool { return sink.Len() == 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return b.dev.State().BufferedCount == 0 }, 3*time.Second, 10*time.Millisecond)

	s := link.Session
	require.NoError(t, s.Enter(ctx))
	for _, v := range []int{40, 80, 120} {
		require.NoError(t, s.UpdateParameter(wire.ParamBrightness, v))
	}
	require.NoError(t, s.UpdateParameter(wire.ParamEffect, 4))
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, session.StateActive, s.State())

	st := b.dev.State()
	assert.Equal(t, uint8(120), st.Committed.Brightness)
	assert.Equal(t, uint8(4), st.Committed.Effect)

	require.NoError(t, s.Exit(ctx))
	assert.False(t, b.dev.State().InConfigMode)

	require.NoError(t, m.Disconnect(simID))
	require.NoError(t, fl.Close())

	// The capture holds the commit and its acknowledgment.
	op := wire.OpCommitConfig
	r, err := log.NewFilteredReader(capture, log.Filter{Opcode: &op})
	require.NoError(t, err)
	defer r.Close()
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, simID, ev.DeviceID)
}

// TestE2E_ReconnectAfterLinkLoss drops the link from the controller side and
// expects the host to come back on its own.
func TestE2E_ReconnectAfterLinkLoss(t *testing.T) {
	b := startBench(t, nil)

	outcomes := make(chan connection.ReconnectOutcome, 4)
	cfg := hostConfig(persistence.NewPairingStore(persistence.NewMemoryKV()))
	cfg.OnReconnect = func(o connection.ReconnectOutcome) { outcomes <- o }
	m := newHost(t, b, cfg)

	_, err := m.Connect(context.Background(), advert())
	require.NoError(t, err)
	require.Eventually(t, b.server.Connected, time.Second, 5*time.Millisecond)

	b.server.Kick()

	select {
	case o := <-outcomes:
		assert.True(t, o.Connected)
		assert.Equal(t, connection.TriggerLinkLost, o.Trigger)
		assert.Equal(t, connection.PathDirect, o.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect outcome")
	}

	link := m.Current()
	require.NotNil(t, link)
	assert.Equal(t, connection.OwnershipVerified, link.Ownership)
	assert.Equal(t, connection.StatusConnected, m.Status())
}

// TestE2E_OwnershipSurvivesRestart restarts both sides with their state on
// disk and expects the second connect to verify rather than claim.
func TestE2E_OwnershipSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	flash := persistence.NewFileKV(filepath.Join(dir, "flash.json"))
	pairings := filepath.Join(dir, "pairings.json")

	first := startBench(t, flash)
	m1 := newHost(t, first, hostConfig(persistence.NewPairingStore(persistence.NewFileKV(pairings))))
	link, err := m1.Connect(context.Background(), advert())
	require.NoError(t, err)
	assert.Equal(t, connection.OwnershipClaimed, link.Ownership)
	require.NoError(t, m1.Close())
	require.NoError(t, first.server.Stop())

	second := startBench(t, persistence.NewFileKV(filepath.Join(dir, "flash.json")))
	assert.True(t, second.dev.State().Claimed)

	store := persistence.NewPairingStore(persistence.NewFileKV(pairings))
	rec, err := store.Lookup(simID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.OwnerUserID)
	assert.Equal(t, 1, rec.ConnectionCount)

	m2 := newHost(t, second, hostConfig(store))
	link, err = m2.Connect(context.Background(), advert())
	require.NoError(t, err)
	assert.Equal(t, connection.OwnershipVerified, link.Ownership)

	// Another user is refused and gets no session.
	other := hostConfig(persistence.NewPairingStore(persistence.NewMemoryKV()))
	other.UserID = "mallory"
	require.NoError(t, m2.Disconnect(simID))
	m3 := newHost(t, second, other)
	link, err = m3.Connect(context.Background(), advert())
	require.Error(t, err)
	require.NotNil(t, link)
	assert.Equal(t, connection.OwnershipDenied, link.Ownership)
	assert.Nil(t, link.Session)
}

// TestE2E_Discovery finds a simulator through mDNS.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// mDNS announces every interface address, so listen on all of them.
	b := startBenchOn(t, ":0", nil)
	adv := bridge.NewAdvertiser(bridge.AdvertiserConfig{})
	require.NoError(t, adv.Advertise(simID, transport.AdvertisedName, b.server.Port(), -42))
	defer adv.StopAll()

	// Give mDNS time to propagate
	time.Sleep(500 * time.Millisecond)

	tr := bridge.New(bridge.Config{Browse: true})
	defer tr.Close()

	cfg := hostConfig(persistence.NewPairingStore(persistence.NewMemoryKV()))
	cfg.ScanTimeout = 5 * time.Second
	m := connection.NewManager(tr, cfg)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	found := make(chan transport.Discovered, 1)
	go func() {
		_, _ = m.Scan(ctx, cfg.ScanTimeout, func(d transport.Discovered) {
			if d.ID == simID {
				select {
				case found <- d:
				default:
				}
			}
		})
	}()

	var d transport.Discovered
	select {
	case d = <-found:
	case <-ctx.Done():
		t.Fatal("simulator not discovered")
	}
	m.StopScan()

	assert.Equal(t, -42, d.RSSI)
	assert.True(t, d.IsController())

	link, err := m.Connect(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, connection.OwnershipClaimed, link.Ownership)
}
