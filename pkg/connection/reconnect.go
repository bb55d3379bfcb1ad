package connection

import (
	"context"
	"errors"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/persistence"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

// OnAppLaunch opens a reconnect window if the user has paired controllers.
func (m *Manager) OnAppLaunch() bool {
	if len(m.pairedForUser()) == 0 {
		return false
	}
	return m.startReconnect(TriggerAppLaunch, nil)
}

// OnForeground opens a reconnect window if nothing is connected.
func (m *Manager) OnForeground() bool {
	if m.Current() != nil || len(m.pairedForUser()) == 0 {
		return false
	}
	return m.startReconnect(TriggerForeground, nil)
}

// OnBackground stops scanning and closes any reconnect window. Links stay up.
func (m *Manager) OnBackground() {
	m.StopScan()
	m.StopReconnect()
}

// HandleDiscovered opens a reconnect window aimed at d if it is paired to
// the current user and nothing is connected.
func (m *Manager) HandleDiscovered(d transport.Discovered) {
	if !d.IsController() {
		return
	}

	m.mu.Lock()
	busy := m.closed || len(m.links) > 0 || m.reconnect != nil || m.connecting > 0
	m.mu.Unlock()
	if busy {
		return
	}

	rec, err := m.store.Lookup(d.ID)
	if err != nil || rec == nil || !m.ownedByUser(rec) {
		return
	}
	m.startReconnect(TriggerDiscovered, &d)
}

// StopReconnect closes the reconnect window and cancels its attempts.
func (m *Manager) StopReconnect() {
	m.mu.Lock()
	run := m.reconnect
	m.mu.Unlock()
	if run != nil {
		run.stop()
	}
}

// Reconnecting reports whether a reconnect window is open.
func (m *Manager) Reconnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnect != nil
}

func (m *Manager) pairedForUser() []persistence.PairedDevice {
	all, err := m.store.Get(m.cfg.UserID)
	if err != nil {
		m.logger.Warn("pairing store read failed", "error", err)
		return nil
	}
	return all
}

// startReconnect opens a reconnect window. The window closes after
// ReconnectWindow whatever the outcome; an attempt still outstanding at
// that point may complete later and connect.
func (m *Manager) startReconnect(trigger Trigger, target *transport.Discovered) bool {
	m.mu.Lock()
	if m.closed || m.reconnect != nil || len(m.links) > 0 {
		m.mu.Unlock()
		return false
	}
	stopCtx, stop := context.WithCancel(m.ctx)
	run := &reconnectRun{stop: stop, done: make(chan struct{})}
	m.reconnect = run
	m.mu.Unlock()

	if target != nil {
		m.StopScan()
	}

	windowCtx, closeWindow := context.WithTimeout(stopCtx, m.cfg.ReconnectWindow)
	m.logger.Info("reconnect window opened", "trigger", trigger, "window", m.cfg.ReconnectWindow)
	m.updateStatus("reconnect " + trigger.String())

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		select {
		case <-windowCtx.Done():
		case <-run.done:
		}
		m.endWindow(run)
	}()
	go func() {
		defer m.wg.Done()
		defer stop()
		defer closeWindow()

		out := m.runReconnect(stopCtx, windowCtx, trigger, target)
		close(run.done)
		m.endWindow(run)

		m.logger.Info("reconnect finished",
			"trigger", trigger,
			"connected", out.Connected,
			"device", out.DeviceID,
			"path", out.Path,
			"attempts", out.Attempts,
			"expired", out.Expired,
			"error", out.Err)
		if m.cfg.OnReconnect != nil {
			m.cfg.OnReconnect(out)
		}
	}()
	return true
}

func (m *Manager) endWindow(run *reconnectRun) {
	m.mu.Lock()
	current := m.reconnect == run
	if current {
		m.reconnect = nil
	}
	m.mu.Unlock()
	if current {
		m.updateStatus("reconnect window closed")
	}
}

// runReconnect tries one direct connect to the last connected controller,
// then scan rounds against every pairing of the user spaced by the backoff.
// Attempts use stopCtx so they may outlive the window.
func (m *Manager) runReconnect(stopCtx, windowCtx context.Context, trigger Trigger, target *transport.Discovered) ReconnectOutcome {
	start := time.Now()
	out := ReconnectOutcome{Trigger: trigger}
	finish := func() ReconnectOutcome {
		out.Elapsed = time.Since(start)
		out.Expired = errors.Is(windowCtx.Err(), context.DeadlineExceeded)
		return out
	}
	succeed := func(link *Link, path Path, err error) ReconnectOutcome {
		out.Connected = true
		out.DeviceID = link.ID
		out.Path = path
		out.Err = err
		return finish()
	}

	bo := NewBackoff(m.cfg.Backoff)

	direct := target
	if direct == nil {
		if last := m.lastConnectedForUser(); last != nil {
			direct = &transport.Discovered{ID: last.ID, Name: last.Name, RSSI: last.RSSI}
		}
	}
	if direct != nil {
		out.Attempts++
		link, err := m.connect(stopCtx, *direct)
		if link != nil {
			return succeed(link, PathDirect, err)
		}
		m.logger.Debug("direct reconnect failed", "device", direct.ID, "error", err)
		out.Err = err
	}

	paired := m.pairedForUser()
	if len(paired) == 0 {
		if out.Err == nil {
			out.Err = ErrNoPairings
		}
		return finish()
	}

	for round := 0; round < m.cfg.ReconnectAttempts; round++ {
		if round > 0 || direct != nil {
			if bo.Wait(windowCtx) != nil {
				return finish()
			}
		}
		if windowCtx.Err() != nil {
			break
		}
		if l := m.Current(); l != nil {
			return succeed(l, PathNone, nil)
		}

		d, err := m.scanForPaired(windowCtx, paired)
		if err != nil {
			out.Err = err
			continue
		}

		out.Attempts++
		link, err := m.connect(stopCtx, d)
		if link != nil {
			return succeed(link, PathScan, err)
		}
		out.Err = err
	}
	return finish()
}

func (m *Manager) lastConnectedForUser() *persistence.PairedDevice {
	paired := m.pairedForUser()
	if len(paired) == 0 {
		return nil
	}
	// Get sorts by LastConnected, newest first.
	return &paired[0]
}

// scanForPaired scans until a paired controller shows up.
func (m *Manager) scanForPaired(ctx context.Context, paired []persistence.PairedDevice) (transport.Discovered, error) {
	want := make(map[string]bool, len(paired))
	for _, p := range paired {
		want[p.ID] = true
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ScanTimeout)
	defer cancel()

	found := make(chan transport.Discovered, 1)
	stop, err := m.tr.Scan(ctx, func(d transport.Discovered) {
		if !want[d.ID] {
			return
		}
		select {
		case found <- d:
		default:
		}
	})
	if err != nil {
		return transport.Discovered{}, err
	}
	defer stop()

	select {
	case d := <-found:
		return d, nil
	case <-ctx.Done():
		return transport.Discovered{}, ErrNoMatch
	}
}
