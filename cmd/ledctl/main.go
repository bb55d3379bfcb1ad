// Command ledctl configures LED controllers from the terminal.
//
// It stands in for the phone app: it scans for controllers, claims or
// verifies ownership on connect, reconnects to paired controllers and
// drives a configuration session from an interactive shell.
//
// Usage:
//
//	ledctl [flags]
//
// Flags:
//
//	-config string          YAML configuration file
//	-user string            User id that owns controllers
//	-transport string       Transport: ble, bridge, sim (default "ble")
//	-state-dir string       Directory for pairings and simulator flash
//	-log-level string       Log level: debug, info, warn, error (default "info")
//	-protocol-log string    Write a protocol capture to this file
//	-telemetry-log string   Append telemetry events as JSON lines to this file
//	-trusted                Skip the ownership step
//	-interactive            Start the interactive shell (default true)
//	-peer id=host:port      Bridge peer (repeatable)
//	-no-browse              Do not browse mDNS for bridges
//	-reset                  Clear pairings before starting
//
// Examples:
//
//	# Talk to a simulator started with ledctl-sim
//	ledctl -transport bridge -user alice
//
//	# Fully in-process, remembering pairings across runs
//	ledctl -transport sim -user alice -state-dir ~/.ledctl
//
//	# Capture the protocol for ledctl-log
//	ledctl -user alice -protocol-log /tmp/ledctl.llog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/AatozInnoInc/bt-led-controller-sub000/cmd/ledctl/interactive"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/connection"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/peripheral"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/persistence"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/telemetry"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport/ble"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport/bridge"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport/loopback"
)

// simDeviceID is the address of the in-process simulated controller.
const simDeviceID = "sim-1"

// peerFlag collects repeated -peer id=host:port flags.
type peerFlag map[string]string

func (p peerFlag) String() string {
	parts := make([]string, 0, len(p))
	for id, addr := range p {
		parts = append(parts, id+"="+addr)
	}
	return strings.Join(parts, ",")
}

func (p peerFlag) Set(v string) error {
	id, addr, ok := strings.Cut(v, "=")
	if !ok || id == "" || addr == "" {
		return fmt.Errorf("peer must be id=host:port, got %q", v)
	}
	p[id] = addr
	return nil
}

var (
	configFile string
	reset      bool
	flagCfg    = DefaultConfig()
	peers      = peerFlag{}
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file")
	flag.StringVar(&flagCfg.UserID, "user", "", "User id that owns controllers")
	flag.StringVar(&flagCfg.Transport, "transport", flagCfg.Transport, "Transport: ble, bridge, sim")
	flag.StringVar(&flagCfg.StateDir, "state-dir", "", "Directory for pairings and simulator flash")
	flag.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&flagCfg.ProtocolLog, "protocol-log", "", "Write a protocol capture to this file")
	flag.StringVar(&flagCfg.Telemetry, "telemetry-log", "", "Append telemetry events as JSON lines to this file")
	flag.BoolVar(&flagCfg.TrustedMode, "trusted", false, "Skip the ownership step")
	flag.BoolVar(&flagCfg.Interactive, "interactive", true, "Start the interactive shell")
	flag.Var(peers, "peer", "Bridge peer as id=host:port (repeatable)")
	flag.BoolVar(&flagCfg.NoBrowse, "no-browse", false, "Do not browse mDNS for bridges")
	flag.BoolVar(&reset, "reset", false, "Clear pairings before starting")
}

// loadConfig layers defaults, the YAML file and explicitly set flags.
func loadConfig(fs *flag.FlagSet, path string, flags Config, flagPeers map[string]string) (Config, error) {
	cfg := DefaultConfig()
	cfg.Interactive = true
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "user":
			cfg.UserID = flags.UserID
		case "transport":
			cfg.Transport = flags.Transport
		case "state-dir":
			cfg.StateDir = flags.StateDir
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		case "protocol-log":
			cfg.ProtocolLog = flags.ProtocolLog
		case "telemetry-log":
			cfg.Telemetry = flags.Telemetry
		case "trusted":
			cfg.TrustedMode = flags.TrustedMode
		case "interactive":
			cfg.Interactive = flags.Interactive
		case "no-browse":
			cfg.NoBrowse = flags.NoBrowse
		}
	})
	if len(flagPeers) > 0 {
		if cfg.Peers == nil {
			cfg.Peers = make(map[string]string)
		}
		for id, addr := range flagPeers {
			cfg.Peers[id] = addr
		}
	}
	return cfg, cfg.Validate()
}

// switchWriter lets log output move to the shell once it exists.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flag.CommandLine, configFile, flagCfg, peers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ledctl: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	level, _ := parseLevel(cfg.LogLevel)
	logOut := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	logger.Info("ledctl starting", "transport", cfg.Transport, "user", cfg.UserID, "trusted", cfg.TrustedMode)

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	kv := persistence.KV(persistence.NewMemoryKV())
	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
			return fmt.Errorf("state dir: %w", err)
		}
		kv = persistence.NewFileKV(filepath.Join(cfg.StateDir, "pairings.json"))
	}
	store := persistence.NewPairingStore(kv)
	if reset {
		if err := clearPairings(store); err != nil {
			logger.Warn("failed to clear pairings", "error", err)
		}
	}

	var protocol log.Logger
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		cleanup = append(cleanup, func() { _ = fl.Close() })
		protocol = fl
		if level <= slog.LevelDebug {
			protocol = log.NewMultiLogger(fl, log.NewSlogAdapter(logger))
		}
		logger.Info("capturing protocol", "path", cfg.ProtocolLog)
	}

	sinks := []telemetry.Sink{telemetry.NewSlogSink(logger)}
	if cfg.Telemetry != "" {
		f, err := os.OpenFile(cfg.Telemetry, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("telemetry log: %w", err)
		}
		cleanup = append(cleanup, func() { _ = f.Close() })
		sinks = append(sinks, telemetry.NewJSONSink(f))
	}
	tcfg := telemetry.DefaultConfig()
	tcfg.Settle = cfg.Settle
	tcfg.Sink = telemetry.NewMultiSink(sinks...)
	tcfg.Logger = logger.With("component", "telemetry")

	tr, closeTransport, err := openTransport(cfg, logger)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeTransport)

	mcfg := cfg.ManagerConfig()
	mcfg.Store = store
	mcfg.Telemetry = telemetry.NewHandler(tcfg)
	mcfg.Logger = logger.With("component", "connection")
	mcfg.Protocol = protocol
	mcfg.Session.Logger = logger.With("component", "session")
	mcfg.OnStatusChange = func(from, to connection.Status) {
		logger.Info("status", "from", from, "to", to)
	}
	mcfg.OnConnected = func(l *connection.Link) {
		logger.Info("connected", "device", l.ID, "ownership", l.Ownership)
	}
	mcfg.OnDisconnected = func(id string) {
		logger.Info("disconnected", "device", id)
	}
	mcfg.OnReconnect = func(o connection.ReconnectOutcome) {
		if o.Connected {
			logger.Info("reconnected", "device", o.DeviceID, "path", o.Path, "attempts", o.Attempts, "elapsed", o.Elapsed)
			return
		}
		logger.Warn("reconnect gave up", "trigger", o.Trigger, "attempts", o.Attempts, "expired", o.Expired, "error", o.Err)
	}

	mgr := connection.NewManager(tr, mcfg)
	cleanup = append(cleanup, func() { _ = mgr.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if mgr.OnAppLaunch() {
		logger.Info("reconnecting to paired controller")
	}

	if cfg.Interactive {
		shell, err := interactive.New(mgr)
		if err != nil {
			return err
		}
		logOut.set(shell.Stdout())
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return nil
}

func clearPairings(store *persistence.PairingStore) error {
	all, err := store.Get("")
	if err != nil {
		return err
	}
	for _, d := range all {
		if err := store.Remove(d.ID); err != nil {
			return err
		}
	}
	return nil
}

// openTransport builds the configured transport and its shutdown func.
func openTransport(cfg Config, logger *slog.Logger) (transport.Transport, func(), error) {
	switch cfg.Transport {
	case TransportBLE:
		bcfg := ble.DefaultConfig()
		bcfg.Logger = logger.With("component", "ble")
		tr, err := ble.New(bcfg)
		if err != nil {
			return nil, nil, err
		}
		return tr, tr.Close, nil

	case TransportBridge:
		tr := bridge.New(bridge.Config{
			Peers:     cfg.Peers,
			Browse:    !cfg.NoBrowse,
			Interface: cfg.Interface,
			Logger:    logger.With("component", "bridge"),
		})
		return tr, tr.Close, nil

	case TransportSim:
		pcfg := peripheral.DefaultConfig(simDeviceID)
		pcfg.Budget = cfg.PowerBudget()
		pcfg.Logger = logger.With("component", "sim")
		if cfg.StateDir != "" {
			pcfg.Flash = persistence.NewFileKV(filepath.Join(cfg.StateDir, "sim-flash.json"))
		}
		lcfg := loopback.DefaultConfig()
		lcfg.Logger = logger.With("component", "loopback")
		tr := loopback.New(lcfg)
		tr.Add(peripheral.New(pcfg), -55)
		return tr, tr.Close, nil

	default:
		return nil, nil, errors.New("unknown transport " + cfg.Transport)
	}
}
