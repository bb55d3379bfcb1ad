// Command ledctl-sim runs a simulated LED controller behind a TCP bridge.
//
// The controller speaks the same wire protocol as the firmware. It keeps
// its committed configuration and owner in a flash file, serves one
// central at a time and announces itself over mDNS so that
// "ledctl -transport bridge" finds it without extra flags.
//
// Usage:
//
//	ledctl-sim [flags]
//
// Flags:
//
//	-id string            Controller address (default "sim-1")
//	-name string          Advertised local name (default "LED Controller")
//	-addr string          Listen address (default ":7400")
//	-state-dir string     Directory for the flash file (memory if empty)
//	-legacy               Acknowledge with the text protocol
//	-latency duration     Response latency (default 5ms)
//	-rssi int             Advertised signal strength (default -50)
//	-interface string     Network interface for mDNS
//	-no-mdns              Do not advertise over mDNS
//	-protocol-log string  Write a protocol capture to this file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Two controllers on one machine
//	ledctl-sim -id desk -addr :7400 -state-dir /tmp/desk
//	ledctl-sim -id shelf -addr :7401 -state-dir /tmp/shelf
//
//	# Old firmware acknowledging with text
//	ledctl-sim -legacy
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/peripheral"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/persistence"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport/bridge"
)

// Config holds the simulator configuration.
type Config struct {
	ID          string
	Name        string
	Addr        string
	StateDir    string
	Legacy      bool
	Latency     time.Duration
	RSSI        int
	Interface   string
	NoMDNS      bool
	ProtocolLog string
	LogLevel    string
}

var config Config

func init() {
	flag.StringVar(&config.ID, "id", "sim-1", "Controller address")
	flag.StringVar(&config.Name, "name", "LED Controller", "Advertised local name")
	flag.StringVar(&config.Addr, "addr", ":7400", "Listen address")
	flag.StringVar(&config.StateDir, "state-dir", "", "Directory for the flash file (memory if empty)")
	flag.BoolVar(&config.Legacy, "legacy", false, "Acknowledge with the text protocol")
	flag.DurationVar(&config.Latency, "latency", 5*time.Millisecond, "Response latency")
	flag.IntVar(&config.RSSI, "rssi", -50, "Advertised signal strength")
	flag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS")
	flag.BoolVar(&config.NoMDNS, "no-mdns", false, "Do not advertise over mDNS")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write a protocol capture to this file")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	logger := setupLogging(config.LogLevel)
	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "ledctl-sim: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(logger *slog.Logger) error {
	pcfg := peripheral.DefaultConfig(config.ID)
	pcfg.Name = config.Name
	pcfg.LegacyResponses = config.Legacy
	pcfg.Logger = logger.With("component", "peripheral")
	if config.StateDir != "" {
		if err := os.MkdirAll(config.StateDir, 0755); err != nil {
			return fmt.Errorf("state dir: %w", err)
		}
		pcfg.Flash = persistence.NewFileKV(filepath.Join(config.StateDir, config.ID+"-flash.json"))
	}
	dev := peripheral.New(pcfg)

	var protocol log.Logger
	if config.ProtocolLog != "" {
		fl, err := log.NewFileLogger(config.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fl.Close()
		protocol = fl
	}

	srv, err := bridge.NewServer(bridge.ServerConfig{
		Address:       config.Addr,
		Device:        dev,
		ResponseDelay: config.Latency,
		Logger:        logger.With("component", "bridge"),
		Protocol:      protocol,
		OnConnect: func(connID string, remote net.Addr) {
			logger.Info("central connected", "conn", connID, "remote", remote.String())
		},
		OnDisconnect: func(connID string) {
			st := dev.State()
			logger.Info("central disconnected", "conn", connID, "claimed", st.Claimed)
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	logger.Info("simulated controller ready",
		"id", config.ID,
		"name", config.Name,
		"port", srv.Port(),
		"legacy", config.Legacy)

	if !config.NoMDNS {
		adv := bridge.NewAdvertiser(bridge.AdvertiserConfig{Interface: config.Interface})
		if err := adv.Advertise(config.ID, config.Name, srv.Port(), config.RSSI); err != nil {
			// The bridge still works with -peer on the host side.
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			logger.Info("advertising", "service", bridge.ServiceType)
		}
		defer adv.StopAll()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig)

	return nil
}
