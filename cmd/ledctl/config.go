package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/connection"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/power"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/session"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/telemetry"
)

// Transport kinds.
const (
	TransportBLE    = "ble"
	TransportBridge = "bridge"
	TransportSim    = "sim"
)

// Config holds the host configuration. Every field can come from the YAML
// file; flags given on the command line win.
type Config struct {
	UserID      string `yaml:"user_id"`
	Transport   string `yaml:"transport"`
	StateDir    string `yaml:"state_dir"`
	LogLevel    string `yaml:"log_level"`
	ProtocolLog string `yaml:"protocol_log"`
	Telemetry   string `yaml:"telemetry_log"`
	TrustedMode bool   `yaml:"trusted_mode"`
	Interactive bool   `yaml:"interactive"`

	// Bridge peers as id: host:port, used alongside mDNS browsing.
	Peers     map[string]string `yaml:"peers"`
	NoBrowse  bool              `yaml:"no_browse"`
	Interface string            `yaml:"interface"`

	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	ReconnectWindow time.Duration `yaml:"reconnect_window"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	Debounce        time.Duration `yaml:"debounce"`
	Settle          time.Duration `yaml:"telemetry_settle"`

	Backoff connection.BackoffConfig `yaml:"backoff"`
	Budget  BudgetConfig             `yaml:"power"`

	// ConfigFile is the path the YAML was read from.
	ConfigFile string `yaml:"-"`
}

// BudgetConfig mirrors power.Budget for the YAML file.
type BudgetConfig struct {
	LEDCount            int     `yaml:"led_count"`
	MilliampsPerChannel float64 `yaml:"ma_per_channel"`
	CeilingMilliamps    float64 `yaml:"ceiling_ma"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	b := power.DefaultBudget()
	return Config{
		Transport:       TransportBLE,
		LogLevel:        "info",
		ScanTimeout:     connection.DefaultScanTimeout,
		ReconnectWindow: connection.DefaultReconnectWindow,
		Debounce:        session.DefaultDebounce,
		Settle:          telemetry.DefaultSettle,
		Backoff:         connection.DefaultBackoffConfig(),
		Budget: BudgetConfig{
			LEDCount:            b.LEDCount,
			MilliampsPerChannel: b.MilliampsPerChannel,
			CeilingMilliamps:    b.CeilingMilliamps,
		},
	}
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportBLE, TransportBridge, TransportSim:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (use: ble, bridge, sim)", c.Transport))
	}
	if c.UserID == "" && !c.TrustedMode {
		errs = append(errs, errors.New("user id is required unless trusted mode is on"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Debounce < 0 || c.ScanTimeout < 0 || c.ReconnectWindow < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

// PowerBudget returns the configured budget.
func (c *Config) PowerBudget() power.Budget {
	return power.Budget{
		LEDCount:            c.Budget.LEDCount,
		MilliampsPerChannel: c.Budget.MilliampsPerChannel,
		CeilingMilliamps:    c.Budget.CeilingMilliamps,
	}
}

// ManagerConfig builds the connection manager configuration. Stores,
// loggers and callbacks are filled in by the caller.
func (c *Config) ManagerConfig() connection.Config {
	mc := connection.DefaultConfig()
	mc.UserID = c.UserID
	mc.TrustedMode = c.TrustedMode
	mc.ScanTimeout = c.ScanTimeout
	mc.ReconnectWindow = c.ReconnectWindow
	mc.CommandTimeout = c.CommandTimeout
	mc.Backoff = c.Backoff
	mc.Session.Debounce = c.Debounce
	mc.Session.Budget = c.PowerBudget()
	return mc
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use: debug, info, warn, error)", s)
	}
}
