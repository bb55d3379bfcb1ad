// Package interactive provides the interactive command-line interface
// for ledctl.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/connection"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/fault"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/power"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/session"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Shell drives a connection manager from typed commands.
type Shell struct {
	mgr *connection.Manager
	out io.Writer
	rl  *readline.Instance

	// found holds the results of the last scan, for "connect <n>".
	found []transport.Discovered
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("scan"),
	readline.PcItem("connect"),
	readline.PcItem("disconnect"),
	readline.PcItem("forget"),
	readline.PcItem("paired"),
	readline.PcItem("reconnect"),
	readline.PcItem("stop"),
	readline.PcItem("enter"),
	readline.PcItem("set",
		readline.PcItem("brightness"),
		readline.PcItem("speed"),
		readline.PcItem("effect"),
		readline.PcItem("power_mode"),
		readline.PcItem("auto_off"),
	),
	readline.PcItem("color"),
	readline.PcItem("commit"),
	readline.PcItem("exit"),
	readline.PcItem("status"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// New creates a shell reading from the terminal.
func New(mgr *connection.Manager) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ledctl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{mgr: mgr, out: rl.Stdout(), rl: rl}, nil
}

// NewWithOutput creates a shell without a terminal. Commands are fed
// through Execute.
func NewWithOutput(mgr *connection.Manager, out io.Writer) *Shell {
	return &Shell{mgr: mgr, out: out}
}

// Stdout returns a writer that coordinates with the prompt. Use it for log
// output.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if quit := s.Execute(ctx, line); quit {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It reports whether the shell should quit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "scan", "s":
		s.cmdScan(ctx, args)
	case "connect", "c":
		s.cmdConnect(ctx, args)
	case "disconnect":
		s.cmdDisconnect(args)
	case "forget":
		s.cmdForget(ctx, args)
	case "paired", "ls":
		s.cmdPaired()
	case "reconnect":
		s.cmdReconnect()
	case "stop":
		s.mgr.StopScan()
		s.mgr.StopReconnect()
		fmt.Fprintln(s.out, "Stopped scanning and reconnecting")

	case "enter":
		s.withSession(func(sess *session.Session) error { return sess.Enter(ctx) }, "Configuration mode entered")
	case "set":
		s.cmdSet(args)
	case "color":
		s.cmdColor(args)
	case "commit":
		s.withSession(func(sess *session.Session) error { return sess.Commit(ctx) }, "Configuration saved")
	case "exit":
		s.withSession(func(sess *session.Session) error { return sess.Exit(ctx) }, "Configuration mode left")

	case "status":
		s.cmdStatus()

	case "quit", "q":
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
ledctl Commands:
  Connection:
    scan [seconds]            - Scan for controllers
    connect <n|device-id>     - Connect to a scanned or paired controller
    disconnect [device-id]    - Disconnect (default: current)
    forget <device-id>        - Release ownership and drop the pairing
    paired                    - List paired controllers
    reconnect                 - Reconnect to a paired controller
    stop                      - Stop scanning and reconnecting

  Configuration:
    enter                     - Enter configuration mode
    set <param> <value>       - Update a parameter (brightness, speed, effect, ...)
    color <hue> <sat> <val>   - Update the colour (0-255 each)
    commit                    - Save the staged configuration
    exit                      - Leave configuration mode without saving

  General:
    status                    - Show connection and session status
    help                      - Show this help
    quit                      - Exit ledctl`)
}

func (s *Shell) report(err error) {
	var f *fault.Fault
	if errors.As(err, &f) {
		fmt.Fprintf(s.out, "Error: %s (%s)\n", f.UserMessage(), f.Kind)
		return
	}
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

func (s *Shell) cmdScan(ctx context.Context, args []string) {
	var timeout time.Duration
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintln(s.out, "Usage: scan [seconds]")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	fmt.Fprintln(s.out, "Scanning...")
	found, err := s.mgr.Scan(ctx, timeout, func(d transport.Discovered) {
		fmt.Fprintf(s.out, "  found %s %q (RSSI %d)\n", d.ID, d.Name, d.RSSI)
	})
	if err != nil {
		s.report(err)
		return
	}

	s.found = found
	if len(found) == 0 {
		fmt.Fprintln(s.out, "No controllers found")
		return
	}
	fmt.Fprintf(s.out, "Found %d controller(s):\n", len(found))
	for i, d := range found {
		fmt.Fprintf(s.out, "  %d. %s %q (RSSI %d)\n", i+1, d.ID, d.Name, d.RSSI)
	}
}

// resolve turns a scan index or device id into an advertisement.
func (s *Shell) resolve(arg string) transport.Discovered {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(s.found) {
		return s.found[n-1]
	}
	for _, d := range s.found {
		if d.ID == arg {
			return d
		}
	}
	if rec, err := s.mgr.Store().Lookup(arg); err == nil && rec != nil {
		return transport.Discovered{
			ID:               rec.ID,
			Name:             rec.Name,
			RSSI:             rec.RSSI,
			ManufacturerData: rec.ManufacturerData,
			ServiceUUIDs:     rec.ServiceUUIDs,
		}
	}
	return transport.Discovered{ID: arg}
}

func (s *Shell) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: connect <n|device-id>")
		return
	}
	d := s.resolve(args[0])

	fmt.Fprintf(s.out, "Connecting to %s...\n", d.ID)
	link, err := s.mgr.Connect(ctx, d)
	if link == nil {
		s.report(err)
		return
	}
	fmt.Fprintf(s.out, "Connected to %s (ownership: %s)\n", link.ID, link.Ownership)
	if err != nil {
		s.report(err)
		fmt.Fprintln(s.out, "The link stays up but configuration is disabled.")
	}
}

func (s *Shell) cmdDisconnect(args []string) {
	id := ""
	if len(args) > 0 {
		id = args[0]
	} else if l := s.mgr.Current(); l != nil {
		id = l.ID
	}
	if id == "" {
		fmt.Fprintln(s.out, "Not connected")
		return
	}
	if err := s.mgr.Disconnect(id); err != nil {
		s.report(err)
		return
	}
	fmt.Fprintf(s.out, "Disconnected from %s\n", id)
}

func (s *Shell) cmdForget(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: forget <device-id>")
		return
	}
	if err := s.mgr.Forget(ctx, args[0]); err != nil {
		s.report(err)
		return
	}
	fmt.Fprintf(s.out, "Forgot %s\n", args[0])
}

func (s *Shell) cmdPaired() {
	all, err := s.mgr.Store().Get("")
	if err != nil {
		s.report(err)
		return
	}
	if len(all) == 0 {
		fmt.Fprintln(s.out, "No paired controllers")
		return
	}

	fmt.Fprintf(s.out, "\nPaired Controllers (%d):\n", len(all))
	fmt.Fprintln(s.out, "-------------------------------------------")
	for _, p := range all {
		last := "never"
		if !p.LastConnected.IsZero() {
			last = p.LastConnected.Format(time.RFC3339)
		}
		fmt.Fprintf(s.out, "  ID: %s\n", p.ID)
		fmt.Fprintf(s.out, "      Name: %s\n", p.Name)
		fmt.Fprintf(s.out, "      Owner: %s\n", p.OwnerUserID)
		fmt.Fprintf(s.out, "      Connections: %d (last %s)\n", p.ConnectionCount, last)
	}
}

func (s *Shell) cmdReconnect() {
	if s.mgr.Current() != nil {
		fmt.Fprintln(s.out, "Already connected")
		return
	}
	if !s.mgr.OnForeground() {
		fmt.Fprintln(s.out, "Nothing to reconnect to")
		return
	}
	fmt.Fprintln(s.out, "Reconnecting in the background (see status)")
}

// withSession runs fn against the current link's session.
func (s *Shell) withSession(fn func(*session.Session) error, ok string) {
	sess := s.session()
	if sess == nil {
		return
	}
	if err := fn(sess); err != nil {
		s.report(err)
		return
	}
	fmt.Fprintln(s.out, ok)
}

// session returns the current link's session, or prints why there is none.
func (s *Shell) session() *session.Session {
	link := s.mgr.Current()
	if link == nil {
		fmt.Fprintln(s.out, "Not connected")
		return nil
	}
	if link.Session == nil {
		fmt.Fprintf(s.out, "Configuration is disabled for %s (ownership: %s)\n", link.ID, link.Ownership)
		return nil
	}
	return link.Session
}

func (s *Shell) cmdSet(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: set <param> <value>")
		return
	}
	p, ok := wire.ParseParameterID(args[0])
	if !ok {
		names := make([]string, 0, len(wire.Parameters()))
		for _, p := range wire.Parameters() {
			names = append(names, p.String())
		}
		fmt.Fprintf(s.out, "Unknown parameter %q (use: %s)\n", args[0], strings.Join(names, ", "))
		return
	}
	v, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(s.out, "Invalid value: %s\n", args[1])
		return
	}
	s.withSession(func(sess *session.Session) error {
		return sess.UpdateParameter(p, v)
	}, fmt.Sprintf("%s queued", p))
}

func (s *Shell) cmdColor(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(s.out, "Usage: color <hue> <sat> <val>")
		return
	}
	var hsv [3]int
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			fmt.Fprintf(s.out, "Invalid value: %s\n", a)
			return
		}
		hsv[i] = v
	}
	s.withSession(func(sess *session.Session) error {
		return sess.UpdateColor(hsv[0], hsv[1], hsv[2])
	}, "color queued")
}

func (s *Shell) cmdStatus() {
	fmt.Fprintf(s.out, "Status: %s\n", s.mgr.Status())
	if s.mgr.Reconnecting() {
		fmt.Fprintln(s.out, "Reconnect window open")
	}

	link := s.mgr.Current()
	if link == nil {
		return
	}
	fmt.Fprintf(s.out, "Controller: %s %q\n", link.ID, link.Name)
	fmt.Fprintf(s.out, "  Connected: %s\n", link.ConnectedAt.Format(time.RFC3339))
	fmt.Fprintf(s.out, "  Ownership: %s\n", link.Ownership)
	if link.Session == nil {
		return
	}

	fmt.Fprintf(s.out, "  Session:   %s (%d pending)\n", link.Session.State(), link.Session.Pending())
	if snap := link.Session.Snapshot(); snap != nil {
		r, g, b := power.RGB(snap.Hue, snap.Saturation, snap.Value)
		fmt.Fprintf(s.out, "  Brightness %d, speed %d, effect %d, colour #%02x%02x%02x\n",
			snap.Brightness, snap.Speed, snap.Effect, r, g, b)
	}
}
