// Command ledctl-log views and analyzes protocol captures.
//
// Captures are written by ledctl and ledctl-sim when run with the
// -protocol-log flag.
//
// Usage:
//
//	ledctl-log <command> [flags] <file.llog>
//
// Commands:
//
//	view     View a capture in human-readable format
//	export   Export a capture to JSON lines or CSV
//	filter   Filter a capture and write a new one
//	stats    Show statistics about a capture
//
// Examples:
//
//	# View everything
//	ledctl-log view host.llog
//
//	# Only commits and their acknowledgments
//	ledctl-log view -opcode commit_config host.llog
//
//	# Round-trip times per link
//	ledctl-log stats host.llog
//
//	# Errors of one controller into their own capture
//	ledctl-log filter -device-id desk -category error -o desk-errors.llog host.llog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/AatozInnoInc/bt-led-controller-sub000/cmd/ledctl-log/commands"
)

const usage = `ledctl-log - LED controller protocol capture analyzer

Usage:
  ledctl-log <command> [flags] <file.llog>

Commands:
  view     View a capture in human-readable format
  export   Export a capture to JSON lines or CSV
  filter   Filter a capture and write a new one
  stats    Show statistics about a capture

Use "ledctl-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set with the shared selection flags bound to opts.
func newFlagSet(name, synopsis string, opts *commands.Options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "ledctl-log %s - %s\n\nUsage:\n  ledctl-log %s [flags] <file.llog>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by controller address")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&opts.Opcode, "opcode", "", "Filter by command opcode (e.g. commit_config)")
	return fs
}

// capturePath parses args and returns the capture file argument.
func capturePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runView(args []string) {
	var opts commands.Options
	fs := newFlagSet("view", "View a capture in human-readable format", &opts)
	path := capturePath(fs, args)
	fail(commands.RunView(path, opts, os.Stdout))
}

func runExport(args []string) {
	var opts commands.Options
	fs := newFlagSet("export", "Export a capture to JSON lines or CSV", &opts)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := capturePath(fs, args)
	fail(commands.RunExport(path, *format, *output, opts))
}

func runFilter(args []string) {
	var opts commands.Options
	fs := newFlagSet("filter", "Filter a capture and write a new one", &opts)
	output := fs.String("o", "", "Output file (required)")
	path := capturePath(fs, args)
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}
	fail(commands.RunFilter(path, *output, opts, os.Stdout))
}

func runStats(args []string) {
	var opts commands.Options
	fs := newFlagSet("stats", "Show statistics about a capture", &opts)
	path := capturePath(fs, args)
	fail(commands.RunStats(path, opts, os.Stdout))
}
