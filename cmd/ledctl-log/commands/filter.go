package commands

import (
	"fmt"
	"io"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
)

// RunFilter writes the matching events of the capture at path to a new
// capture file and reports the count on w.
func RunFilter(path, output string, opts Options, w io.Writer) error {
	if output == "" {
		return fmt.Errorf("output file required")
	}
	filter, err := opts.Filter()
	if err != nil {
		return err
	}

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("create output capture: %w", err)
	}

	count := 0
	_, err = each(path, filter, func(e log.Event) error {
		logger.Log(e)
		count++
		return nil
	})
	if cerr := logger.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
