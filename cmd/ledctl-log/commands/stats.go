package commands

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/log"
	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Stats aggregates a capture.
type Stats struct {
	TotalEvents int
	Errors      int
	Start, End  time.Time
	Truncated   bool

	ByLayer     map[log.Layer]int
	ByCategory  map[log.Category]int
	ByDirection map[log.Direction]int

	// Commands counts commands sent per opcode, AckErrors rejections per code.
	Commands  map[wire.Opcode]int
	AckErrors map[wire.ErrorCode]int

	Connections map[string]*ConnectionStats
}

// ConnectionStats covers one link.
type ConnectionStats struct {
	ID        string
	DeviceID  string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int

	Responses int
	TotalRTT  time.Duration
	MaxRTT    time.Duration
}

// AverageRTT returns the mean command round trip, or zero.
func (c *ConnectionStats) AverageRTT() time.Duration {
	if c.Responses == 0 {
		return 0
	}
	return c.TotalRTT / time.Duration(c.Responses)
}

func newStats() *Stats {
	return &Stats{
		ByLayer:     map[log.Layer]int{},
		ByCategory:  map[log.Category]int{},
		ByDirection: map[log.Direction]int{},
		Commands:    map[wire.Opcode]int{},
		AckErrors:   map[wire.ErrorCode]int{},
		Connections: map[string]*ConnectionStats{},
	}
}

func (s *Stats) add(e log.Event) {
	ts := e.Timestamp
	if s.TotalEvents == 0 || ts.Before(s.Start) {
		s.Start = ts
	}
	if ts.After(s.End) {
		s.End = ts
	}
	s.TotalEvents++
	s.ByLayer[e.Layer]++
	s.ByCategory[e.Category]++
	s.ByDirection[e.Direction]++
	if e.Error != nil {
		s.Errors++
	}

	c := s.Connections[e.ConnectionID]
	if c == nil {
		c = &ConnectionStats{ID: e.ConnectionID, FirstSeen: ts, LastSeen: ts}
		s.Connections[e.ConnectionID] = c
	}
	c.Events++
	c.LastSeen = later(c.LastSeen, ts)
	if c.DeviceID == "" {
		c.DeviceID = e.DeviceID
	}

	m := e.Message
	if m == nil {
		return
	}
	if m.Type == log.MessageTypeCommand && m.Opcode != nil {
		s.Commands[*m.Opcode]++
	}
	if m.ErrorCode != nil {
		s.AckErrors[*m.ErrorCode]++
	}
	if rtt := m.RoundTrip; rtt != nil {
		c.Responses++
		c.TotalRTT += *rtt
		c.MaxRTT = max(c.MaxRTT, *rtt)
	}
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// RunStats analyzes the capture at path and prints statistics.
func RunStats(path string, opts Options, w io.Writer) error {
	filter, err := opts.Filter()
	if err != nil {
		return err
	}
	stats := newStats()
	stats.Truncated, err = each(path, filter, func(e log.Event) error {
		stats.add(e)
		return nil
	})
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

// printCounts prints the non-zero counts of m in key order.
func printCounts[K cmp.Ordered](w io.Writer, title string, width int, m map[K]int, name func(K) string) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if m[k] > 0 {
			fmt.Fprintf(w, "  %-*s %d\n", width, name(k)+":", m[k])
		}
	}
}

func str[T fmt.Stringer](v T) string { return v.String() }

func printStats(w io.Writer, s *Stats) {
	fmt.Fprintln(w, "=== LED Controller Protocol Statistics ===")
	fmt.Fprintln(w)
	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n\n", s.End.Sub(s.Start).Round(time.Second))
	}
	fmt.Fprintf(w, "Total Events: %d\n", s.TotalEvents)

	printCounts(w, "Events by Layer", 12, s.ByLayer, str[log.Layer])
	printCounts(w, "Events by Category", 12, s.ByCategory, str[log.Category])
	printCounts(w, "Events by Direction", 12, s.ByDirection, str[log.Direction])
	printCounts(w, "Commands", 20, s.Commands, str[wire.Opcode])
	printCounts(w, "Rejected Commands", 24, s.AckErrors, str[wire.ErrorCode])

	fmt.Fprintf(w, "\nConnections: %d\n", len(s.Connections))
	conns := slices.SortedFunc(maps.Values(s.Connections), func(a, b *ConnectionStats) int {
		return a.FirstSeen.Compare(b.FirstSeen)
	})
	for _, c := range conns {
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n",
			shortenConnID(c.ID), c.Events, c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
		if c.DeviceID != "" {
			fmt.Fprintf(w, "           Device: %s\n", c.DeviceID)
		}
		if c.Responses > 0 {
			fmt.Fprintf(w, "           RTT: avg %s, max %s over %d responses\n",
				formatDuration(c.AverageRTT()), formatDuration(c.MaxRTT), c.Responses)
		}
	}

	if s.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", s.Errors)
	}
	if s.Truncated {
		fmt.Fprintf(w, "\n%s\n", truncatedNote)
	}
}
