package monitor

import (
	"fmt"
	"io"
	"strings"

	"sharedadc/core"
	"sharedadc/protocol"
)

// ANSI colors; the commands wrap stdout with go-colorable so they also
// render on Windows consoles.
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorGreen  = "\x1b[32m"
)

// Printer renders monitor output, optionally in color.
type Printer struct {
	W     io.Writer
	Color bool
}

func (p *Printer) paint(color, s string) string {
	if !p.Color {
		return s
	}
	return color + s + colorReset
}

// Transfer prints one reassembled buffer.
func (p *Printer) Transfer(name string, t Transfer) {
	fmt.Fprintf(p.W, "%s seq=%d clock=%d samples=%s\n",
		p.paint(colorGreen, name), t.Seq, t.Clock, joinValues(t.Values, 16))
}

// Event prints one event frame.
func (p *Printer) Event(name string, e protocol.Event) {
	kind := core.EventKind(e.Kind)
	line := fmt.Sprintf("%s %s clock=%d", name, kind, e.Clock)
	switch kind {
	case core.EvtResourceBusy:
		line += fmt.Sprintf(" misses=%d", e.Misses)
		fmt.Fprintln(p.W, p.paint(colorYellow, line))
	case core.EvtConfigurationError, core.EvtTransferFailed, core.EvtInvariantViolation:
		fmt.Fprintln(p.W, p.paint(colorRed, line))
	default:
		fmt.Fprintln(p.W, line)
	}
}

// Summary prints the device status and a table of units.
func (p *Printer) Summary(m *Monitor) {
	st := m.Status()

	fmt.Fprintln(p.W, "\n=== Acquisition ===")
	fmt.Fprintf(p.W, "Version: %s\n", st.Version)
	fmt.Fprintf(p.W, "Units: %d\n", st.Units)
	fmt.Fprintf(p.W, "Link: frames=%d lost=%d resyncs=%d discarded=%d\n",
		st.Link.Frames, st.Link.Lost, st.Link.Resyncs, st.Link.Discarded)
	if st.Unexpected > 0 {
		fmt.Fprintln(p.W, p.paint(colorYellow, fmt.Sprintf("Unexpected completions: %d", st.Unexpected)))
	}
	if st.Halted {
		fmt.Fprintln(p.W, p.paint(colorRed, "HALTED"))
	} else if st.Stopped {
		fmt.Fprintln(p.W, "Stopped")
	}

	fmt.Fprintf(p.W, "\n%-4s %-16s %-12s %9s %6s %6s %6s %6s  %s\n",
		"id", "name", "channels", "transfers", "gaps", "busy", "cfg", "fail", "last")
	for _, u := range m.Units() {
		line := fmt.Sprintf("%-4d %-16s %-12s %9d %6d %6d %6d %6d  %s",
			u.ID, u.Name, joinChannels(u.Channels), u.Transfers, u.SeqGaps+u.Incomplete,
			u.Busy, u.ConfigErrors, u.Failures, joinValues(u.Last, 8))
		if u.ConfigErrors > 0 || u.Failures > 0 {
			line = p.paint(colorRed, line)
		}
		fmt.Fprintln(p.W, line)
	}
	fmt.Fprintln(p.W)
}

func joinChannels(ch []uint8) string {
	parts := make([]string, len(ch))
	for i, c := range ch {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, ",")
}

func joinValues(v []uint16, limit int) string {
	n := len(v)
	if n > limit {
		n = limit
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprint(v[i])
	}
	s := "[" + strings.Join(parts, " ")
	if len(v) > limit {
		s += fmt.Sprintf(" ...+%d", len(v)-limit)
	}
	return s + "]"
}
