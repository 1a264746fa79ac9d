package main

import (
	"bufio"
	"fmt"
	"sync/atomic"

	"github.com/google/shlex"

	"sharedadc/core"
	"sharedadc/host/monitor"
	"sharedadc/protocol"
)

// console prints live monitor output and runs interactive commands.
type console struct {
	mon   *monitor.Monitor
	out   *monitor.Printer
	quiet atomic.Bool
}

// hook connects the monitor callbacks to the printer.
func (c *console) hook() {
	c.mon.OnTransfer = func(t monitor.Transfer) {
		if c.quiet.Load() {
			return
		}
		c.out.Transfer(c.name(t.Unit), t)
	}
	c.mon.OnEvent = func(e protocol.Event) {
		if c.quiet.Load() && core.EventKind(e.Kind) == core.EvtResourceBusy {
			return
		}
		c.out.Event(c.name(e.Unit), e)
	}
}

func (c *console) name(id uint8) string {
	if u, ok := c.mon.Unit(id); ok {
		return u.Name
	}
	return fmt.Sprintf("unit%d", id)
}

// commands reads lines until EOF or quit.
func (c *console) commands(scanner *bufio.Scanner) {
	for scanner.Scan() {
		if !c.exec(scanner.Text()) {
			return
		}
	}
}

// exec runs one command line and reports whether to keep reading.
func (c *console) exec(line string) bool {
	w := c.out.W

	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return true
	}
	if len(args) == 0 {
		return true
	}

	switch args[0] {
	case "quit", "exit", "q":
		return false

	case "help", "?":
		printHelp(c.out)

	case "summary", "units":
		c.out.Summary(c.mon)

	case "unit":
		if len(args) != 2 {
			fmt.Fprintln(w, "usage: unit <name>")
			break
		}
		u, ok := c.mon.Lookup(args[1])
		if !ok {
			fmt.Fprintf(w, "Unknown unit: %s\n", args[1])
			break
		}
		fmt.Fprintf(w, "%s: channels=%v period=%d transfers=%d busy=%d misses=%d config_errors=%d failures=%d\n",
			u.Name, u.Channels, u.Period, u.Transfers, u.Busy, u.Misses, u.ConfigErrors, u.Failures)
		if len(u.Last) > 0 {
			c.out.Transfer(u.Name, monitor.Transfer{Unit: u.ID, Seq: u.LastSeq, Clock: u.LastClock, Values: u.Last})
		}

	case "quiet":
		on := len(args) < 2 || args[1] == "on"
		c.quiet.Store(on)

	case "reset":
		c.mon.Reset()

	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for available commands)\n", args[0])
	}
	return true
}

func printHelp(p *monitor.Printer) {
	w := p.W
	fmt.Fprintln(w, "\nAvailable commands:")
	fmt.Fprintln(w, "  help           - Show this help message")
	fmt.Fprintln(w, "  summary        - Print the unit table")
	fmt.Fprintln(w, "  unit \"<name>\"  - Show one unit and its last buffer")
	fmt.Fprintln(w, "  quiet [on|off] - Hide transfers and busy events")
	fmt.Fprintln(w, "  reset          - Clear counters")
	fmt.Fprintln(w, "  quit/exit/q    - Exit the program")
	fmt.Fprintln(w)
}
