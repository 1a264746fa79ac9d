// acq-monitor decodes the telemetry stream of an acquisition device and
// prints transfers and events as they arrive.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"sharedadc/host/monitor"
	"sharedadc/host/serial"
)

var (
	device      = flag.String("device", "/dev/ttyACM0", "Serial device path, or - for stdin")
	baud        = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	list        = flag.Bool("list", false, "List serial ports and exit")
	quiet       = flag.Bool("quiet", false, "Do not print transfers")
	interactive = flag.Bool("interactive", false, "Read commands from stdin while monitoring")
)

func main() {
	flag.Parse()

	stdout := colorable.NewColorableStdout()

	if *list {
		ports, err := serial.ListPorts()
		if err != nil {
			log.Fatalf("%v", err)
		}
		for _, p := range ports {
			fmt.Fprintln(stdout, p)
		}
		return
	}

	con := &console{
		mon: monitor.NewMonitor(),
		out: &monitor.Printer{W: stdout, Color: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())},
	}
	con.quiet.Store(*quiet)
	con.hook()

	if *device == "-" {
		con.mon.Attach(os.Stdin)
	} else {
		cfg := serial.DefaultConfig(*device)
		cfg.Baud = *baud
		fmt.Fprintf(stdout, "Monitoring %s...\n", *device)
		if err := con.mon.ConnectWithConfig(cfg); err != nil {
			log.Fatalf("%v", err)
		}
	}
	defer con.mon.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *interactive && *device != "-" {
		go func() {
			con.commands(bufio.NewScanner(os.Stdin))
			stop()
		}()
	}

	if err := con.mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	con.out.Summary(con.mon)
}
