// acq-sim runs a shared-channel acquisition against a simulated converter
// and streams its telemetry to the console, a serial port or a Modbus server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-colorable"

	"sharedadc/config"
	"sharedadc/host/serial"
	"sharedadc/telemetry"
)

var (
	configPath = flag.String("config", "", "YAML configuration (default: built-in two-unit setup)")
	steps      = flag.Int("steps", 0, "Override simulation.steps")
	device     = flag.String("serial", "", "Override telemetry.serial.device")
	modbusAddr = flag.String("modbus", "", "Override telemetry.modbus.endpoint")
	logLevel   = flag.String("log", "", "Override telemetry.log (none, events, verbose)")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg = c
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	stdout := colorable.NewColorableStdout()
	out := outputs{Log: stdout}

	if s := cfg.Telemetry.Serial; s != nil {
		sc := serial.DefaultConfig(s.Device)
		sc.Baud = s.Baud
		port, err := serial.Open(sc)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer port.Close()
		out.Frames = port
	}

	if m := cfg.Telemetry.Modbus; m != nil {
		client, err := telemetry.DialModbus(telemetry.ModbusClientConfig{
			Endpoint: m.Endpoint,
			Timeout:  time.Duration(m.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer client.Close()
		out.Modbus = client
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(stdout, "Simulating %d units for %d steps...\n", len(cfg.Acquisition.Units), cfg.Simulation.Steps)
	res, err := run(ctx, cfg, out)
	if err != nil {
		log.Fatalf("%v", err)
	}
	res.print(stdout, cfg.Acquisition.ClockHz)

	if res.Halted != nil {
		os.Exit(2)
	}
}

func applyFlags(cfg *config.Config) {
	if *steps > 0 {
		cfg.Simulation.Steps = *steps
	}
	if *device != "" {
		if cfg.Telemetry.Serial == nil {
			cfg.Telemetry.Serial = &config.SerialConfig{Baud: 250000}
		}
		cfg.Telemetry.Serial.Device = *device
	}
	if *modbusAddr != "" {
		if cfg.Telemetry.Modbus == nil {
			cfg.Telemetry.Modbus = &config.ModbusConfig{SlaveID: 1, Stride: 32, TimeoutMs: 1000}
		}
		cfg.Telemetry.Modbus.Endpoint = *modbusAddr
	}
	if *logLevel != "" {
		cfg.Telemetry.Log = *logLevel
	}
}
