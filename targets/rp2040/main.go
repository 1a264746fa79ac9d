//go:build rp2040

package main

import (
	"machine"
	"time"

	"sharedadc/core"
	"sharedadc/telemetry"
)

var (
	// Debug counters
	msgerrors uint32
	halted    bool
)

// telemetryQueue is how many events may wait for the USB writer.
const telemetryQueue = 32

// units sampled by the firmware. Periods are in microseconds of the 1MHz
// hardware timer.
var units = []core.UnitSpec{
	{
		Name:   "thermistors",
		Config: core.ChannelConfig{Channels: []uint8{0, 1}, SampleTime: core.SampleTime239_5},
		Period: 100000,
	},
	{
		Name:      "current",
		Config:    core.ChannelConfig{Channels: []uint8{2}, SampleTime: core.SampleTime28_5},
		BufferLen: 8,
		Period:    50000,
	},
	{
		Name:   "chip_temp",
		Config: core.ChannelConfig{Channels: []uint8{tempChannel}, SampleTime: core.SampleTime239_5},
		Period: 1000000,
	},
}

func main() {
	// CRITICAL: Disable watchdog on boot to clear any previous state
	// This prevents issues with watchdog persisting across resets
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	// Initialize USB CDC immediately
	InitUSB()
	frames := telemetry.NewFrameSink(&usbWriter{})
	// USB writes can stall while the host is away; keep them off the
	// acquisition path.
	sink := core.NewAsyncSink(frames, telemetryQueue)

	var conv core.Converter
	var service func() bool
	if GetMode().External {
		ext, err := NewExternalConverter(spi0a)
		if err != nil {
			halt()
		}
		conv = ext
		service = func() bool { return false }
	} else {
		rp := NewRpConverter()
		conv = rp
		service = rp.Service
	}

	acq, err := core.New(conv, hwClock{}, units, core.Options{
		Tick: 10000,
		Sink: sink,
		Debug: func(line string) {
			println(line)
		},
	})
	if err != nil {
		println("acquisition:", err.Error())
		halt()
	}

	// Give the host time to open the port, then announce the units
	time.Sleep(500 * time.Millisecond)
	if err := frames.Announce(acq); err != nil {
		msgerrors++
	}

	acq.Start()

	// Main loop
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
				}
			}()

			// Run the conversions of the in-flight transfer
			service()

			// Dispatch due scheduler ticks
			acq.Poll()
		}()

		if acq.Halted() && !halted {
			halted = true
			println("acquisition halted:", acq.Err().Error())
			frameErrs, lastErr := frames.Errors()
			println("uptime", hwClock{}.Now()/clockFreq, "s, loop errors", msgerrors,
				", frame errors", frameErrs, ", dropped", sink.Dropped(),
				", usb stalls", consecutiveWriteFailures)
			if lastErr != nil {
				println("last frame error:", lastErr.Error())
			}
		}

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// halt parks the firmware after a fatal setup error.
func halt() {
	for {
		time.Sleep(time.Second)
	}
}
