//go:build rp2040

package main

import (
	"errors"
	"machine"
)

var errUSBDisconnected = errors.New("usb: host not reading")

// consecutiveWriteFailures counts writes that made no progress.
var consecutiveWriteFailures uint32

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on RP2040
func InitUSB() {
	// Configure machine.Serial (which is USB CDC on RP2040)
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// usbWriter writes telemetry frames to USB CDC. While the host is away
// frames are dropped instead of blocking the main loop.
type usbWriter struct{}

// Write writes all of data, handling partial writes
func (usbWriter) Write(data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := machine.Serial.Write(data[written:])
		if err != nil || n == 0 {
			// No progress - likely disconnect
			consecutiveWriteFailures++
			return written, errUSBDisconnected
		}
		written += n
	}

	// Successfully wrote everything
	consecutiveWriteFailures = 0
	return written, nil
}
