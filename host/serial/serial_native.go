//go:build !tinygo

package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

// NativePort wraps the tarm/serial implementation
type NativePort struct {
	port *serial.Port
	lock *Lock
	cfg  *Config
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var lock *Lock
	if cfg.Exclusive {
		l, err := LockDevice(cfg.Device)
		if err != nil {
			return nil, err
		}
		lock = l
	}

	serialConfig := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{
		port: port,
		lock: lock,
		cfg:  cfg,
	}, nil
}

// Read reads data from the serial port
func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes data to the serial port
func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the serial port and releases its lock
func (p *NativePort) Close() error {
	var err error
	if p.port != nil {
		err = p.port.Close()
	}
	if p.lock != nil {
		p.lock.Unlock()
	}
	return err
}

// Flush discards unread input so a reader starts on fresh frames.
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}
