//go:build !tinygo

package serial

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrPortBusy is returned when another process holds the device lock.
var ErrPortBusy = errors.New("serial port in use by another process")

// LockDir is where device lock files are created.
var LockDir = os.TempDir()

// Lock is an advisory lock on a serial device, held until Unlock.
type Lock struct {
	fl *flock.Flock
}

// LockPath returns the lock file used for device.
func LockPath(device string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(filepath.Clean(device))
	return filepath.Join(LockDir, "sharedadc-"+strings.TrimLeft(name, "_.")+".lock")
}

// LockDevice takes the lock for device without blocking.
func LockDevice(device string) (*Lock, error) {
	fl := flock.New(LockPath(device))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", device, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", device, ErrPortBusy)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}
