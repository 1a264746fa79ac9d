package serial

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Device != "/dev/ttyACM0" || cfg.Baud != 250000 || !cfg.Exclusive {
		t.Errorf("DefaultConfig = %+v", *cfg)
	}
}

func TestOpenNilConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("Open(nil) succeeded")
	}
}

func TestLockPath(t *testing.T) {
	LockDir = t.TempDir()

	p := LockPath("/dev/ttyACM0")
	if filepath.Dir(p) != LockDir {
		t.Errorf("lock %s outside %s", p, LockDir)
	}
	if base := filepath.Base(p); base != "sharedadc-dev_ttyACM0.lock" {
		t.Errorf("lock file name %q", base)
	}
	if strings.Contains(filepath.Base(LockPath("COM3")), ":") {
		t.Error("lock name kept a separator")
	}
}

func TestLockDeviceIsExclusive(t *testing.T) {
	LockDir = t.TempDir()

	first, err := LockDevice("/dev/ttyUSB7")
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	if _, err := LockDevice("/dev/ttyUSB7"); !errors.Is(err, ErrPortBusy) {
		t.Fatalf("second lock: got %v, want ErrPortBusy", err)
	}

	other, err := LockDevice("/dev/ttyUSB8")
	if err != nil {
		t.Fatalf("lock on a different device failed: %v", err)
	}
	other.Unlock()

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	again, err := LockDevice("/dev/ttyUSB7")
	if err != nil {
		t.Fatalf("relock after Unlock failed: %v", err)
	}
	again.Unlock()
}
