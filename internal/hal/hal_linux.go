//go:build linux

package hal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

const (
	ledGPIO    = 27
	buttonGPIO = 17

	gpioRoot = "/sys/class/gpio"
	w1Root   = "/sys/bus/w1/devices"
)

// sysfsHAL drives the hardware through the kernel's sysfs interfaces.
type sysfsHAL struct {
	ledPath    string
	buttonPath string
	sensorPath string
}

// New claims the GPIO lines and returns the hardware port.
func New() (HAL, error) {
	h := &sysfsHAL{}

	if err := exportGPIO(ledGPIO, "out"); err != nil {
		return nil, fmt.Errorf("claim led gpio: %w", err)
	}
	h.ledPath = filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", ledGPIO), "value")

	if err := exportGPIO(buttonGPIO, "in"); err != nil {
		return nil, fmt.Errorf("claim button gpio: %w", err)
	}
	h.buttonPath = filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", buttonGPIO), "value")

	return h, nil
}

func exportGPIO(pin int, direction string) error {
	pinDir := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", pin))
	if _, err := os.Stat(pinDir); err != nil {
		if err := os.WriteFile(filepath.Join(gpioRoot, "export"), []byte(strconv.Itoa(pin)), 0o200); err != nil {
			return err
		}
		// The kernel needs a moment to create the pin directory and fix up
		// its permissions.
		time.Sleep(100 * time.Millisecond)
	}
	return os.WriteFile(filepath.Join(pinDir, "direction"), []byte(direction), 0o644)
}

func (h *sysfsHAL) SetLED(on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return os.WriteFile(h.ledPath, []byte(v), 0o644)
}

func (h *sysfsHAL) ButtonPressed() (bool, error) {
	data, err := os.ReadFile(h.buttonPath)
	if err != nil {
		return false, err
	}
	// Active low: the pull-up holds the line at 1 until the button shorts
	// it to ground.
	return strings.TrimSpace(string(data)) == "0", nil
}

func (h *sysfsHAL) AcquireSensor(ctx context.Context) error {
	entries, err := os.ReadDir(w1Root)
	if err != nil {
		return fmt.Errorf("%w: %v", faults.ErrSensorUnavailable, err)
	}

	for _, e := range entries {
		// DS18B20 probes enumerate with family code 28.
		if strings.HasPrefix(e.Name(), "28-") {
			h.sensorPath = filepath.Join(w1Root, e.Name(), "temperature")
			log.Debug("acquired temperature probe", "device", e.Name())
			return nil
		}
	}
	return fmt.Errorf("%w: no 1-wire probe enumerated", faults.ErrSensorUnavailable)
}

func (h *sysfsHAL) ReadTemperature(ctx context.Context) (float64, error) {
	if h.sensorPath == "" {
		if err := h.AcquireSensor(ctx); err != nil {
			return 0, err
		}
	}

	data, err := os.ReadFile(h.sensorPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", faults.ErrSensorUnavailable, err)
	}

	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable reading %q", faults.ErrSensorUnavailable, strings.TrimSpace(string(data)))
	}
	return float64(milli) / 1000.0, nil
}

func (h *sysfsHAL) Close() error {
	return h.SetLED(false)
}
