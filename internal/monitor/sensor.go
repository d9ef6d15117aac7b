package monitor

import (
	"context"
	"fmt"

	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/internal/pkg/metrics"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// Consecutive-error thresholds for the sensor escalation, mirroring the
// network ladder: reload the kernel modules early, spend the shared reboot
// budget late.
const (
	sensorReloadThreshold = 3
	sensorRebootThreshold = 10
)

// SensorWatch reads the probe with escalating remedies. The consecutive
// error counter lives in memory only; it needs to survive loop iterations,
// not process restarts.
type SensorWatch struct {
	hal     hal.HAL
	modules system.SensorModules
	diag    *DiagnosticsBuffer

	errors   int
	acquired bool
}

func NewSensorWatch(h hal.HAL, modules system.SensorModules, diag *DiagnosticsBuffer) *SensorWatch {
	return &SensorWatch{hal: h, modules: modules, diag: diag}
}

// Errors returns the consecutive failure count.
func (s *SensorWatch) Errors() int { return s.errors }

// NeedsReboot reports whether failures have reached the reboot threshold.
func (s *SensorWatch) NeedsReboot() bool { return s.errors >= sensorRebootThreshold }

// Read returns the current temperature, applying remedies first when prior
// reads failed. Any failure increments the counter and is buffered as a
// diagnostic; a success resets the counter.
func (s *SensorWatch) Read(ctx context.Context) (float64, error) {
	if s.errors >= sensorReloadThreshold {
		log.Warn("reloading sensor modules", "consecutive_errors", s.errors)
		if err := s.modules.Reload(ctx); err != nil {
			return 0, s.fail(fmt.Errorf("module reload: %w", err))
		}
		s.acquired = false
	}

	if !s.acquired {
		if err := s.hal.AcquireSensor(ctx); err != nil {
			return 0, s.fail(fmt.Errorf("acquire sensor: %w", err))
		}
		s.acquired = true
	}

	temp, err := s.hal.ReadTemperature(ctx)
	if err != nil {
		return 0, s.fail(err)
	}

	s.errors = 0
	return temp, nil
}

func (s *SensorWatch) fail(err error) error {
	s.errors++
	metrics.SensorFailures.Inc()
	log.Warn("sensor read failed", "consecutive_errors", s.errors, "err", err)
	if s.diag != nil {
		if derr := s.diag.Append(fmt.Sprintf("sensor failure %d: %v", s.errors, err)); derr != nil {
			log.Warn("cannot buffer diagnostic", "err", derr)
		}
	}
	return err
}
