// Package monitor is the long-lived steady-state loop: it classifies
// network and sensor failures, applies graduated remedies under the shared
// reboot budget, and submits readings upward once per interval.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/battery"
	"github.com/coldsentry-io/coldsentry/internal/cloud"
	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/internal/indicator"
	"github.com/coldsentry-io/coldsentry/internal/pkg/metrics"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/internal/updater"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// DefaultInterval is the pause between monitoring iterations.
const DefaultInterval = 60 * time.Second

// apiFailureIndicatorThreshold is how many consecutive API failures it takes
// before the indicator changes, so a single transient error does not flap
// the LED.
const apiFailureIndicatorThreshold = 3

// ErrNotConfigured means the configuration file is absent. It is the only
// condition that makes the monitor process exit on its own.
var ErrNotConfigured = errors.New("device configuration absent")

// ErrReturnToSetup means the cloud rejected the stored credentials and the
// device was handed back to the provisioning flow.
var ErrReturnToSetup = errors.New("credentials rejected, returning to setup mode")

// CloudAPI is the uplink the loop talks to.
type CloudAPI interface {
	cloud.Reporter
	SetToken(token string)
}

// StateSetter is the slice of the indicator coordinator the loop drives.
type StateSetter interface {
	SetState(name string) error
}

// Monitor runs the failure-escalation loop.
type Monitor struct {
	cfg      *config.Device
	api      CloudAPI
	net      *NetWatch
	sensor   *SensorWatch
	diag     *DiagnosticsBuffer
	ind      StateSetter
	services system.ServiceController

	// Battery, when set, enriches readings with UPS data.
	Battery *battery.Monitor

	// Telemetry, when set, mirrors readings to a local MQTT broker.
	Telemetry *cloud.Telemetry

	// DeviceInfoPath locates the firmware revision record written by the
	// updater.
	DeviceInfoPath string

	// Interval is the pause between iterations.
	Interval time.Duration

	apiFailures int
	online      bool
}

func New(cfg *config.Device, api CloudAPI, net *NetWatch, sensor *SensorWatch, diag *DiagnosticsBuffer, ind StateSetter, services system.ServiceController) *Monitor {
	return &Monitor{
		cfg:      cfg,
		api:      api,
		net:      net,
		sensor:   sensor,
		diag:     diag,
		ind:      ind,
		services: services,
		Interval: DefaultInterval,
	}
}

// RunForever iterates until ctx is cancelled, the configuration disappears,
// or the cloud rejects the credentials. Everything else is handled inside
// the iteration: errors become diagnostics and indicator changes, never an
// exit.
func (m *Monitor) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		if err := m.runOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runOnce is one iteration. Only ErrNotConfigured, ErrReturnToSetup, and
// context cancellation propagate.
func (m *Monitor) runOnce(ctx context.Context) error {
	if m.online = m.net.Check(ctx); !m.online {
		m.setIndicator(indicator.StateNetworkIssue)
		// No sensor read while offline: a reading that cannot be
		// submitted only burns the probe's error budget.
		return nil
	}

	token, err := m.ensureToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	temp, err := m.sensor.Read(ctx)
	if err != nil {
		if m.sensor.NeedsReboot() {
			if berr := m.net.SpendRebootBudget(ctx, "sensor"); berr != nil {
				log.Warn("sensor reboot suppressed", "err", berr)
			}
		}
		m.setIndicator(indicator.StateError)
		return nil
	}

	return m.submit(ctx, temp)
}

// ensureToken returns a usable API token, exchanging stored credentials if
// none is held yet. An empty token with nil error means this iteration
// cannot submit but the loop should keep running.
func (m *Monitor) ensureToken(ctx context.Context) (string, error) {
	data, found, err := m.cfg.Load()
	if err != nil {
		log.Error(err, "cannot read configuration")
		return "", nil
	}
	if !found {
		return "", ErrNotConfigured
	}

	if data.APIToken != "" {
		m.api.SetToken(data.APIToken)
		return data.APIToken, nil
	}

	if data.Email == "" || data.Password == "" {
		return "", ErrNotConfigured
	}

	token, err := m.api.ObtainToken(ctx, data.Email, data.Password)
	if err != nil {
		if faults.IsAuthRejected(err) {
			return "", m.returnToSetup(ctx)
		}
		log.Warn("token exchange failed", "err", err)
		m.countAPIFailure()
		return "", nil
	}

	if err := m.cfg.SetAPIToken(token); err != nil {
		log.Warn("cannot persist API token", "err", err)
	}
	m.api.SetToken(token)
	return token, nil
}

func (m *Monitor) submit(ctx context.Context, temp float64) error {
	data, _, err := m.cfg.Load()
	if err != nil {
		log.Error(err, "cannot read configuration")
		return nil
	}

	reading := cloud.Reading{
		SensorName:       data.SensorName,
		TemperatureC:     temp,
		Timestamp:        time.Now().Unix(),
		FirmwareRevision: m.firmwareRevision(),
	}
	if m.Battery != nil {
		if st := m.Battery.FullStatus(ctx); st != nil {
			reading.BatteryLevel = &st.Level
			reading.BatteryCharging = &st.Charging
		}
	}

	status, err := m.api.SubmitReading(ctx, reading)
	switch {
	case faults.IsAuthRejected(err):
		metrics.ReadingsSubmitted.WithLabelValues("auth_rejected").Inc()
		return m.returnToSetup(ctx)
	case err != nil || status >= 300:
		metrics.ReadingsSubmitted.WithLabelValues("http_error").Inc()
		log.Warn("reading submission failed", "status", status, "err", err)
		m.countAPIFailure()
		return nil
	}

	metrics.ReadingsSubmitted.WithLabelValues("success").Inc()
	m.apiFailures = 0
	m.setIndicator(indicator.StateRunning)
	m.Telemetry.PublishReading(ctx, reading)

	// The mirror sees the diagnostics before the flush clears them.
	if entries, err := m.diag.Entries(); err == nil {
		m.Telemetry.PublishDiagnostics(ctx, entries)
	}
	if err := m.diag.Flush(ctx, m.api); err != nil {
		log.Warn("cannot flush buffered diagnostics", "err", err)
	}
	return nil
}

// returnToSetup wipes the rejected credentials and hands the device back to
// the provisioning flow. The returned error stops the loop; systemd takes
// it from there.
func (m *Monitor) returnToSetup(ctx context.Context) error {
	log.Warn("cloud rejected credentials, returning to setup mode")
	if err := m.cfg.ClearCloudCredentials(); err != nil {
		log.Error(err, "cannot clear credentials")
	}
	// The setup UI surfaces the recorded reason on its first page.
	if err := m.cfg.SetError("cloud rejected the device credentials"); err != nil {
		log.Warn("cannot record provisioning error", "err", err)
	}
	system.EnterSetupMode(ctx, m.services)
	return ErrReturnToSetup
}

func (m *Monitor) countAPIFailure() {
	m.apiFailures++
	if m.apiFailures >= apiFailureIndicatorThreshold {
		m.setIndicator(indicator.StateAPIIssue)
	}
}

func (m *Monitor) setIndicator(state string) {
	if m.ind == nil {
		return
	}
	if err := m.ind.SetState(state); err != nil {
		log.Warn("cannot set indicator", "state", state, "err", err)
	}
}

func (m *Monitor) firmwareRevision() string {
	if m.DeviceInfoPath == "" {
		return ""
	}
	var info updater.DeviceInfo
	if found, err := store.New(m.DeviceInfoPath).Load(&info); err != nil || !found {
		return ""
	}
	return info.FirmwareRevision
}
