package system

import (
	"context"
	"strings"

	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

const systemctl = "systemctl"

// Systemd drives services through systemctl.
type Systemd struct {
	run runner.Runner
}

var _ ServiceController = (*Systemd)(nil)

func NewSystemd(run runner.Runner) *Systemd {
	return &Systemd{run: run}
}

func (s *Systemd) Start(ctx context.Context, name string) error {
	_, err := s.run.Run(ctx, systemctl, "start", name)
	return err
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	_, err := s.run.Run(ctx, systemctl, "stop", name)
	return err
}

func (s *Systemd) Enable(ctx context.Context, name string) error {
	_, err := s.run.Run(ctx, systemctl, "enable", name)
	return err
}

func (s *Systemd) Disable(ctx context.Context, name string) error {
	_, err := s.run.Run(ctx, systemctl, "disable", name)
	return err
}

func (s *Systemd) Restart(ctx context.Context, name string) error {
	_, err := s.run.Run(ctx, systemctl, "restart", name)
	return err
}

// IsActive probes `systemctl status` for the active (running) marker.
// A nonzero exit is an answer (inactive/failed), not a fault.
func (s *Systemd) IsActive(ctx context.Context, name string) (bool, error) {
	res, err := s.run.Probe(ctx, systemctl, "status", name, "--no-pager")
	if err != nil {
		return false, err
	}
	return strings.Contains(res.Stdout, "active (running)"), nil
}

// DaemonReload tells systemd to re-read unit files after an update copies
// new ones into place.
func (s *Systemd) DaemonReload(ctx context.Context) error {
	_, err := s.run.Run(ctx, systemctl, "daemon-reload")
	return err
}

// EnsureUpdaterActive (re)enables and starts the updater timer. Runs on every
// mode selection so the timer survives updates that ship new unit files and
// devices where it was never enabled.
func EnsureUpdaterActive(ctx context.Context, svc ServiceController) {
	if err := svc.Enable(ctx, UpdaterTimer); err != nil {
		log.Error(err, "failed to enable updater timer")
	}
	if err := svc.Start(ctx, UpdaterTimer); err != nil {
		log.Error(err, "failed to start updater timer")
	}
}

// EnterSetupMode flips the device to the provisioning services. Used by the
// button's reset-to-setup action after credentials are cleared.
func EnterSetupMode(ctx context.Context, svc ServiceController) {
	for _, step := range []struct {
		op   func(context.Context, string) error
		unit string
	}{
		{svc.Enable, SetupService},
		{svc.Restart, SetupService},
		{svc.Disable, MonitorService},
		{svc.Stop, MonitorService},
	} {
		if err := step.op(ctx, step.unit); err != nil {
			log.Error(err, "setup mode transition step failed", "unit", step.unit)
		}
	}
}

// EnterSensorMode leaves the provisioning services, hands wlan back to
// NetworkManager, and starts monitoring.
func EnterSensorMode(ctx context.Context, svc ServiceController, run runner.Runner) {
	for _, unit := range []string{HostapdService, DnsmasqService} {
		if err := svc.Stop(ctx, unit); err != nil {
			log.Error(err, "failed to stop provisioning unit", "unit", unit)
		}
	}

	// Re-enable NetworkManager control of wlan0.
	if _, err := run.Run(ctx, "nmcli", "device", "set", "wlan0", "managed", "yes"); err != nil {
		log.Error(err, "failed to return wlan0 to NetworkManager")
	}
	if err := svc.Restart(ctx, NetworkManagerService); err != nil {
		log.Error(err, "failed to restart NetworkManager")
	}

	for _, step := range []struct {
		op   func(context.Context, string) error
		unit string
	}{
		{svc.Enable, MonitorService},
		{svc.Restart, MonitorService},
		{svc.Disable, SetupService},
		{svc.Stop, SetupService},
	} {
		if err := step.op(ctx, step.unit); err != nil {
			log.Error(err, "sensor mode transition step failed", "unit", step.unit)
		}
	}
}
