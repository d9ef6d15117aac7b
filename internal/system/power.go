package system

import (
	"context"

	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// OSPower reboots through the init system rather than the raw syscall, so
// units get their stop jobs and filesystems are flushed.
type OSPower struct {
	run runner.Runner
}

var _ Power = (*OSPower)(nil)

func NewOSPower(run runner.Runner) *OSPower {
	return &OSPower{run: run}
}

func (p *OSPower) Reboot(ctx context.Context) error {
	log.Warn("issuing system reboot")
	_, err := p.run.Run(ctx, systemctl, "reboot")
	return err
}

// W1Modules reloads the 1-wire kernel modules behind the temperature probe.
// Remove then re-add, so a wedged bus master is fully reinitialized.
type W1Modules struct {
	run runner.Runner
}

var _ SensorModules = (*W1Modules)(nil)

func NewW1Modules(run runner.Runner) *W1Modules {
	return &W1Modules{run: run}
}

func (m *W1Modules) Reload(ctx context.Context) error {
	log.Info("reloading sensor kernel modules")

	// Removal may fail if a module was never loaded; that is fine, the
	// subsequent add is what matters.
	if _, err := m.run.Probe(ctx, "modprobe", "-r", "w1_therm", "w1_gpio"); err != nil {
		return err
	}

	_, err := m.run.Run(ctx, "modprobe", "w1_gpio", "w1_therm")
	return err
}
