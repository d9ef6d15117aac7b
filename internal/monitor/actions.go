package monitor

import (
	"context"

	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// DeviceActions implements the button's remedies against the real device.
type DeviceActions struct {
	cfg      *config.Device
	services system.ServiceController
	power    system.Power

	// StatePaths are the persisted state files wiped by a factory reset,
	// in addition to the configuration itself.
	StatePaths []string
}

func NewDeviceActions(cfg *config.Device, services system.ServiceController, power system.Power) *DeviceActions {
	return &DeviceActions{
		cfg:      cfg,
		services: services,
		power:    power,
		StatePaths: []string{
			DefaultNetworkStatusPath,
			DefaultDiagnosticsPath,
		},
	}
}

// Reboot restarts the device.
func (a *DeviceActions) Reboot(ctx context.Context) error {
	return a.power.Reboot(ctx)
}

// ResetToSetup clears the stored network credentials and brings up the
// provisioning services. The cloud credentials survive so a re-provisioned
// device keeps its identity.
func (a *DeviceActions) ResetToSetup(ctx context.Context) error {
	if err := a.cfg.ClearNetworkCredentials(); err != nil {
		return err
	}
	system.EnterSetupMode(ctx, a.services)
	return nil
}

// FactoryReset wipes the configuration and all persisted state, brings up
// the provisioning services, and reboots.
func (a *DeviceActions) FactoryReset(ctx context.Context) error {
	log.Warn("factory reset requested")
	if err := a.cfg.Remove(); err != nil {
		log.Error(err, "cannot remove configuration")
	}
	for _, path := range a.StatePaths {
		if err := store.New(path).Remove(); err != nil {
			log.Warn("cannot remove state file", "path", path, "err", err)
		}
	}
	system.EnterSetupMode(ctx, a.services)
	return a.power.Reboot(ctx)
}
