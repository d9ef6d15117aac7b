// Package system wraps the OS facilities the reliability core escalates
// through: systemd services, NetworkManager, kernel sensor modules, and the
// reboot path.
package system

import "context"

// Well-known unit names for the device's own services.
const (
	MonitorService = "coldsentry-monitor.service"
	SetupService   = "coldsentry-setup.service"
	UpdaterTimer   = "coldsentry-updater.timer"

	NetworkManagerService = "NetworkManager.service"
	HostapdService        = "hostapd.service"
	DnsmasqService        = "dnsmasq.service"
)

// ServiceController manages system services by name.
type ServiceController interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error

	// IsActive reports whether the unit's status text carries the
	// active (running) marker.
	IsActive(ctx context.Context, name string) (bool, error)
}

// Network answers connectivity questions and drives network-level remedies.
type Network interface {
	// Connected tests real connectivity: wlan association and a ping probe,
	// not mere link state.
	Connected(ctx context.Context) bool

	// RestartManagement restarts the network management service.
	RestartManagement(ctx context.Context) error
}

// Power owns the reboot path.
type Power interface {
	Reboot(ctx context.Context) error
}

// SensorModules reloads the kernel modules behind the temperature probe.
type SensorModules interface {
	Reload(ctx context.Context) error
}
