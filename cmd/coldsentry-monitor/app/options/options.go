package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/indicator"
	"github.com/coldsentry-io/coldsentry/internal/monitor"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/options"
)

var _ options.IOptions = (*MonitorOptions)(nil)

// MonitorOptions configures the long-lived monitor process.
type MonitorOptions struct {
	ConfigPath         string `json:"config-path" mapstructure:"config-path"`
	NetworkStatusPath  string `json:"network-status-path" mapstructure:"network-status-path"`
	DiagnosticsPath    string `json:"diagnostics-path" mapstructure:"diagnostics-path"`
	IndicatorStatePath string `json:"indicator-state-path" mapstructure:"indicator-state-path"`
	DeviceInfoPath     string `json:"device-info-path" mapstructure:"device-info-path"`

	APIBaseURL string `json:"api-base-url" mapstructure:"api-base-url"`

	// Interval is the pause between monitoring iterations.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// MaxReboots caps automatic reboots across the network and sensor
	// failure domains.
	MaxReboots int `json:"max-reboots" mapstructure:"max-reboots"`

	// Battery enables PiSugar UPS queries for reading enrichment.
	Battery bool `json:"battery" mapstructure:"battery"`

	Http *options.HttpOptions `json:"http" mapstructure:"http"`
	Mqtt *options.MqttOptions `json:"mqtt" mapstructure:"mqtt"`
	Log  *log.Options         `json:"log" mapstructure:"log"`
}

func NewMonitorOptions() *MonitorOptions {
	return &MonitorOptions{
		ConfigPath:         config.DefaultPath,
		NetworkStatusPath:  monitor.DefaultNetworkStatusPath,
		DiagnosticsPath:    monitor.DefaultDiagnosticsPath,
		IndicatorStatePath: indicator.DefaultStatePath,
		DeviceInfoPath:     "/var/lib/coldsentry/device_info.json",
		APIBaseURL:         "https://api.coldsentry.io",
		Interval:           monitor.DefaultInterval,
		MaxReboots:         3,
		Battery:            true,
		Http:               options.NewHttpOptions(),
		Mqtt:               options.NewMqttOptions(),
		Log:                log.NewOptions(),
	}
}

func (o *MonitorOptions) Validate() []error {
	var errs []error
	if o.Interval < time.Second {
		errs = append(errs, fmt.Errorf("interval %s is too short", o.Interval))
	}
	if o.MaxReboots < 0 {
		errs = append(errs, fmt.Errorf("max-reboots must not be negative"))
	}
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errs
}

func (o *MonitorOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ConfigPath, "config-path", o.ConfigPath, "Device configuration file.")
	fs.StringVar(&o.NetworkStatusPath, "network-status-path", o.NetworkStatusPath, "Network failure counter file.")
	fs.StringVar(&o.DiagnosticsPath, "diagnostics-path", o.DiagnosticsPath, "Buffered diagnostics file.")
	fs.StringVar(&o.IndicatorStatePath, "indicator-state-path", o.IndicatorStatePath, "Shared indicator state file.")
	fs.StringVar(&o.DeviceInfoPath, "device-info-path", o.DeviceInfoPath, "Firmware revision record.")
	fs.StringVar(&o.APIBaseURL, "api-base-url", o.APIBaseURL, "Cloud API base URL.")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Pause between monitoring iterations.")
	fs.IntVar(&o.MaxReboots, "max-reboots", o.MaxReboots, "Automatic reboot ceiling shared by all failure domains.")
	fs.BoolVar(&o.Battery, "battery", o.Battery, "Query the PiSugar UPS for reading enrichment.")

	o.Http.AddFlags(fs, prefixes...)
	o.Mqtt.AddFlags(fs, prefixes...)
}
