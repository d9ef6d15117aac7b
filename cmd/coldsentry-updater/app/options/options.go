package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/indicator"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/options"
)

var _ options.IOptions = (*UpdaterOptions)(nil)

// UpdaterOptions configures one update cycle.
type UpdaterOptions struct {
	// InstallDir is the firmware working tree.
	InstallDir string `json:"install-dir" mapstructure:"install-dir"`

	// BackupDir holds pre-update snapshots.
	BackupDir string `json:"backup-dir" mapstructure:"backup-dir"`

	// RepositoryURL and Branch name the upstream the device tracks.
	RepositoryURL string `json:"repository-url" mapstructure:"repository-url"`
	Branch        string `json:"branch" mapstructure:"branch"`

	// InstallScript is the idempotent install procedure inside the tree.
	InstallScript string `json:"install-script" mapstructure:"install-script"`

	HistoryPath        string `json:"history-path" mapstructure:"history-path"`
	DeviceInfoPath     string `json:"device-info-path" mapstructure:"device-info-path"`
	ConfigPath         string `json:"config-path" mapstructure:"config-path"`
	IndicatorStatePath string `json:"indicator-state-path" mapstructure:"indicator-state-path"`

	APIBaseURL string `json:"api-base-url" mapstructure:"api-base-url"`

	// Grace is the wait before asking systemd whether the services came
	// back after an apply.
	Grace time.Duration `json:"grace" mapstructure:"grace"`

	Log *log.Options `json:"log" mapstructure:"log"`
}

func NewUpdaterOptions() *UpdaterOptions {
	return &UpdaterOptions{
		InstallDir:         "/opt/coldsentry/firmware",
		BackupDir:          "/var/lib/coldsentry/backups",
		RepositoryURL:      "https://github.com/coldsentry-io/firmware.git",
		Branch:             "main",
		InstallScript:      "/opt/coldsentry/firmware/bin/install.sh",
		HistoryPath:        "/var/lib/coldsentry/update_history.json",
		DeviceInfoPath:     "/var/lib/coldsentry/device_info.json",
		ConfigPath:         config.DefaultPath,
		IndicatorStatePath: indicator.DefaultStatePath,
		APIBaseURL:         "https://api.coldsentry.io",
		Grace:              30 * time.Second,
		Log:                log.NewOptions(),
	}
}

func (o *UpdaterOptions) Validate() []error {
	var errs []error
	if o.InstallDir == "" {
		errs = append(errs, fmt.Errorf("install-dir must be set"))
	}
	if o.RepositoryURL == "" {
		errs = append(errs, fmt.Errorf("repository-url must be set"))
	}
	errs = append(errs, o.Log.Validate()...)
	return errs
}

func (o *UpdaterOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.InstallDir, "install-dir", o.InstallDir, "Firmware working tree.")
	fs.StringVar(&o.BackupDir, "backup-dir", o.BackupDir, "Directory for pre-update snapshots.")
	fs.StringVar(&o.RepositoryURL, "repository-url", o.RepositoryURL, "Upstream firmware repository.")
	fs.StringVar(&o.Branch, "branch", o.Branch, "Upstream branch to track.")
	fs.StringVar(&o.InstallScript, "install-script", o.InstallScript, "Install procedure run after apply and rollback.")
	fs.StringVar(&o.HistoryPath, "history-path", o.HistoryPath, "Update attempt history file.")
	fs.StringVar(&o.DeviceInfoPath, "device-info-path", o.DeviceInfoPath, "Firmware revision record.")
	fs.StringVar(&o.ConfigPath, "config-path", o.ConfigPath, "Device configuration file.")
	fs.StringVar(&o.IndicatorStatePath, "indicator-state-path", o.IndicatorStatePath, "Shared indicator state file.")
	fs.StringVar(&o.APIBaseURL, "api-base-url", o.APIBaseURL, "Cloud API base URL.")
	fs.DurationVar(&o.Grace, "grace", o.Grace, "Wait before verifying service state after an apply.")
}
