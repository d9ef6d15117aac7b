// Package app implements coldsentryctl, the operator's one-shot tool for
// poking the appliance: drive the indicator by hand, inspect the persisted
// state, and switch between setup and sensor mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/internal/indicator"
	"github.com/coldsentry-io/coldsentry/internal/monitor"
	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/internal/updater"
	"github.com/coldsentry-io/coldsentry/pkg/app"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

type ctlOptions struct {
	ConfigPath         string
	NetworkStatusPath  string
	HistoryPath        string
	DeviceInfoPath     string
	IndicatorStatePath string
	DiagnosticsPath    string
}

// Command is the coldsentryctl root.
type Command struct {
	root *cobra.Command
}

func NewCommand() *Command {
	opts := &ctlOptions{
		ConfigPath:         config.DefaultPath,
		NetworkStatusPath:  monitor.DefaultNetworkStatusPath,
		HistoryPath:        "/var/lib/coldsentry/update_history.json",
		DeviceInfoPath:     "/var/lib/coldsentry/device_info.json",
		IndicatorStatePath: indicator.DefaultStatePath,
		DiagnosticsPath:    monitor.DefaultDiagnosticsPath,
	}

	root := &cobra.Command{
		Use:           "coldsentryctl",
		Short:         "Operate a ColdSentry appliance by hand",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config-path", opts.ConfigPath, "Device configuration file.")
	pf.StringVar(&opts.NetworkStatusPath, "network-status-path", opts.NetworkStatusPath, "Network failure counter file.")
	pf.StringVar(&opts.HistoryPath, "history-path", opts.HistoryPath, "Update attempt history file.")
	pf.StringVar(&opts.DeviceInfoPath, "device-info-path", opts.DeviceInfoPath, "Firmware revision record.")
	pf.StringVar(&opts.IndicatorStatePath, "indicator-state-path", opts.IndicatorStatePath, "Shared indicator state file.")
	pf.StringVar(&opts.DiagnosticsPath, "diagnostics-path", opts.DiagnosticsPath, "Buffered diagnostics file.")

	root.AddCommand(
		newSetIndicatorCommand(opts),
		newStatusCommand(opts),
		newSelectModeCommand(opts),
	)

	return &Command{root: root}
}

// Run executes the tool and exits nonzero on error.
func (c *Command) Run() {
	if err := c.root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newSetIndicatorCommand(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-indicator <state>",
		Short: "Drive the LED pattern for a state until interrupted",
		Long: `Claims the indicator and drives the named state's pattern, taking it
over from whichever process currently holds it. Intended for manual
testing; press Ctrl-C to release the LED again.

Known states: ` + strings.Join(indicator.States(), ", ") + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hal.New()
			if err != nil {
				return fmt.Errorf("open hardware: %w", err)
			}
			defer h.Close() //nolint:errcheck

			coord := indicator.NewCoordinator(h, opts.IndicatorStatePath)
			if err := coord.SetState(args[0]); err != nil {
				return err
			}
			defer coord.Close() //nolint:errcheck

			ctx := app.SetupSignalContext()
			fmt.Printf("showing %q, press Ctrl-C to stop\n", args[0])
			return ignoreCanceled(coord.MonitorForStopRequests(ctx))
		},
	}
}

func newStatusCommand(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted appliance state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New(opts.ConfigPath)
			data, configured, err := cfg.Load()
			if err != nil {
				return err
			}

			var net monitor.NetworkStatus
			if _, err := store.New(opts.NetworkStatusPath).Load(&net); err != nil {
				return err
			}

			var hist updater.HistoryRecord
			if _, err := store.New(opts.HistoryPath).Load(&hist); err != nil {
				return err
			}

			var info updater.DeviceInfo
			if _, err := store.New(opts.DeviceInfoPath).Load(&info); err != nil {
				return err
			}

			var shared indicator.SharedState
			if _, err := store.New(opts.IndicatorStatePath).Load(&shared); err != nil {
				return err
			}

			diag := monitor.NewDiagnosticsBuffer(opts.DiagnosticsPath)
			entries, err := diag.Entries()
			if err != nil {
				return err
			}

			table := uitable.New()
			table.MaxColWidth = 72
			table.AddRow("FIELD", "VALUE")
			table.AddRow("Configured", configured)
			table.AddRow("Sensor name", data.SensorName)
			table.AddRow("Firmware revision", info.FirmwareRevision)
			table.AddRow("Firmware updated", formatTime(info.UpdatedAt))
			table.AddRow("Update attempts", len(hist.Attempts))
			table.AddRow("Last update success", formatTime(hist.LastSuccess))
			table.AddRow("Network failures", net.NetworkFailureCount)
			table.AddRow("Reboot count", net.RebootCount)
			table.AddRow("Recovery attempted", net.RecoveryAttempted)
			table.AddRow("Indicator state", shared.CurrentState)
			table.AddRow("Indicator owner pid", shared.ActivePatternPID)
			table.AddRow("Buffered diagnostics", len(entries))
			fmt.Println(table)
			return nil
		},
	}
}

func newSelectModeCommand(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select-mode",
		Short: "Start the services for the device's current provisioning state",
		Long: `Refreshes the systemd units and brings up either the sensor services
(provisioned device) or the setup services (unprovisioned device). Run by
the boot sequence and after a mode change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.SetupSignalContext()

			r := runner.New()
			systemd := system.NewSystemd(r)
			if err := systemd.DaemonReload(ctx); err != nil {
				return err
			}

			// The updater timer is (re)asserted on every mode selection so it
			// comes back after updates replace its unit file.
			system.EnsureUpdaterActive(ctx, systemd)

			cfg := config.New(opts.ConfigPath)
			configured := false
			if cfg.Exists() {
				var err error
				configured, err = cfg.IsConfigured()
				if err != nil {
					return err
				}
			}

			if configured {
				fmt.Println("device is provisioned, entering sensor mode")
				system.EnterSensorMode(ctx, systemd, r)
			} else {
				fmt.Println("device is not provisioned, entering setup mode")
				system.EnterSetupMode(ctx, systemd)
			}
			return nil
		},
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
