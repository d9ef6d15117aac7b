package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/coldsentry-io/coldsentry/cmd/coldsentry-monitor/app/options"
	"github.com/coldsentry-io/coldsentry/internal/battery"
	"github.com/coldsentry-io/coldsentry/internal/cloud"
	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/internal/indicator"
	"github.com/coldsentry-io/coldsentry/internal/monitor"
	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/internal/statusserver"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/pkg/app"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/mqtt"
)

const (
	commandName = "coldsentry-monitor"
	commandDesc = `The ColdSentry monitor is the appliance's steady-state loop: once per
interval it checks connectivity, reads the temperature probe, and submits a
reading, escalating through service restarts, module reloads, and budgeted
reboots when either keeps failing. It never exits on its own except when the
device configuration is absent or the cloud rejects the credentials.`
)

func NewApp() *app.App {
	opts := options.NewMonitorOptions()
	return app.NewApp(
		commandName,
		"Run the steady-state monitoring loop",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithLogOptions(opts.Log),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.MonitorOptions) app.RunFunc {
	return func() error {
		ctx := app.SetupSignalContext()

		h, err := hal.New()
		if err != nil {
			return fmt.Errorf("open hardware: %w", err)
		}
		defer h.Close() //nolint:errcheck

		r := runner.New()
		systemd := system.NewSystemd(r)
		power := system.NewOSPower(r)
		cfg := config.New(opts.ConfigPath)

		coord := indicator.NewCoordinator(h, opts.IndicatorStatePath)
		defer coord.Close() //nolint:errcheck

		diag := monitor.NewDiagnosticsBuffer(opts.DiagnosticsPath)
		netwatch := monitor.NewNetWatch(opts.NetworkStatusPath, system.NewNMNetwork(r, systemd), power, diag)
		netwatch.MaxReboots = opts.MaxReboots
		sensor := monitor.NewSensorWatch(h, system.NewW1Modules(r), diag)

		client := cloud.NewClient(opts.APIBaseURL)

		mon := monitor.New(cfg, client, netwatch, sensor, diag, coord, systemd)
		mon.Interval = opts.Interval
		mon.DeviceInfoPath = opts.DeviceInfoPath
		if opts.Battery {
			mon.Battery = battery.NewMonitor()
		}
		mon.Telemetry = newTelemetry(ctx, opts, cfg)
		// Clean shutdown clears the presence flag itself; the LWT covers
		// every other way out.
		defer mon.Telemetry.PublishOnline(context.Background(), false)

		button := indicator.NewButton(h, coord, monitor.NewDeviceActions(cfg, systemd, power))

		srv := statusserver.New(opts.Http, func() any {
			st, _ := netwatch.Status()
			return struct {
				Network       monitor.NetworkStatus `json:"network"`
				SensorErrors  int                   `json:"sensor_errors"`
				IndicatorMode string                `json:"indicator"`
			}{st, sensor.Errors(), coord.CurrentState()}
		})

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return mon.RunForever(ctx) })
		g.Go(func() error { return srv.Start(ctx) })
		g.Go(func() error { return coord.MonitorForStopRequests(ctx) })
		g.Go(func() error { return button.Run(ctx) })

		err = g.Wait()
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, monitor.ErrReturnToSetup):
			// Handed off to the provisioning flow; systemd restarts us in
			// the right mode.
			return nil
		default:
			return err
		}
	}
}

// newTelemetry connects the optional MQTT mirror. Any failure disables the
// mirror rather than blocking monitoring.
func newTelemetry(ctx context.Context, opts *options.MonitorOptions, cfg *config.Device) *cloud.Telemetry {
	if !opts.Mqtt.Enabled() {
		return nil
	}

	deviceID := "coldsentry"
	if data, found, err := cfg.Load(); err == nil && found && data.SensorName != "" {
		deviceID = data.SensorName
	}

	// The broker retains an offline presence flag as the LWT, so consumers
	// can tell a crashed device from a quiet one.
	cc := opts.Mqtt.ToClientConfig()
	cc.WillTopic = cloud.OnlineTopic(opts.Mqtt.TopicRoot, deviceID)
	cc.WillPayload = []byte(fmt.Sprintf(`{"online":false,"device":%q}`, deviceID))
	cc.WillQoS = 1
	cc.WillRetain = true

	client, err := mqtt.NewClient(cc)
	if err != nil {
		log.Warn("cannot build mqtt client, telemetry mirror disabled", "err", err)
		return nil
	}
	if err := client.Start(ctx); err != nil {
		log.Warn("cannot start mqtt client, telemetry mirror disabled", "err", err)
		return nil
	}

	tel := cloud.NewTelemetry(client, opts.Mqtt.TopicRoot, deviceID)
	tel.PublishOnline(ctx, true)
	return tel
}
