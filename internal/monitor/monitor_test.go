package monitor

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsentry-io/coldsentry/internal/cloud"
	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/internal/indicator"
)

type fakeCloud struct {
	token     string
	tokenErr  error
	status    int
	submitErr error

	readings  []cloud.Reading
	reports   [][]string
	setTokens []string
}

func (f *fakeCloud) ObtainToken(ctx context.Context, email, password string) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeCloud) SubmitReading(ctx context.Context, r cloud.Reading) (int, error) {
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.readings = append(f.readings, r)
	if f.status == 0 {
		return http.StatusCreated, nil
	}
	return f.status, nil
}

func (f *fakeCloud) ReportErrors(ctx context.Context, errs []string) error {
	f.reports = append(f.reports, errs)
	return nil
}

func (f *fakeCloud) SetToken(token string) {
	f.setTokens = append(f.setTokens, token)
}

type fakeIndicator struct {
	states []string
}

func (f *fakeIndicator) SetState(name string) error {
	f.states = append(f.states, name)
	return nil
}

func (f *fakeIndicator) last() string {
	if len(f.states) == 0 {
		return ""
	}
	return f.states[len(f.states)-1]
}

type noopServices struct{}

func (noopServices) Start(ctx context.Context, name string) error   { return nil }
func (noopServices) Stop(ctx context.Context, name string) error    { return nil }
func (noopServices) Enable(ctx context.Context, name string) error  { return nil }
func (noopServices) Disable(ctx context.Context, name string) error { return nil }
func (noopServices) Restart(ctx context.Context, name string) error { return nil }
func (noopServices) IsActive(ctx context.Context, name string) (bool, error) {
	return false, nil
}

type monitorFixture struct {
	monitor *Monitor
	cfg     *config.Device
	api     *fakeCloud
	net     *fakeNetwork
	power   *fakePower
	mock    *hal.Mock
	ind     *fakeIndicator
	diag    *DiagnosticsBuffer
	watch   *NetWatch
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.New(filepath.Join(dir, "config.json"))
	require.NoError(t, cfg.Save(config.Data{SensorName: "walk-in", APIToken: "tok"}))

	api := &fakeCloud{}
	net := &fakeNetwork{connected: true}
	power := &fakePower{}
	mock := hal.NewMock()
	ind := &fakeIndicator{}
	diag := NewDiagnosticsBuffer(filepath.Join(dir, "diagnostics.json"))
	watch := NewNetWatch(filepath.Join(dir, "network_status.json"), net, power, diag)
	sensor := NewSensorWatch(mock, &fakeModules{}, diag)

	m := New(cfg, api, watch, sensor, diag, ind, noopServices{})
	return &monitorFixture{monitor: m, cfg: cfg, api: api, net: net, power: power, mock: mock, ind: ind, diag: diag, watch: watch}
}

func TestIterationSubmitsReading(t *testing.T) {
	f := newMonitorFixture(t)
	f.mock.ScriptSensor(hal.SensorSample{Temp: -19.25})

	require.NoError(t, f.monitor.runOnce(context.Background()))

	require.Len(t, f.api.readings, 1)
	assert.Equal(t, "walk-in", f.api.readings[0].SensorName)
	assert.InDelta(t, -19.25, f.api.readings[0].TemperatureC, 0.001)
	assert.Equal(t, indicator.StateRunning, f.ind.last())
	assert.Equal(t, []string{"tok"}, f.api.setTokens)
}

func TestOfflineSkipsSensorRead(t *testing.T) {
	f := newMonitorFixture(t)
	f.net.connected = false
	f.mock.ScriptSensor(hal.SensorSample{Temp: 4})

	require.NoError(t, f.monitor.runOnce(context.Background()))

	assert.Zero(t, f.mock.AcquireCalls, "no sensor traffic while offline")
	assert.Empty(t, f.api.readings)
	assert.Equal(t, indicator.StateNetworkIssue, f.ind.last())
}

func TestMissingConfigurationStopsLoop(t *testing.T) {
	f := newMonitorFixture(t)
	require.NoError(t, f.cfg.Remove())

	err := f.monitor.runOnce(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTokenExchangeStoresToken(t *testing.T) {
	f := newMonitorFixture(t)
	require.NoError(t, f.cfg.Save(config.Data{SensorName: "walk-in", Email: "a@b.c", Password: "pw"}))
	f.api.token = "fresh"
	f.mock.ScriptSensor(hal.SensorSample{Temp: 2})

	require.NoError(t, f.monitor.runOnce(context.Background()))

	data, _, err := f.cfg.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", data.APIToken)
	require.Len(t, f.api.readings, 1)
}

func TestAuthRejectionReturnsToSetup(t *testing.T) {
	f := newMonitorFixture(t)
	require.NoError(t, f.cfg.Save(config.Data{Email: "a@b.c", Password: "pw"}))
	f.api.tokenErr = &faults.AuthError{StatusCode: http.StatusUnauthorized}

	err := f.monitor.runOnce(context.Background())
	assert.ErrorIs(t, err, ErrReturnToSetup)

	data, _, lerr := f.cfg.Load()
	require.NoError(t, lerr)
	assert.Empty(t, data.Email)
	assert.Empty(t, data.Password)
	assert.Empty(t, data.APIToken)
	assert.NotEmpty(t, data.Error, "the setup UI needs the rejection recorded")
}

func TestSubmitAuthRejectionReturnsToSetup(t *testing.T) {
	f := newMonitorFixture(t)
	f.api.submitErr = &faults.AuthError{StatusCode: http.StatusForbidden}
	f.mock.ScriptSensor(hal.SensorSample{Temp: 2})

	err := f.monitor.runOnce(context.Background())
	assert.ErrorIs(t, err, ErrReturnToSetup)
}

func TestIndicatorChangesOnlyAfterThreeAPIFailures(t *testing.T) {
	f := newMonitorFixture(t)
	f.api.status = http.StatusBadGateway
	for i := 0; i < 3; i++ {
		f.mock.ScriptSensor(hal.SensorSample{Temp: 2})
	}

	require.NoError(t, f.monitor.runOnce(context.Background()))
	require.NoError(t, f.monitor.runOnce(context.Background()))
	assert.NotContains(t, f.ind.states, indicator.StateAPIIssue, "two failures do not flap the indicator")

	require.NoError(t, f.monitor.runOnce(context.Background()))
	assert.Equal(t, indicator.StateAPIIssue, f.ind.last())
}

func TestSuccessFlushesBufferedDiagnostics(t *testing.T) {
	f := newMonitorFixture(t)
	require.NoError(t, f.diag.Append("sensor failure 1: probe missing"))
	f.mock.ScriptSensor(hal.SensorSample{Temp: 2})

	require.NoError(t, f.monitor.runOnce(context.Background()))

	require.Len(t, f.api.reports, 1)
	entries, err := f.diag.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries, "buffer cleared after delivery")
}

func TestSensorRebootSharesBudget(t *testing.T) {
	f := newMonitorFixture(t)
	// Empty sensor script: every read fails.

	for i := 0; i < sensorRebootThreshold; i++ {
		require.NoError(t, f.monitor.runOnce(context.Background()))
	}

	assert.Equal(t, 1, f.power.reboots)
	st, err := f.watch.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.RebootCount, "sensor reboots draw on the shared budget")
}
