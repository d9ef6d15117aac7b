package system

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsentry-io/coldsentry/internal/runner"
)

func TestIsActiveParsesStatusText(t *testing.T) {
	fake := runner.NewFake()
	fake.Script("systemctl status coldsentry-monitor.service", runner.FakeResponse{
		Stdout: "● coldsentry-monitor.service - ColdSentry monitor\n   Active: active (running) since Tue",
	})
	fake.Script("systemctl status coldsentry-setup.service", runner.FakeResponse{
		Stdout:   "Active: inactive (dead)",
		ExitCode: 3,
	})

	sd := NewSystemd(fake)

	active, err := sd.IsActive(context.Background(), MonitorService)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = sd.IsActive(context.Background(), SetupService)
	require.NoError(t, err, "inactive unit is an answer, not an error")
	assert.False(t, active)
}

func TestConnectedRequiresAssociationAndPing(t *testing.T) {
	tests := []struct {
		name     string
		nmState  string
		pingExit int
		want     bool
	}{
		{"associated and pingable", "wlan0:connected\neth0:unavailable", 0, true},
		{"associated but no internet", "wlan0:connected", 1, false},
		{"not associated", "wlan0:disconnected", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := runner.NewFake()
			fake.Script("nmcli -t -f DEVICE,STATE device status", runner.FakeResponse{Stdout: tt.nmState})
			fake.Script("ping", runner.FakeResponse{ExitCode: tt.pingExit})

			n := NewNMNetwork(fake, NewSystemd(fake))
			assert.Equal(t, tt.want, n.Connected(context.Background()))
		})
	}
}

func TestModuleReloadRemovesThenAdds(t *testing.T) {
	fake := runner.NewFake()
	m := NewW1Modules(fake)

	require.NoError(t, m.Reload(context.Background()))

	calls := fake.CallLines()
	require.Len(t, calls, 2)
	assert.Equal(t, "modprobe -r w1_therm w1_gpio", calls[0])
	assert.Equal(t, "modprobe w1_gpio w1_therm", calls[1])
}

func TestUnitRefreshCopiesUnitFilesAndReloads(t *testing.T) {
	fake := runner.NewFake()
	fake.Script("ls -1 /opt/coldsentry/firmware/system", runner.FakeResponse{
		Stdout: "coldsentry-monitor.service\ncoldsentry-updater.timer\nREADME.md\n",
	})

	u := NewUnitInstaller(fake, "/opt/coldsentry/firmware/system")
	require.NoError(t, u.Refresh(context.Background()))

	assert.Equal(t, []string{
		"ls -1 /opt/coldsentry/firmware/system",
		"cp /opt/coldsentry/firmware/system/coldsentry-monitor.service /etc/systemd/system",
		"cp /opt/coldsentry/firmware/system/coldsentry-updater.timer /etc/systemd/system",
		"systemctl daemon-reload",
	}, fake.CallLines())
}

func TestUnitRefreshSkipsTreesWithoutUnits(t *testing.T) {
	fake := runner.NewFake()
	fake.Script("ls -1 /opt/coldsentry/firmware/system", runner.FakeResponse{ExitCode: 2})

	u := NewUnitInstaller(fake, "/opt/coldsentry/firmware/system")
	require.NoError(t, u.Refresh(context.Background()))

	assert.Equal(t, []string{"ls -1 /opt/coldsentry/firmware/system"}, fake.CallLines())
}

func TestEnsureUpdaterActiveEnablesAndStartsTimer(t *testing.T) {
	fake := runner.NewFake()
	sd := NewSystemd(fake)

	EnsureUpdaterActive(context.Background(), sd)

	assert.Equal(t, []string{
		"systemctl enable coldsentry-updater.timer",
		"systemctl start coldsentry-updater.timer",
	}, fake.CallLines())
}

func TestEnterSetupModeOrdersTransitions(t *testing.T) {
	fake := runner.NewFake()
	sd := NewSystemd(fake)

	EnterSetupMode(context.Background(), sd)

	assert.Equal(t, []string{
		"systemctl enable coldsentry-setup.service",
		"systemctl restart coldsentry-setup.service",
		"systemctl disable coldsentry-monitor.service",
		"systemctl stop coldsentry-monitor.service",
	}, fake.CallLines())
}
