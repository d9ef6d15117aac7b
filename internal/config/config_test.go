package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "config.json"))
}

func TestUnprovisionedDevice(t *testing.T) {
	d := newTestDevice(t)

	assert.False(t, d.Exists())

	configured, err := d.IsConfigured()
	require.NoError(t, err)
	assert.False(t, configured)
}

func TestIsConfigured(t *testing.T) {
	d := newTestDevice(t)

	require.NoError(t, d.Save(Data{SensorName: "walk-in"}))
	configured, err := d.IsConfigured()
	require.NoError(t, err)
	assert.False(t, configured, "a name alone is not enough")

	require.NoError(t, d.Save(Data{Email: "x@y.z", Password: "pw"}))
	configured, err = d.IsConfigured()
	require.NoError(t, err)
	assert.True(t, configured)

	require.NoError(t, d.Save(Data{APIToken: "tok"}))
	configured, err = d.IsConfigured()
	require.NoError(t, err)
	assert.True(t, configured, "an issued token also counts")
}

func TestClearCloudCredentials(t *testing.T) {
	d := newTestDevice(t)
	require.NoError(t, d.Save(Data{
		SensorName: "walk-in",
		Email:      "x@y.z",
		Password:   "pw",
		APIToken:   "tok",
		WifiSSID:   "shop",
	}))

	require.NoError(t, d.ClearCloudCredentials())

	data, found, err := d.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, data.Email)
	assert.Empty(t, data.Password)
	assert.Empty(t, data.APIToken)
	assert.Equal(t, "walk-in", data.SensorName, "non-credential fields survive")
	assert.Equal(t, "shop", data.WifiSSID, "network credentials are a separate lifecycle")
}

func TestClearNetworkCredentials(t *testing.T) {
	d := newTestDevice(t)
	require.NoError(t, d.Save(Data{WifiSSID: "shop", WifiPSK: "secret", APIToken: "tok"}))

	require.NoError(t, d.ClearNetworkCredentials())

	data, _, err := d.Load()
	require.NoError(t, err)
	assert.Empty(t, data.WifiSSID)
	assert.Empty(t, data.WifiPSK)
	assert.Equal(t, "tok", data.APIToken)
}

func TestRemove(t *testing.T) {
	d := newTestDevice(t)
	require.NoError(t, d.Save(Data{SensorName: "walk-in"}))
	require.NoError(t, d.Remove())
	assert.False(t, d.Exists())
}
