// Package config holds the device configuration written by the provisioning
// flow and consumed by every other process. The configuration file's presence
// is what distinguishes a provisioned sensor from one waiting in setup mode.
package config

import (
	"sync"

	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// DefaultPath is where the provisioning flow writes the configuration.
const DefaultPath = "/etc/coldsentry/config.json"

// Data is the persisted configuration record.
type Data struct {
	SensorName string `json:"sensor_name,omitempty"`

	// Account credentials captured during provisioning. Exchanged for an API
	// token on first contact; cleared when the cloud rejects them.
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`

	// APIToken is the bearer token for reading submission.
	APIToken string `json:"api_token,omitempty"`

	// WifiSSID/WifiPSK are the stored network credentials, cleared by the
	// button's reset-to-setup action.
	WifiSSID string `json:"wifi_ssid,omitempty"`
	WifiPSK  string `json:"wifi_psk,omitempty"`

	// Error carries the last provisioning failure for the setup UI to show.
	Error string `json:"error,omitempty"`
}

// Device is the configuration store handle, constructed once per process and
// passed to whoever needs it.
type Device struct {
	mu sync.Mutex
	st *store.Store
}

func New(path string) *Device {
	if path == "" {
		path = DefaultPath
	}
	return &Device{st: store.New(path)}
}

// Load reads the current configuration. A missing file returns zero Data and
// found=false.
func (d *Device) Load() (Data, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var data Data
	found, err := d.st.Load(&data)
	return data, found, err
}

// Exists reports whether a configuration file is present at all, which is
// what mode selection keys off.
func (d *Device) Exists() bool {
	return d.st.Exists()
}

// IsConfigured reports whether the device can talk to the cloud: either
// account credentials to exchange, or an already-issued API token.
func (d *Device) IsConfigured() (bool, error) {
	data, found, err := d.Load()
	if err != nil || !found {
		return false, err
	}
	return (data.Email != "" && data.Password != "") || data.APIToken != "", nil
}

// Save replaces the configuration.
func (d *Device) Save(data Data) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Save(&data)
}

// SetAPIToken stores a freshly obtained token.
func (d *Device) SetAPIToken(token string) error {
	return d.update(func(data *Data) {
		data.APIToken = token
	})
}

// ClearCloudCredentials wipes account credentials and token after the cloud
// rejects them, returning the device to the provisioning flow.
func (d *Device) ClearCloudCredentials() error {
	return d.update(func(data *Data) {
		data.Email = ""
		data.Password = ""
		data.APIToken = ""
	})
}

// ClearNetworkCredentials wipes the stored network credentials. Used by the
// button's reset-to-setup action.
func (d *Device) ClearNetworkCredentials() error {
	return d.update(func(data *Data) {
		data.WifiSSID = ""
		data.WifiPSK = ""
	})
}

// SetError records a provisioning failure for the setup UI.
func (d *Device) SetError(msg string) error {
	return d.update(func(data *Data) {
		data.Error = msg
	})
}

// Remove deletes the configuration file entirely (factory reset).
func (d *Device) Remove() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Remove()
}

func (d *Device) update(fn func(*Data)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var data Data
	return d.st.Update(&data, func() error {
		fn(&data)
		return nil
	})
}
