// Package battery reads the PiSugar UPS over its local TCP line protocol.
// Battery data enriches submitted readings; every query is best-effort and a
// missing UPS is never a fault.
package battery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Status is a snapshot of the UPS.
type Status struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
	Voltage  float64 `json:"voltage"`
	Model    string  `json:"model,omitempty"`
}

// Monitor queries the PiSugar power manager daemon.
type Monitor struct {
	Addr    string
	Timeout time.Duration
}

// NewMonitor returns a Monitor against the daemon's default local address.
func NewMonitor() *Monitor {
	return &Monitor{
		Addr:    "127.0.0.1:8423",
		Timeout: 5 * time.Second,
	}
}

// query sends one "get <key>" command and returns the daemon's reply with
// the "key: " prefix stripped.
func (m *Monitor) query(ctx context.Context, key string) (string, error) {
	d := net.Dialer{Timeout: m.Timeout}
	conn, err := d.DialContext(ctx, "tcp", m.Addr)
	if err != nil {
		return "", fmt.Errorf("pisugar dial: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(m.Timeout))

	if _, err := fmt.Fprintf(conn, "get %s\n", key); err != nil {
		return "", err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}

	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, ':'); i >= 0 {
		line = strings.TrimSpace(line[i+1:])
	}
	return line, nil
}

// Level returns the charge percentage (0-100).
func (m *Monitor) Level(ctx context.Context) (float64, error) {
	raw, err := m.query(ctx, "battery")
	if err != nil {
		return 0, err
	}
	level, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("pisugar level %q: %w", raw, err)
	}
	// Some firmware revisions report a 0.0-1.0 fraction.
	if level <= 1.0 {
		level *= 100
	}
	return level, nil
}

// Charging reports whether the UPS is on external power.
func (m *Monitor) Charging(ctx context.Context) (bool, error) {
	raw, err := m.query(ctx, "battery_charging")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(raw, "true"), nil
}

// Voltage returns the pack voltage in volts.
func (m *Monitor) Voltage(ctx context.Context) (float64, error) {
	raw, err := m.query(ctx, "battery_voltage")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(raw), "v"), 64)
}

// Model returns the UPS model string.
func (m *Monitor) Model(ctx context.Context) (string, error) {
	return m.query(ctx, "model")
}

// FullStatus gathers everything available; nil if no query succeeded (no UPS
// fitted, or the daemon is down).
func (m *Monitor) FullStatus(ctx context.Context) *Status {
	var st Status
	any := false

	if level, err := m.Level(ctx); err == nil {
		st.Level = level
		any = true
	}
	if charging, err := m.Charging(ctx); err == nil {
		st.Charging = charging
		any = true
	}
	if voltage, err := m.Voltage(ctx); err == nil {
		st.Voltage = voltage
		any = true
	}
	if model, err := m.Model(ctx); err == nil {
		st.Model = model
		any = true
	}

	if !any {
		return nil
	}
	return &st
}
