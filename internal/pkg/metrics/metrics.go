// Package metrics exposes the reliability core's counters on a local
// prometheus registry, served by the status listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NetworkFailures counts monitoring iterations that found no
	// connectivity.
	NetworkFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coldsentry_network_failures_total",
			Help: "Total monitoring iterations without connectivity.",
		},
	)

	// Reboots counts automatic reboots issued by the escalation loop,
	// labelled by the failure domain that triggered them.
	Reboots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldsentry_reboots_total",
			Help: "Total automatic reboots issued, by failure domain.",
		},
		[]string{"domain"}, // domain: network/sensor
	)

	// SensorFailures counts consecutive-read failures observed.
	SensorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coldsentry_sensor_failures_total",
			Help: "Total failed sensor reads.",
		},
	)

	// ReadingsSubmitted counts reading submissions by outcome.
	ReadingsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldsentry_readings_submitted_total",
			Help: "Total reading submissions, by outcome.",
		},
		[]string{"outcome"}, // outcome: success/http_error/auth_rejected
	)

	// UpdateCycles counts update cycles by result.
	UpdateCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldsentry_update_cycles_total",
			Help: "Total update cycles, by result.",
		},
		[]string{"result"}, // result: noop/success/failure
	)

	// RecoveryTier records the tier the last update cycle ran at.
	RecoveryTier = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coldsentry_update_recovery_tier",
			Help: "Recovery tier of the most recent update cycle (0-2).",
		},
	)
)

// Registry is the process-local registry served at /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		NetworkFailures,
		Reboots,
		SensorFailures,
		ReadingsSubmitted,
		UpdateCycles,
		RecoveryTier,
	)
}
