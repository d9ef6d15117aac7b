package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/internal/pkg/metrics"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// DefaultNetworkStatusPath persists the network failure counters across
// process restarts and the reboots they trigger.
const DefaultNetworkStatusPath = "/var/lib/coldsentry/network_status.json"

// Escalation thresholds for consecutive offline iterations.
const (
	restartThreshold = 3
	rebootThreshold  = 10
)

// NetworkStatus is the persisted failure record. RebootCount is shared
// between the network and sensor failure domains: both draw on one budget.
type NetworkStatus struct {
	NetworkFailureCount int       `json:"network_failure_count"`
	RebootCount         int       `json:"reboot_count"`
	RecoveryAttempted   bool      `json:"recovery_attempted"`
	LastUpdated         time.Time `json:"last_updated"`
}

// NetWatch applies the graduated network remedies: count, restart the
// network manager once per outage, then spend the reboot budget.
type NetWatch struct {
	st    *store.Store
	net   system.Network
	power system.Power
	diag  *DiagnosticsBuffer

	// MaxReboots caps automatic reboots across both failure domains.
	MaxReboots int

	now func() time.Time
}

func NewNetWatch(path string, net system.Network, power system.Power, diag *DiagnosticsBuffer) *NetWatch {
	if path == "" {
		path = DefaultNetworkStatusPath
	}
	return &NetWatch{
		st:         store.New(path),
		net:        net,
		power:      power,
		diag:       diag,
		MaxReboots: 3,
		now:        time.Now,
	}
}

// Status returns the persisted record.
func (w *NetWatch) Status() (NetworkStatus, error) {
	var st NetworkStatus
	_, err := w.st.Load(&st)
	return st, err
}

// Check probes connectivity and runs one escalation step when offline.
// Returns true when the device is online.
func (w *NetWatch) Check(ctx context.Context) bool {
	if w.net.Connected(ctx) {
		if err := w.markOnline(); err != nil {
			log.Warn("cannot reset network status", "err", err)
		}
		return true
	}
	w.markOffline(ctx)
	return false
}

// markOnline zeroes the counters the moment connectivity is confirmed.
func (w *NetWatch) markOnline() error {
	var st NetworkStatus
	return w.st.Update(&st, func() error {
		if st.NetworkFailureCount == 0 && st.RebootCount == 0 && !st.RecoveryAttempted {
			return nil
		}
		log.Info("connectivity restored", "failures", st.NetworkFailureCount, "reboots", st.RebootCount)
		st.NetworkFailureCount = 0
		st.RebootCount = 0
		st.RecoveryAttempted = false
		st.LastUpdated = w.now()
		return nil
	})
}

func (w *NetWatch) markOffline(ctx context.Context) {
	metrics.NetworkFailures.Inc()

	var st NetworkStatus
	restart := false
	if err := w.st.Update(&st, func() error {
		st.NetworkFailureCount++
		st.LastUpdated = w.now()
		if st.NetworkFailureCount >= restartThreshold && !st.RecoveryAttempted {
			st.RecoveryAttempted = true
			restart = true
		}
		return nil
	}); err != nil {
		log.Error(err, "cannot persist network failure")
		return
	}

	log.Warn("no connectivity", "failures", st.NetworkFailureCount)

	if restart {
		log.Info("restarting network management service")
		if err := w.net.RestartManagement(ctx); err != nil {
			log.Error(err, "network management restart failed")
			w.append(fmt.Sprintf("network management restart failed: %v", err))
		}
		return
	}

	if st.NetworkFailureCount >= rebootThreshold {
		w.append(fmt.Sprintf("%v after %d failed connectivity checks", faults.ErrNetworkUnreachable, st.NetworkFailureCount))
		if err := w.SpendRebootBudget(ctx, "network"); err != nil {
			log.Warn("reboot suppressed", "err", err)
		}
	}
}

// SpendRebootBudget issues a reboot if the shared budget allows it. The
// incremented count is persisted before the reboot call so the budget
// survives the reboot it limits. Past the ceiling it records a giving-up
// diagnostic once and returns ErrRebootBudgetExceeded.
func (w *NetWatch) SpendRebootBudget(ctx context.Context, domain string) error {
	var st NetworkStatus
	allowed := false
	if err := w.st.Update(&st, func() error {
		if st.RebootCount >= w.MaxReboots {
			return nil
		}
		st.RebootCount++
		st.LastUpdated = w.now()
		allowed = true
		return nil
	}); err != nil {
		return err
	}

	if !allowed {
		w.append(fmt.Sprintf("giving up on automatic reboot after %d attempts (%s failures persist)", w.MaxReboots, domain))
		return faults.ErrRebootBudgetExceeded
	}

	metrics.Reboots.WithLabelValues(domain).Inc()
	log.Warn("rebooting to recover", "domain", domain, "reboot_count", st.RebootCount, "max", w.MaxReboots)
	return w.power.Reboot(ctx)
}

func (w *NetWatch) append(msg string) {
	if w.diag == nil {
		return
	}
	if err := w.diag.Append(msg); err != nil {
		log.Warn("cannot buffer diagnostic", "err", err)
	}
}
