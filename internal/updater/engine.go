// Package updater implements the firmware update engine: detect, back up,
// apply, verify, and conditionally roll back, under an escalating tier
// policy that keeps a bad update from bricking the device.
package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/internal/pkg/metrics"
	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/internal/vcs"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// updateFailedMarker is the fixed first line of a forwarded failure report,
// so the cloud side can classify it without parsing the error list.
const updateFailedMarker = "update failed"

// Result is the outcome of one update cycle. Applied reports whether an
// update was attempted at all; a cycle that found nothing to do returns
// Success with Applied false.
type Result struct {
	Success bool
	Applied bool
	Tier    Tier
	Errors  []string
}

// DeviceInfo is the persisted record of what firmware the device runs.
type DeviceInfo struct {
	FirmwareRevision string    `json:"firmware_revision"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Engine drives the update cycle. Construct with New and override the
// exported knobs before the first cycle.
type Engine struct {
	run      runner.Runner
	vc       vcs.VersionControl
	services system.ServiceController
	history  *History
	backups  *BackupManager
	cfg      *config.Device

	// Reporter forwards failure diagnostics when the device holds valid
	// credentials. Nil disables reporting.
	Reporter ErrorReporter

	// Remote and Branch name the upstream the device tracks.
	Remote string
	Branch string

	// InstallScript is the idempotent install procedure re-run after every
	// apply and after every rollback.
	InstallScript []string

	// Units refreshes the device's systemd unit files from the firmware tree
	// after every install, so an update can change the services and a
	// rollback restores the old ones. Nil disables the refresh.
	Units *system.UnitInstaller

	// DeviceInfoPath is where the firmware revision is recorded on success.
	DeviceInfoPath string

	// Grace is how long to wait after apply before asking systemd whether
	// the services came back.
	Grace time.Duration

	sleep func(time.Duration)
}

// ErrorReporter is the slice of the cloud contract the engine needs.
type ErrorReporter interface {
	ReportErrors(ctx context.Context, errs []string) error
}

func New(run runner.Runner, vc vcs.VersionControl, services system.ServiceController, history *History, backups *BackupManager, cfg *config.Device) *Engine {
	return &Engine{
		run:      run,
		vc:       vc,
		services: services,
		history:  history,
		backups:  backups,
		cfg:      cfg,
		Remote:   "origin",
		Branch:   "main",
		Grace:    30 * time.Second,
		sleep:    time.Sleep,
	}
}

// CheckForUpdate fetches the remote and reports whether HEAD differs from
// the remote branch tip. Fetch or compare failures are logged and read as
// "no update": an update that cannot be confirmed to exist is never applied.
func (e *Engine) CheckForUpdate(ctx context.Context) (string, bool) {
	if err := e.vc.Fetch(ctx, e.Remote); err != nil {
		log.Warn("fetch failed, skipping update check", "err", err)
		return "", false
	}
	local, err := e.vc.CurrentRevision(ctx)
	if err != nil {
		log.Warn("cannot read local revision, skipping update check", "err", err)
		return "", false
	}
	remote, err := e.vc.RemoteRevision(ctx, e.Remote, e.Branch)
	if err != nil {
		log.Warn("cannot read remote revision, skipping update check", "err", err)
		return "", false
	}
	return remote, local != remote
}

// RunUpdateCycle runs one full detect/backup/apply/verify/resolve pass.
// It never returns an error to the caller: a handled failure is reported
// upward and recorded in the history, not signalled through the exit path.
func (e *Engine) RunUpdateCycle(ctx context.Context) Result {
	remote, pending := e.CheckForUpdate(ctx)
	if !pending {
		log.Info("firmware up to date")
		metrics.UpdateCycles.WithLabelValues("noop").Inc()
		return Result{Success: true}
	}

	rec, err := e.history.BeginAttempt()
	if err != nil {
		// Without a durable attempt record the tier guarantee breaks, so
		// refuse to proceed rather than silently run at tier 0 forever.
		log.Error(err, "cannot record update attempt")
		metrics.UpdateCycles.WithLabelValues("failure").Inc()
		return Result{Errors: []string{err.Error()}}
	}

	attempt := rec.Attempts[len(rec.Attempts)-1]
	tier := TierForAttempts(attempt.FailureCount)
	pol := PolicyFor(tier)
	metrics.RecoveryTier.Set(float64(tier))

	log.Info("applying firmware update", "revision", remote, "tier", int(tier), "failures", attempt.FailureCount)

	var snapshot string
	if pol.Backup {
		snapshot, err = e.backups.Snapshot(ctx)
		if err != nil {
			// No safety net means no apply at the cautious tiers.
			log.Error(err, "backup failed, aborting cycle")
			return e.fail(ctx, tier, err)
		}
	}

	applyErr := e.apply(ctx, remote)

	verified := true
	if applyErr == nil && pol.Verify {
		verified, err = e.verify(ctx)
		if err != nil {
			applyErr = err
		} else if !verified {
			applyErr = fmt.Errorf("%w: no service reached running state", faults.ErrVerification)
		}
	}

	if applyErr == nil {
		return e.succeed(ctx, remote, tier)
	}

	if !pol.Rollback {
		// Tier 2: record the error but claim success. Forward progress
		// beats correctness once low-tier recovery has repeatedly failed.
		log.Warn("update errored at the forward tier, keeping the new tree", "err", applyErr)
		if err := e.history.AppendErrors(applyErr.Error()); err != nil {
			log.Error(err, "cannot append attempt error")
		}
		res := e.succeed(ctx, remote, tier)
		res.Errors = append(res.Errors, applyErr.Error())
		return res
	}

	log.Warn("update failed, rolling back", "err", applyErr)
	if err := e.rollback(ctx, snapshot); err != nil {
		// Terminal for this cycle. No further safety net exists.
		log.Error(err, "rollback failed")
		applyErr = fmt.Errorf("%v; additionally: %v", applyErr, err)
	}
	return e.fail(ctx, tier, applyErr)
}

func (e *Engine) apply(ctx context.Context, revision string) error {
	if err := e.vc.ResetHard(ctx, revision); err != nil {
		return err
	}
	return e.runInstall(ctx)
}

func (e *Engine) runInstall(ctx context.Context) error {
	if len(e.InstallScript) != 0 {
		if _, err := e.run.Run(ctx, e.InstallScript[0], e.InstallScript[1:]...); err != nil {
			return err
		}
	}
	if e.Units == nil {
		return nil
	}
	return e.Units.Refresh(ctx)
}

// verify waits out the grace period and then asks whether either the
// monitor service (provisioned device) or the setup service (unprovisioned
// device) is running. One of them must be, in any healthy state.
func (e *Engine) verify(ctx context.Context) (bool, error) {
	e.sleep(e.Grace)
	for _, name := range []string{system.MonitorService, system.SetupService} {
		active, err := e.services.IsActive(ctx, name)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}

// rollback restores the snapshot and re-runs the install procedure against
// the restored tree so the old services come back.
func (e *Engine) rollback(ctx context.Context, snapshot string) error {
	if err := e.backups.Restore(ctx, snapshot); err != nil {
		return err
	}
	return e.runInstall(ctx)
}

func (e *Engine) succeed(ctx context.Context, revision string, tier Tier) Result {
	if err := e.history.ClearOnSuccess(); err != nil {
		log.Error(err, "cannot clear update history")
	}
	if err := e.writeDeviceInfo(revision); err != nil {
		log.Warn("cannot record firmware revision", "err", err)
	}
	if err := e.backups.Prune(ctx); err != nil {
		log.Warn("cannot prune old backups", "err", err)
	}
	metrics.UpdateCycles.WithLabelValues("success").Inc()
	log.Info("update cycle succeeded", "revision", revision, "tier", int(tier))
	return Result{Success: true, Applied: true, Tier: tier}
}

func (e *Engine) fail(ctx context.Context, tier Tier, cause error) Result {
	if err := e.history.AppendErrors(cause.Error()); err != nil {
		log.Error(err, "cannot append attempt error")
	}

	rec, err := e.history.Load()
	if err != nil {
		log.Error(err, "cannot load update history")
	}
	all := rec.AllErrors()

	e.report(ctx, all)

	metrics.UpdateCycles.WithLabelValues("failure").Inc()
	return Result{Applied: true, Tier: tier, Errors: all}
}

// report forwards the accumulated error list when the device has usable
// credentials. An unprovisioned device keeps the history on disk instead.
func (e *Engine) report(ctx context.Context, errs []string) {
	if e.Reporter == nil || e.cfg == nil {
		return
	}
	configured, err := e.cfg.IsConfigured()
	if err != nil || !configured {
		return
	}
	payload := append([]string{updateFailedMarker}, errs...)
	if err := e.Reporter.ReportErrors(ctx, payload); err != nil {
		log.Warn("cannot forward update failure report", "err", err)
	}
}

func (e *Engine) writeDeviceInfo(revision string) error {
	if e.DeviceInfoPath == "" {
		return nil
	}
	return store.New(e.DeviceInfoPath).Save(&DeviceInfo{
		FirmwareRevision: revision,
		UpdatedAt:        time.Now().UTC(),
	})
}
