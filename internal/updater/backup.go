package updater

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/internal/runner"
)

const backupsToKeep = 5

// BackupManager snapshots and restores the firmware tree. Snapshots are
// plain directory copies named by timestamp under BackupDir.
type BackupManager struct {
	run        runner.Runner
	InstallDir string
	BackupDir  string
	now        func() time.Time
}

func NewBackupManager(run runner.Runner, installDir, backupDir string) *BackupManager {
	return &BackupManager{run: run, InstallDir: installDir, BackupDir: backupDir, now: time.Now}
}

// Snapshot copies the install tree aside and returns the snapshot path.
func (b *BackupManager) Snapshot(ctx context.Context) (string, error) {
	dst := filepath.Join(b.BackupDir, b.now().UTC().Format("20060102-150405"))
	if _, err := b.run.Run(ctx, "mkdir", "-p", b.BackupDir); err != nil {
		return "", fmt.Errorf("%w: %v", faults.ErrBackup, err)
	}
	if _, err := b.run.Run(ctx, "cp", "-r", b.InstallDir, dst); err != nil {
		return "", fmt.Errorf("%w: %v", faults.ErrBackup, err)
	}
	return dst, nil
}

// Restore discards the current install tree and moves the snapshot back in
// its place. Safe to call again if a prior restore already consumed the
// snapshot: a missing snapshot with an intact install tree is a no-op.
func (b *BackupManager) Restore(ctx context.Context, snapshot string) error {
	probe, err := b.run.Probe(ctx, "test", "-d", snapshot)
	if err != nil {
		return fmt.Errorf("%w: %v", faults.ErrRollback, err)
	}
	if probe.ExitCode != 0 {
		if installed, err := b.run.Probe(ctx, "test", "-d", b.InstallDir); err == nil && installed.ExitCode == 0 {
			return nil
		}
		return fmt.Errorf("%w: snapshot %s missing", faults.ErrRollback, snapshot)
	}
	if _, err := b.run.Run(ctx, "rm", "-rf", b.InstallDir); err != nil {
		return fmt.Errorf("%w: %v", faults.ErrRollback, err)
	}
	if _, err := b.run.Run(ctx, "mv", snapshot, b.InstallDir); err != nil {
		return fmt.Errorf("%w: %v", faults.ErrRollback, err)
	}
	return nil
}

// Prune drops all but the newest backupsToKeep snapshots. Called only after
// a verified success so a failing device never loses restore points.
func (b *BackupManager) Prune(ctx context.Context) error {
	res, err := b.run.Probe(ctx, "ls", "-1", b.BackupDir)
	if err != nil || res.ExitCode != 0 {
		return err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	if len(names) <= backupsToKeep {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-backupsToKeep] {
		if _, err := b.run.Run(ctx, "rm", "-rf", filepath.Join(b.BackupDir, name)); err != nil {
			return err
		}
	}
	return nil
}
