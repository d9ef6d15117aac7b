package system

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/coldsentry-io/coldsentry/internal/runner"
)

// DefaultUnitDir is where systemd picks up locally installed unit files.
const DefaultUnitDir = "/etc/systemd/system"

// UnitInstaller copies the unit files shipped inside the firmware tree into
// the systemd unit directory. Firmware updates change the device's own
// services this way, and a rollback that re-runs the install against the
// restored tree puts the old unit files back.
type UnitInstaller struct {
	run runner.Runner

	// SourceDir is the unit directory inside the firmware tree.
	SourceDir string

	// TargetDir is the systemd unit directory.
	TargetDir string
}

func NewUnitInstaller(run runner.Runner, sourceDir string) *UnitInstaller {
	return &UnitInstaller{run: run, SourceDir: sourceDir, TargetDir: DefaultUnitDir}
}

// Refresh installs the shipped .service and .timer files and tells systemd
// to re-read them. A firmware tree that ships no unit directory, or one with
// no unit files in it, is a no-op.
func (u *UnitInstaller) Refresh(ctx context.Context) error {
	res, err := u.run.Probe(ctx, "ls", "-1", u.SourceDir)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return nil
	}

	copied := false
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		name := strings.TrimSpace(line)
		if !strings.HasSuffix(name, ".service") && !strings.HasSuffix(name, ".timer") {
			continue
		}
		if _, err := u.run.Run(ctx, "cp", filepath.Join(u.SourceDir, name), u.TargetDir); err != nil {
			return err
		}
		copied = true
	}
	if !copied {
		return nil
	}

	_, err = u.run.Run(ctx, systemctl, "daemon-reload")
	return err
}
