package updater

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsentry-io/coldsentry/internal/runner"
)

func TestRestoreIsIdempotent(t *testing.T) {
	run := runner.NewFake()
	b := NewBackupManager(run, "/opt/coldsentry", "/var/lib/coldsentry/backups")

	snap := "/var/lib/coldsentry/backups/20260101-000000"
	require.NoError(t, b.Restore(context.Background(), snap))
	assert.Equal(t, 1, run.CallsWithPrefix("rm -rf /opt/coldsentry"))
	assert.Equal(t, 1, run.CallsWithPrefix("mv "+snap))

	// A second restore after the snapshot was already consumed, as happens
	// if the process crashed mid-rollback and retried, converges on the
	// restored tree without touching it again.
	run.Script("test -d "+snap, runner.FakeResponse{ExitCode: 1})
	require.NoError(t, b.Restore(context.Background(), snap))
	assert.Equal(t, 1, run.CallsWithPrefix("rm -rf /opt/coldsentry"))
	assert.Equal(t, 1, run.CallsWithPrefix("mv "+snap))
}

func TestRestoreFailsWhenNothingToRestore(t *testing.T) {
	run := runner.NewFake()
	b := NewBackupManager(run, "/opt/coldsentry", "/var/lib/coldsentry/backups")

	run.Script("test -d", runner.FakeResponse{ExitCode: 1})
	assert.Error(t, b.Restore(context.Background(), "/var/lib/coldsentry/backups/missing"))
}

func TestPruneKeepsNewestSnapshots(t *testing.T) {
	run := runner.NewFake()
	b := NewBackupManager(run, "/opt/coldsentry", "/backups")

	run.Script("ls -1 /backups", runner.FakeResponse{
		Stdout: "20260101-000000\n20260102-000000\n20260103-000000\n20260104-000000\n20260105-000000\n20260106-000000\n20260107-000000",
	})
	require.NoError(t, b.Prune(context.Background()))

	assert.Equal(t, 1, run.CallsWithPrefix("rm -rf /backups/20260101-000000"))
	assert.Equal(t, 1, run.CallsWithPrefix("rm -rf /backups/20260102-000000"))
	assert.Equal(t, 2, run.CallsWithPrefix("rm -rf /backups/"))
}

func TestPruneBelowLimitIsNoop(t *testing.T) {
	run := runner.NewFake()
	b := NewBackupManager(run, "/opt/coldsentry", "/backups")

	run.Script("ls -1 /backups", runner.FakeResponse{Stdout: "20260101-000000\n20260102-000000"})
	require.NoError(t, b.Prune(context.Background()))
	assert.Zero(t, run.CallsWithPrefix("rm -rf"))
}
