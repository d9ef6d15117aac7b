package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsentry-io/coldsentry/internal/faults"
)

func TestRunCapturesOutput(t *testing.T) {
	r := New()

	res, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out", res.Stdout)
	assert.Equal(t, "err", res.Stderr)
	assert.Contains(t, res.Command, "sh -c")
}

func TestRunNonzeroExitIsCommandError(t *testing.T) {
	r := New()

	res, err := r.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)

	var cmdErr *faults.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "broken", cmdErr.Stderr)
	assert.Equal(t, 3, res.ExitCode)
}

func TestProbeSuppressesNonzeroExit(t *testing.T) {
	r := New()

	res, err := r.Probe(context.Background(), "sh", "-c", "exit 4")
	require.NoError(t, err, "probe mode must not raise on nonzero exit")
	assert.Equal(t, 4, res.ExitCode)
}

func TestMissingBinaryStillErrors(t *testing.T) {
	r := New()

	_, err := r.Probe(context.Background(), "/definitely/not/a/binary")
	require.Error(t, err, "failure to start is an error even in probe mode")
}
