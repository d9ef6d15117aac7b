// Package runner executes the external commands behind every remedial
// action: service control, version control, network probes, reboots. Every
// invocation records the command line, stdout, stderr, and exit code so the
// diagnostics forwarded to the cloud carry the full picture.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// Result captures one external command invocation.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner spawns external commands.
type Runner interface {
	// Run executes the command and fails on nonzero exit with a
	// faults.CommandError.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// Probe executes the command but suppresses the nonzero-exit error, for
	// status checks where a nonzero exit is an answer rather than a fault.
	// The Result still carries the exit code.
	Probe(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct {
	// Timeout bounds a single command when the caller's context has no
	// earlier deadline. Zero means no bound.
	Timeout time.Duration
}

var _ Runner = (*ExecRunner)(nil)

// New returns an ExecRunner with a conservative default timeout.
func New() *ExecRunner {
	return &ExecRunner{Timeout: 10 * time.Minute}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return r.run(ctx, true, name, args...)
}

func (r *ExecRunner) Probe(ctx context.Context, name string, args ...string) (Result, error) {
	return r.run(ctx, false, name, args...)
}

func (r *ExecRunner) run(ctx context.Context, check bool, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmdline := strings.Join(append([]string{name}, args...), " ")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Command: cmdline,
		Stdout:  strings.TrimSpace(stdout.String()),
		Stderr:  strings.TrimSpace(stderr.String()),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		// Did not start at all (missing binary, cancelled context).
		res.ExitCode = -1
		log.Debug("command did not start", "cmd", cmdline, "err", err)
		return res, err
	}

	log.Debug("command finished", "cmd", cmdline, "exit", res.ExitCode)

	if check && res.ExitCode != 0 {
		return res, &faults.CommandError{
			Command:  cmdline,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}
