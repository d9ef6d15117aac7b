// Package faults defines the error taxonomy shared by the update engine, the
// monitoring loop, and the indicator coordinator.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrBackup: the pre-update snapshot could not be created. Fatal at the
	// tiers that require a safety net.
	ErrBackup = errors.New("backup failed")

	// ErrVerification: the service did not report active(running) after an
	// update was applied.
	ErrVerification = errors.New("service not confirmed running")

	// ErrRollback: restoring the pre-update snapshot failed. Terminal for
	// the cycle; no further safety net exists below it.
	ErrRollback = errors.New("rollback failed")

	// ErrNetworkUnreachable: connectivity probe failed.
	ErrNetworkUnreachable = errors.New("network unreachable")

	// ErrSensorUnavailable: the probe hardware could not be acquired or read.
	ErrSensorUnavailable = errors.New("sensor unavailable")

	// ErrRebootBudgetExceeded is a policy state, not a failure: the reboot
	// ceiling was hit and further automatic reboots are suppressed.
	ErrRebootBudgetExceeded = errors.New("reboot budget exceeded")
)

// CommandError reports a nonzero exit from an external tool, carrying the
// captured output for diagnostics.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("command %q exited %d", e.Command, e.ExitCode)
}

// AuthError reports a credential rejection from the cloud collaborator.
// Only 401 and 403 produce it; it is the sole trigger for wiping stored
// credentials and returning control to the provisioning flow.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credentials rejected by cloud API (status %d)", e.StatusCode)
}

// IsAuthRejected reports whether err (or anything it wraps) is a credential
// rejection.
func IsAuthRejected(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
