// Package indicator drives the status LED shared by the setup, monitor, and
// updater processes, arbitrating pattern ownership through the shared state
// file, and runs the button long-press machine that is the device's only
// local control surface.
package indicator

import "time"

// Indicator state names, as written to the shared state file and accepted by
// the set-indicator CLI.
const (
	StateSetup          = "setup"
	StateRunning        = "running"
	StateError          = "error"
	StateNetworkIssue   = "network-issue"
	StateAPIIssue       = "api-issue"
	StateFirmwareUpdate = "firmware-update"
	StateOff            = "off"
)

// Step is one LED phase within a pattern.
type Step struct {
	On bool
	D  time.Duration
}

// Pattern is a sequence of LED phases, optionally repeated until stopped.
type Pattern struct {
	Steps  []Step
	Repeat bool
}

// blink builds a repeating symmetric blink at the given half-period.
func blink(half time.Duration) Pattern {
	return Pattern{
		Steps:  []Step{{On: true, D: half}, {On: false, D: half}},
		Repeat: true,
	}
}

// burst builds a repeating group of n quick flashes followed by a pause.
// Distinct trouble states get distinct flash counts so they can be told
// apart at a glance.
func burst(n int, pause time.Duration) Pattern {
	var steps []Step
	for i := 0; i < n; i++ {
		steps = append(steps, Step{On: true, D: 150 * time.Millisecond}, Step{On: false, D: 150 * time.Millisecond})
	}
	steps = append(steps, Step{On: false, D: pause})
	return Pattern{Steps: steps, Repeat: true}
}

// Acknowledgement builds a one-shot run of n quick blinks, used by the
// button machine to confirm a crossed hold threshold.
func Acknowledgement(n int) Pattern {
	var steps []Step
	for i := 0; i < n; i++ {
		steps = append(steps, Step{On: true, D: 100 * time.Millisecond}, Step{On: false, D: 150 * time.Millisecond})
	}
	return Pattern{Steps: steps}
}

// patterns maps each state name to its LED pattern.
var patterns = map[string]Pattern{
	StateSetup:          blink(500 * time.Millisecond),
	StateRunning:        {Steps: []Step{{On: true, D: time.Second}}, Repeat: true},
	StateError:          blink(100 * time.Millisecond),
	StateNetworkIssue:   burst(2, 1500*time.Millisecond),
	StateAPIIssue:       burst(3, 1500*time.Millisecond),
	StateFirmwareUpdate: blink(250 * time.Millisecond),
	StateOff:            {Steps: []Step{{On: false, D: time.Second}}, Repeat: true},
}

// PatternFor returns the pattern for a state name.
func PatternFor(state string) (Pattern, bool) {
	p, ok := patterns[state]
	return p, ok
}

// States lists the known state names, for CLI validation.
func States() []string {
	return []string{StateSetup, StateRunning, StateError, StateNetworkIssue, StateAPIIssue, StateFirmwareUpdate, StateOff}
}
