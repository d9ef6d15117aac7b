package indicator

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// Hold thresholds, ordered. While the button stays down, crossing each
// threshold arms the matching action and plays a blink acknowledgement; the
// highest armed action fires once on release.
const (
	rebootHold  = 2 * time.Second
	setupHold   = 10 * time.Second
	factoryHold = 30 * time.Second
)

const (
	armedNone = iota
	armedReboot
	armedSetup
	armedFactory
)

const (
	stateIdle    = "idle"
	statePressed = "pressed"

	eventPress   = "press"
	eventRelease = "release"
)

// Actions are the remedies the button can trigger. FactoryReset owns the
// whole procedure including the final reboot, so exactly one action fires
// per press regardless of threshold.
type Actions interface {
	Reboot(ctx context.Context) error
	ResetToSetup(ctx context.Context) error
	FactoryReset(ctx context.Context) error
}

// Button polls the physical button and runs the long-press machine. All
// state transitions happen on the single polling goroutine, so the session
// fields need no lock.
type Button struct {
	hal     hal.HAL
	coord   *Coordinator
	actions Actions

	// PollInterval is the button sampling period.
	PollInterval time.Duration

	machine *fsm.FSM
	now     func() time.Time

	pressStart time.Time
	armed      int
	priorState string
}

func NewButton(h hal.HAL, coord *Coordinator, actions Actions) *Button {
	b := &Button{
		hal:          h,
		coord:        coord,
		actions:      actions,
		PollInterval: 100 * time.Millisecond,
		now:          time.Now,
	}
	b.machine = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventPress, Src: []string{stateIdle}, Dst: statePressed},
			{Name: eventRelease, Src: []string{statePressed}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_" + statePressed: func(_ context.Context, _ *fsm.Event) { b.beginSession() },
			"enter_" + stateIdle:    func(ctx context.Context, _ *fsm.Event) { b.endSession(ctx) },
		},
	)
	return b
}

// Run polls the button until ctx is cancelled.
func (b *Button) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.sample(ctx)
		}
	}
}

func (b *Button) sample(ctx context.Context) {
	pressed, err := b.hal.ButtonPressed()
	if err != nil {
		log.Warn("cannot sample button", "err", err)
		return
	}

	switch {
	case pressed && b.machine.Current() == stateIdle:
		if err := b.machine.Event(ctx, eventPress); err != nil {
			log.Warn("button press transition failed", "err", err)
		}
	case pressed:
		b.checkThresholds()
	case b.machine.Current() == statePressed:
		if err := b.machine.Event(ctx, eventRelease); err != nil {
			log.Warn("button release transition failed", "err", err)
		}
	}
}

func (b *Button) beginSession() {
	b.pressStart = b.now()
	b.armed = armedNone
	b.priorState = b.coord.CurrentState()
}

// checkThresholds arms the highest threshold the current hold duration has
// crossed. Each threshold acknowledges exactly once, superseding the
// previous arm.
func (b *Button) checkThresholds() {
	held := b.now().Sub(b.pressStart)
	switch {
	case held >= factoryHold && b.armed < armedFactory:
		b.armed = armedFactory
		b.acknowledge(10)
	case held >= setupHold && b.armed < armedSetup:
		b.armed = armedSetup
		b.acknowledge(5)
	case held >= rebootHold && b.armed < armedReboot:
		b.armed = armedReboot
		b.acknowledge(2)
	}
}

func (b *Button) acknowledge(blinks int) {
	if err := b.coord.StartPattern("ack", Acknowledgement(blinks)); err != nil {
		log.Warn("cannot play acknowledgement", "err", err)
	}
}

// endSession fires the armed action, if any, exactly once. A short press
// with nothing armed restores whatever the indicator showed before the
// press began.
func (b *Button) endSession(ctx context.Context) {
	armed := b.armed
	prior := b.priorState
	b.armed = armedNone
	b.pressStart = time.Time{}

	var err error
	switch armed {
	case armedFactory:
		log.Info("button released past factory threshold, running factory reset")
		err = b.actions.FactoryReset(ctx)
	case armedSetup:
		log.Info("button released past setup threshold, resetting to setup mode")
		err = b.actions.ResetToSetup(ctx)
	case armedReboot:
		log.Info("button released past reboot threshold, rebooting")
		err = b.actions.Reboot(ctx)
	default:
		if prior != "" {
			err = b.coord.SetState(prior)
		} else {
			b.coord.StopOwnPattern()
		}
	}
	if err != nil {
		log.Error(err, "button action failed")
	}
}
