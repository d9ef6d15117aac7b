package indicator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// DefaultStatePath is the shared indicator state file.
const DefaultStatePath = "/var/lib/coldsentry/indicator_state.json"

// staleAfter bounds how long a stop request stays actionable. A request
// older than this belongs to a requester that gave up or died and is
// ignored rather than acted on.
const staleAfter = 5 * time.Second

// SharedState is the on-disk record arbitrating LED ownership between the
// setup, monitor, and updater processes. At most one pid is recorded as the
// active pattern holder; during a hand-off there is a brief window where two
// processes both drive the LED, bounded by the watch interval. The store's
// file lock keeps individual read-modify-write cycles atomic.
type SharedState struct {
	CurrentState         string    `json:"current_state,omitempty"`
	ActivePatternPID     int       `json:"active_pattern_pid,omitempty"`
	PatternTimestamp     time.Time `json:"pattern_timestamp,omitempty"`
	StopRequestForPID    int       `json:"stop_request_for_pid,omitempty"`
	RequestingPID        int       `json:"requesting_pid,omitempty"`
	StopRequestTimestamp time.Time `json:"stop_request_timestamp,omitempty"`
}

// Coordinator owns this process's side of the LED protocol: it claims
// pattern ownership, runs the pattern goroutine, and answers stop requests
// from other processes. Construct one per process and pass it around.
type Coordinator struct {
	hal hal.HAL
	st  *store.Store
	pid int

	// HandoffWait is how long a claimant waits for the previous holder to
	// react to a stop request before taking over.
	HandoffWait time.Duration

	// JoinTimeout bounds the wait for the pattern goroutine to stop. On
	// timeout the caller proceeds without it and the condition is logged.
	JoinTimeout time.Duration

	// WatchInterval is the fallback poll period of the stop-request monitor.
	WatchInterval time.Duration

	now func() time.Time

	mu     sync.Mutex
	state  string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCoordinator(h hal.HAL, path string) *Coordinator {
	if path == "" {
		path = DefaultStatePath
	}
	return &Coordinator{
		hal:           h,
		st:            store.New(path),
		pid:           os.Getpid(),
		HandoffWait:   300 * time.Millisecond,
		JoinTimeout:   time.Second,
		WatchInterval: 100 * time.Millisecond,
		now:           time.Now,
	}
}

// CurrentState returns the state this process last set, for restoring after
// a button-press acknowledgement.
func (c *Coordinator) CurrentState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState switches the LED to the named state's pattern, claiming
// ownership if another process holds it.
func (c *Coordinator) SetState(name string) error {
	p, ok := PatternFor(name)
	if !ok {
		return fmt.Errorf("unknown indicator state %q", name)
	}
	return c.StartPattern(name, p)
}

// StartPattern claims ownership of the LED and starts driving the pattern
// on a background goroutine. If another process holds ownership, a stop
// request is filed for it first and the claim proceeds after a short wait
// whether or not the holder reacted.
func (c *Coordinator) StartPattern(name string, p Pattern) error {
	var shared SharedState
	if _, err := c.st.Load(&shared); err != nil {
		return err
	}

	if holder := shared.ActivePatternPID; holder != 0 && holder != c.pid {
		var req SharedState
		err := c.st.Update(&req, func() error {
			req.StopRequestForPID = holder
			req.RequestingPID = c.pid
			req.StopRequestTimestamp = c.now()
			return nil
		})
		if err != nil {
			return err
		}
		time.Sleep(c.HandoffWait)
	}

	// The claim starts from a fresh read of the record. The previous holder
	// may have cleared the stop request during the hand-off wait, and the
	// claim must not write those fields back.
	var claim SharedState
	if err := c.st.Update(&claim, func() error {
		claim.ActivePatternPID = c.pid
		claim.PatternTimestamp = c.now()
		claim.CurrentState = name
		return nil
	}); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.state = name

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	go c.runPattern(ctx, done, p)
	return nil
}

// StopOwnPattern stops the local pattern goroutine, if any, and turns the
// LED off. It does not release the on-disk registration; Close does that.
func (c *Coordinator) StopOwnPattern() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Coordinator) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(c.JoinTimeout):
		log.Warn("pattern goroutine did not stop in time", "pid", c.pid)
	}
	c.cancel = nil
	c.done = nil
}

func (c *Coordinator) runPattern(ctx context.Context, done chan struct{}, p Pattern) {
	defer close(done)
	defer func() {
		if err := c.hal.SetLED(false); err != nil {
			log.Warn("cannot turn LED off", "err", err)
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		for _, step := range p.Steps {
			if err := c.hal.SetLED(step.On); err != nil {
				log.Warn("cannot drive LED", "err", err)
			}
			timer.Reset(step.D)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if !p.Repeat {
			return
		}
	}
}

// MonitorForStopRequests watches the shared state until ctx is cancelled,
// stopping the local pattern whenever another process files a stop request
// for this pid. Run it on its own goroutine in every process that drives
// the LED.
func (c *Coordinator) MonitorForStopRequests(ctx context.Context) error {
	return c.st.Watch(ctx, c.WatchInterval, c.checkStopRequest)
}

func (c *Coordinator) checkStopRequest() {
	var shared SharedState
	found, err := c.st.Load(&shared)
	if err != nil || !found {
		return
	}
	if shared.StopRequestForPID != c.pid {
		return
	}

	stale := c.now().Sub(shared.StopRequestTimestamp) > staleAfter
	if !stale {
		log.Debug("stopping pattern on request", "requester", shared.RequestingPID)
		c.StopOwnPattern()
	}

	// The target always clears the request fields, acted on or stale, so a
	// dead requester's leftovers do not linger.
	var cur SharedState
	if err := c.st.Update(&cur, func() error {
		if cur.StopRequestForPID == c.pid {
			cur.StopRequestForPID = 0
			cur.RequestingPID = 0
			cur.StopRequestTimestamp = time.Time{}
		}
		return nil
	}); err != nil {
		log.Warn("cannot clear stop request", "err", err)
	}
}

// Close stops the local pattern and removes this process's registration
// from the shared state. Call on clean process exit.
func (c *Coordinator) Close() error {
	c.StopOwnPattern()

	var shared SharedState
	return c.st.Update(&shared, func() error {
		if shared.ActivePatternPID == c.pid {
			shared.ActivePatternPID = 0
			shared.PatternTimestamp = time.Time{}
		}
		return nil
	})
}
