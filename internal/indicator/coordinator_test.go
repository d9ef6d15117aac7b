package indicator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

func newTestCoordinator(t *testing.T, path string, pid int) (*Coordinator, *hal.Mock) {
	t.Helper()
	mock := hal.NewMock()
	c := NewCoordinator(mock, path)
	c.pid = pid
	c.HandoffWait = 50 * time.Millisecond
	c.WatchInterval = 20 * time.Millisecond
	t.Cleanup(c.StopOwnPattern)
	return c, mock
}

func patternRunning(c *Coordinator) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func TestOwnershipHandoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicator_state.json")
	a, _ := newTestCoordinator(t, path, 101)
	b, _ := newTestCoordinator(t, path, 202)

	require.NoError(t, a.SetState(StateRunning))
	require.True(t, patternRunning(a))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.MonitorForStopRequests(ctx) //nolint:errcheck

	require.NoError(t, b.SetState(StateSetup))

	// Within the watch interval bound, ownership lands on b and a's local
	// pattern goroutine terminates.
	assert.Eventually(t, func() bool { return !patternRunning(a) }, 2*time.Second, 20*time.Millisecond)
	assert.True(t, patternRunning(b))

	var shared SharedState
	_, err := store.New(path).Load(&shared)
	require.NoError(t, err)
	assert.Equal(t, 202, shared.ActivePatternPID)
	assert.Zero(t, shared.StopRequestForPID)
	assert.Zero(t, shared.RequestingPID)
}

func TestHandoffDoesNotResurrectClearedStopRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicator_state.json")
	a, _ := newTestCoordinator(t, path, 101)
	b, _ := newTestCoordinator(t, path, 202)
	b.HandoffWait = 300 * time.Millisecond

	require.NoError(t, a.SetState(StateRunning))

	st := store.New(path)
	claimed := make(chan error, 1)
	go func() { claimed <- b.SetState(StateSetup) }()

	// Once b has filed its stop request, a answers it inside b's hand-off
	// window, clearing the request fields on disk.
	require.Eventually(t, func() bool {
		var shared SharedState
		found, err := st.Load(&shared)
		return err == nil && found && shared.StopRequestForPID == 101
	}, 2*time.Second, 10*time.Millisecond)
	a.checkStopRequest()
	require.NoError(t, <-claimed)

	// b's claim must not write the cleared request fields back.
	var shared SharedState
	_, err := st.Load(&shared)
	require.NoError(t, err)
	assert.Equal(t, 202, shared.ActivePatternPID)
	assert.Zero(t, shared.StopRequestForPID)
	assert.Zero(t, shared.RequestingPID)
	assert.True(t, shared.StopRequestTimestamp.IsZero())
	assert.False(t, patternRunning(a))
	assert.True(t, patternRunning(b))
}

func TestStaleStopRequestIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicator_state.json")
	a, _ := newTestCoordinator(t, path, 101)

	require.NoError(t, a.SetState(StateRunning))

	st := store.New(path)
	var shared SharedState
	require.NoError(t, st.Update(&shared, func() error {
		shared.StopRequestForPID = 101
		shared.RequestingPID = 999
		shared.StopRequestTimestamp = time.Now().Add(-time.Minute)
		return nil
	}))

	a.checkStopRequest()

	// The stale request is cleared but the pattern keeps running.
	assert.True(t, patternRunning(a))
	_, err := st.Load(&shared)
	require.NoError(t, err)
	assert.Zero(t, shared.StopRequestForPID)
}

func TestCloseRemovesRegistration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicator_state.json")
	a, mock := newTestCoordinator(t, path, 101)

	require.NoError(t, a.SetState(StateRunning))
	require.NoError(t, a.Close())

	var shared SharedState
	_, err := store.New(path).Load(&shared)
	require.NoError(t, err)
	assert.Zero(t, shared.ActivePatternPID)
	assert.False(t, mock.LED())
}

func TestAcknowledgementRunsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicator_state.json")
	a, mock := newTestCoordinator(t, path, 101)

	require.NoError(t, a.StartPattern("ack", Acknowledgement(2)))

	// Two 100ms/150ms blinks finish well within a second; the goroutine
	// then turns the LED off and exits on its own.
	assert.Eventually(t, func() bool { return !mock.LED() }, 2*time.Second, 50*time.Millisecond)
	time.Sleep(700 * time.Millisecond)
	assert.False(t, mock.LED())
}

func TestSetStateRejectsUnknownName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicator_state.json")
	a, _ := newTestCoordinator(t, path, 101)
	assert.Error(t, a.SetState("disco"))
}
