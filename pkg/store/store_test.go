package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counters struct {
	Failures int    `json:"network_failure_count"`
	Reboots  int    `json:"reboot_count"`
	Updated  string `json:"last_updated,omitempty"`
}

func TestLoadMissingFileLeavesDefaults(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "status.json"))

	c := counters{Failures: 7}
	found, err := s.Load(&c)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 7, c.Failures, "defaults must survive a missing record")
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "status.json"))

	require.NoError(t, s.Save(&counters{Failures: 3, Reboots: 1}))

	var got counters
	found, err := s.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got.Failures)
	assert.Equal(t, 1, got.Reboots)
}

func TestCorruptRecordTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte("{ invalid json }"), 0o644))

	s := New(path)
	var got counters
	found, err := s.Load(&got)
	require.NoError(t, err)
	assert.False(t, found)

	// The next save must repair the record.
	require.NoError(t, s.Save(&counters{Failures: 1}))
	found, err = s.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got.Failures)
}

func TestLoadReplacesDirtyDestination(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "status.json"))
	require.NoError(t, s.Save(&counters{Failures: 1}))

	// A field the writer zeroed (absent from the file under omitempty) must
	// not survive in a destination that already held a value for it.
	c := counters{Reboots: 9, Updated: "yesterday"}
	found, err := s.Load(&c)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, c.Failures)
	assert.Zero(t, c.Reboots)
	assert.Empty(t, c.Updated)
}

func TestUpdateReplacesDirtyDestination(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "status.json"))
	require.NoError(t, s.Save(&counters{Failures: 1}))

	c := counters{Updated: "yesterday"}
	require.NoError(t, s.Update(&c, func() error {
		c.Failures++
		return nil
	}))

	var got counters
	_, err := s.Load(&got)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Failures)
	assert.Empty(t, got.Updated, "stale caller state must not leak into the record")
}

func TestUpdateIsReadModifyWrite(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "status.json"))
	require.NoError(t, s.Save(&counters{Failures: 2}))

	var c counters
	err := s.Update(&c, func() error {
		c.Failures++
		return nil
	})
	require.NoError(t, err)

	var got counters
	_, err = s.Load(&got)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Failures)
}

func TestUpdateSerializesConcurrentWriters(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "status.json"))

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				var c counters
				err := s.Update(&c, func() error {
					c.Failures++
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var got counters
	_, err := s.Load(&got)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, got.Failures, "no increments may be lost under the lock")
}

func TestRemove(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "status.json"))
	require.NoError(t, s.Remove(), "removing a missing record is not an error")

	require.NoError(t, s.Save(&counters{}))
	assert.True(t, s.Exists())
	require.NoError(t, s.Remove())
	assert.False(t, s.Exists())
}

func TestWatchSeesSaves(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "status.json"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 16)
	go func() {
		_ = s.Watch(ctx, 5*time.Second, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Save(&counters{Failures: 1}))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe the save")
	}
}
