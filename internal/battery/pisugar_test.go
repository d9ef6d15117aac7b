package battery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon speaks just enough of the PiSugar line protocol for the tests.
func fakeDaemon(t *testing.T, replies map[string]string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				key := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "get "))
				if reply, ok := replies[key]; ok {
					fmt.Fprintf(conn, "%s: %s\n", key, reply)
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func TestLevelParsing(t *testing.T) {
	addr := fakeDaemon(t, map[string]string{"battery": "87.5"})
	m := &Monitor{Addr: addr, Timeout: time.Second}

	level, err := m.Level(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 87.5, level, 0.01)
}

func TestLevelFractionIsScaled(t *testing.T) {
	addr := fakeDaemon(t, map[string]string{"battery": "0.85"})
	m := &Monitor{Addr: addr, Timeout: time.Second}

	level, err := m.Level(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 85.0, level, 0.01)
}

func TestFullStatus(t *testing.T) {
	addr := fakeDaemon(t, map[string]string{
		"battery":          "90",
		"battery_charging": "true",
		"battery_voltage":  "4.1",
		"model":            "PiSugar 3",
	})
	m := &Monitor{Addr: addr, Timeout: time.Second}

	st := m.FullStatus(context.Background())
	require.NotNil(t, st)
	assert.InDelta(t, 90.0, st.Level, 0.01)
	assert.True(t, st.Charging)
	assert.InDelta(t, 4.1, st.Voltage, 0.01)
	assert.Equal(t, "PiSugar 3", st.Model)
}

func TestNoDaemonReturnsNilStatus(t *testing.T) {
	m := &Monitor{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond}
	assert.Nil(t, m.FullStatus(context.Background()), "a missing UPS is not a fault")
}
