package mqtt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"coldsentry/v1/dev1/readings", "coldsentry/v1/dev1/readings", true},
		{"coldsentry/v1/+/readings", "coldsentry/v1/dev1/readings", true},
		{"coldsentry/v1/#", "coldsentry/v1/dev1/diagnostics", true},
		{"coldsentry/v1/+/readings", "coldsentry/v1/dev1/diagnostics", false},
		{"coldsentry/v1/+", "coldsentry/v1/dev1/readings", false},
		{"coldsentry/v1/dev1", "coldsentry/v1/dev2", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic), "filter=%s topic=%s", tt.filter, tt.topic)
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	require.Error(t, err, "empty broker must be rejected")

	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883"})
	require.NoError(t, err)
	require.NotNil(t, c)

	// Operations before Start must fail cleanly rather than panic.
	pc := c.(*pahoClient)
	require.Error(t, pc.Publish(context.Background(), "x", 1, false, nil))
}
