package cloud

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsentry-io/coldsentry/pkg/mqtt"
)

type publishedMessage struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeMQTT struct {
	published []publishedMessage
}

var _ mqtt.Client = (*fakeMQTT)(nil)

func (f *fakeMQTT) Start(ctx context.Context) error           { return nil }
func (f *fakeMQTT) Disconnect(ctx context.Context)            {}
func (f *fakeMQTT) AwaitConnection(ctx context.Context) error { return nil }
func (f *fakeMQTT) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.published = append(f.published, publishedMessage{topic: topic, retain: retain, payload: payload})
	return nil
}
func (f *fakeMQTT) Subscribe(ctx context.Context, topic string, qos int, handler mqtt.MessageHandler) error {
	return nil
}
func (f *fakeMQTT) Unsubscribe(ctx context.Context, topic string) error { return nil }

func TestPublishOnlineRetainsPresence(t *testing.T) {
	client := &fakeMQTT{}
	tel := NewTelemetry(client, "coldsentry", "walk-in")

	tel.PublishOnline(context.Background(), true)

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "coldsentry/walk-in/online", msg.topic)
	assert.Equal(t, tel.OnlineTopic(), msg.topic)
	assert.True(t, msg.retain)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, true, body["online"])
	assert.Equal(t, "walk-in", body["device"])
}

func TestOnlineTopicMatchesWillTopicHelper(t *testing.T) {
	tel := NewTelemetry(&fakeMQTT{}, "coldsentry", "walk-in")
	assert.Equal(t, OnlineTopic("coldsentry", "walk-in"), tel.OnlineTopic())
}

func TestPublishDiagnosticsMirrorsBatch(t *testing.T) {
	client := &fakeMQTT{}
	tel := NewTelemetry(client, "coldsentry", "walk-in")

	tel.PublishDiagnostics(context.Background(), []string{"sensor read failed"})

	require.Len(t, client.published, 1)
	assert.Equal(t, "coldsentry/walk-in/diagnostics", client.published[0].topic)

	var body map[string]any
	require.NoError(t, json.Unmarshal(client.published[0].payload, &body))
	assert.Equal(t, []any{"sensor read failed"}, body["errors"])
}

func TestPublishDiagnosticsSkipsEmptyBatch(t *testing.T) {
	client := &fakeMQTT{}
	tel := NewTelemetry(client, "coldsentry", "walk-in")

	tel.PublishDiagnostics(context.Background(), nil)
	assert.Empty(t, client.published)
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry
	tel.PublishReading(context.Background(), Reading{})
	tel.PublishDiagnostics(context.Background(), []string{"x"})
	tel.PublishOnline(context.Background(), false)
}
