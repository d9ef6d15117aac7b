package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coldsentry-io/coldsentry/pkg/log"
	"github.com/coldsentry-io/coldsentry/pkg/mqtt"
)

// Telemetry mirrors readings and diagnostics to a local MQTT broker. It is
// strictly best-effort: a publish failure never fails the monitoring
// iteration, since the HTTPS path remains the system of record.
type Telemetry struct {
	client   mqtt.Client
	root     string
	deviceID string
}

// NewTelemetry wires a started MQTT client into a publisher. Returns nil if
// client is nil so callers can hold an optional mirror without nil checks
// at every publish site.
func NewTelemetry(client mqtt.Client, topicRoot, deviceID string) *Telemetry {
	if client == nil {
		return nil
	}
	return &Telemetry{client: client, root: topicRoot, deviceID: deviceID}
}

func (t *Telemetry) topic(channel string) string {
	return fmt.Sprintf("%s/%s/%s", t.root, t.deviceID, channel)
}

// OnlineTopic returns the retained presence topic for a device. The caller
// building the MQTT client uses it as the will topic, so the broker flips
// the flag when the device drops off without a clean disconnect.
func OnlineTopic(topicRoot, deviceID string) string {
	return fmt.Sprintf("%s/%s/online", topicRoot, deviceID)
}

// OnlineTopic returns the retained presence topic, also used for the LWT.
func (t *Telemetry) OnlineTopic() string {
	return OnlineTopic(t.root, t.deviceID)
}

// PublishReading mirrors one reading.
func (t *Telemetry) PublishReading(ctx context.Context, r Reading) {
	if t == nil {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.client.Publish(ctx, t.topic("readings"), 1, false, payload); err != nil {
		log.Debug("telemetry reading publish failed", "err", err)
	}
}

// PublishDiagnostics mirrors a diagnostics batch.
func (t *Telemetry) PublishDiagnostics(ctx context.Context, errs []string) {
	if t == nil || len(errs) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"errors":      errs,
		"reported_at": time.Now().Unix(),
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.client.Publish(ctx, t.topic("diagnostics"), 1, false, payload); err != nil {
		log.Debug("telemetry diagnostics publish failed", "err", err)
	}
}

// PublishOnline sets the retained presence flag.
func (t *Telemetry) PublishOnline(ctx context.Context, online bool) {
	if t == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"online": online, "device": t.deviceID})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.client.Publish(ctx, t.OnlineTopic(), 1, true, payload); err != nil {
		log.Debug("telemetry presence publish failed", "err", err)
	}
}
