package monitor

import (
	"context"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/cloud"
	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// DefaultDiagnosticsPath is where undeliverable diagnostics wait for the
// next successful cloud contact.
const DefaultDiagnosticsPath = "/var/lib/coldsentry/diagnostics.json"

type diagnosticsRecord struct {
	Entries []string `json:"entries"`
}

// DiagnosticsBuffer persists diagnostic lines the device could not deliver,
// so they survive the reboots they usually describe.
type DiagnosticsBuffer struct {
	st  *store.Store
	now func() time.Time
}

func NewDiagnosticsBuffer(path string) *DiagnosticsBuffer {
	if path == "" {
		path = DefaultDiagnosticsPath
	}
	return &DiagnosticsBuffer{st: store.New(path), now: time.Now}
}

// Append records a line, stamped with the current time. A line identical to
// the most recent entry's message is dropped, which is what keeps the
// budget-exhausted diagnostic from repeating every iteration.
func (b *DiagnosticsBuffer) Append(msg string) error {
	var rec diagnosticsRecord
	return b.st.Update(&rec, func() error {
		stamped := b.now().UTC().Format(time.RFC3339) + " " + msg
		if n := len(rec.Entries); n > 0 {
			last := rec.Entries[n-1]
			if len(last) > len(msg) && last[len(last)-len(msg):] == msg {
				return nil
			}
		}
		rec.Entries = append(rec.Entries, stamped)
		return nil
	})
}

// Entries returns the buffered lines.
func (b *DiagnosticsBuffer) Entries() ([]string, error) {
	var rec diagnosticsRecord
	_, err := b.st.Load(&rec)
	return rec.Entries, err
}

// Flush forwards the buffered lines and clears the buffer on success. An
// empty buffer is a no-op.
func (b *DiagnosticsBuffer) Flush(ctx context.Context, r cloud.Reporter) error {
	entries, err := b.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := r.ReportErrors(ctx, entries); err != nil {
		return err
	}
	return b.st.Save(&diagnosticsRecord{})
}
