package updater

import (
	"time"

	"github.com/coldsentry-io/coldsentry/pkg/store"
)

// Attempt is one recorded update cycle.
type Attempt struct {
	Timestamp    time.Time `json:"timestamp"`
	FailureCount int       `json:"failure_count"`
	Errors       []string  `json:"errors,omitempty"`
}

// HistoryRecord is the persisted update history. It is owned exclusively by
// the updater process for the duration of one run.
type HistoryRecord struct {
	Attempts    []Attempt `json:"attempts"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// History wraps the persisted record with the operations the engine needs.
type History struct {
	st  *store.Store
	now func() time.Time
}

func NewHistory(path string) *History {
	return &History{st: store.New(path), now: time.Now}
}

// Load returns the current record; a missing or corrupt file yields an
// empty history.
func (h *History) Load() (HistoryRecord, error) {
	var rec HistoryRecord
	_, err := h.st.Load(&rec)
	return rec, err
}

// BeginAttempt appends a new attempt entry, stamped with the failure count
// at time of entry, and persists it before the cycle proceeds. This is what
// makes the tier monotonically non-decreasing across consecutive failures.
func (h *History) BeginAttempt() (HistoryRecord, error) {
	var rec HistoryRecord
	err := h.st.Update(&rec, func() error {
		rec.Attempts = append(rec.Attempts, Attempt{
			Timestamp:    h.now(),
			FailureCount: len(rec.Attempts),
		})
		return nil
	})
	return rec, err
}

// AppendErrors attaches error text to the most recent attempt.
func (h *History) AppendErrors(errs ...string) error {
	var rec HistoryRecord
	return h.st.Update(&rec, func() error {
		if len(rec.Attempts) == 0 {
			rec.Attempts = append(rec.Attempts, Attempt{Timestamp: h.now()})
		}
		last := &rec.Attempts[len(rec.Attempts)-1]
		last.Errors = append(last.Errors, errs...)
		return nil
	})
}

// ClearOnSuccess atomically wipes the attempt list and stamps the success.
// This is the only path that resets the tier counter.
func (h *History) ClearOnSuccess() error {
	return h.st.Save(&HistoryRecord{LastSuccess: h.now()})
}

// AllErrors flattens the error lists of every recorded attempt, oldest first.
func (r HistoryRecord) AllErrors() []string {
	var out []string
	for _, a := range r.Attempts {
		out = append(out, a.Errors...)
	}
	return out
}
