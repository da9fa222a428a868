package adapters

import (
	"sync"
	"time"
)

// Health is the per-adapter connection state exposed for diagnostics.
type Health struct {
	Connected     bool      `json:"connected"`
	LastError     string    `json:"last_error,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// HealthTracker records the outcome of every adapter call. It is owned by
// exactly one adapter and safe for concurrent readers.
type HealthTracker struct {
	mu  sync.Mutex
	cur Health
	now func() time.Time
}

// NewHealthTracker returns a tracker in the never-checked state.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{now: time.Now}
}

// RecordSuccess marks the adapter connected and clears the last error.
func (t *HealthTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = Health{Connected: true, LastCheckedAt: t.now().UTC()}
}

// RecordFailure marks the adapter disconnected with the failure message.
func (t *HealthTracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	t.cur = Health{Connected: false, LastError: msg, LastCheckedAt: t.now().UTC()}
}

// Snapshot returns a copy of the current health state.
func (t *HealthTracker) Snapshot() Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// Reset returns the tracker to its initial state; used on explicit reconnect.
func (t *HealthTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = Health{}
}
