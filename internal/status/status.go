// Package status tracks the process-wide crawler state. Crawl and compress
// runs are mutually exclusive through this tracker: a run may only begin from
// idle, and competing attempts are rejected rather than queued.
package status

import (
	"fmt"
	"sync"
)

// Idle is the resting state every run returns to.
const Idle = "idle"

// ErrBusy is returned when a run is requested while another is active.
type ErrBusy struct {
	Current string
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("crawler is currently %s", e.Current)
}

// Tracker is the single mutable crawl-status variable.
type Tracker struct {
	mu      sync.Mutex
	current string
}

func NewTracker() *Tracker {
	return &Tracker{current: Idle}
}

// Begin transitions idle → state. Any other starting point fails with
// *ErrBusy carrying the active state.
func (t *Tracker) Begin(state string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != Idle {
		return &ErrBusy{Current: t.current}
	}
	t.current = state
	return nil
}

// Set updates the descriptor of the active run (progress strings).
func (t *Tracker) Set(state string) {
	t.mu.Lock()
	t.current = state
	t.mu.Unlock()
}

// Done resets the tracker to idle.
func (t *Tracker) Done() {
	t.Set(Idle)
}

// Current returns the current state string.
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// IsIdle reports whether no run is active.
func (t *Tracker) IsIdle() bool {
	return t.Current() == Idle
}
