// Package pool provides pooled time.Timers for the bounded waits of the
// command and realtime channels, avoiding a timer allocation per wait.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer firing after d, reusing a pooled timer when one
// is available. Return it with PutTimer when the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer) // the pool only ever holds *time.Timer
		if t.Reset(d) {
			// drain a stale fire left from the previous owner
			select {
			case <-t.C:
			default:
			}
		}

		return t
	}

	return time.NewTimer(d)
}

// PutTimer stops t and returns it to the pool. t must not be used after the
// call.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// drain t.C if the fire was never received
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
