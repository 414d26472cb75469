package trampoline

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWatchdogBound is the wait before a hung method is treated the
// same as a trapped one.
const DefaultWatchdogBound = time.Second

// Watchdog bounds a single risky attempt in time. On expiry it only
// sets state and runs the pre-armed callback; methods that hang rather
// than trap get disabled instead of stalling the whole run. The timer
// must be re-armed before every attempt, since a fired timer stays
// disarmed.
type Watchdog struct {
	mu    sync.Mutex
	bound time.Duration
	timer *time.Timer
	fired atomic.Bool
}

// NewWatchdog creates a watchdog with the given bound; zero or negative
// bounds fall back to the default.
func NewWatchdog(bound time.Duration) *Watchdog {
	if bound <= 0 {
		bound = DefaultWatchdogBound
	}
	return &Watchdog{bound: bound}
}

// Arm starts (or restarts) the timer. When it fires, the fired flag is
// set and onFire runs once. Arm resets the fired flag from any earlier
// trip.
func (w *Watchdog) Arm(onFire func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.fired.Store(false)
	w.timer = time.AfterFunc(w.bound, func() {
		w.fired.Store(true)
		if onFire != nil {
			onFire()
		}
	})
}

// Disarm stops the timer without firing.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Fired reports whether the current arming has expired.
func (w *Watchdog) Fired() bool {
	return w.fired.Load()
}

// Bound returns the configured wait.
func (w *Watchdog) Bound() time.Duration {
	return w.bound
}
