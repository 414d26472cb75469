// Package trampoline lets a worker attempt instructions or memory-access
// patterns of uncertain legality and recover cleanly when they trap.
// Memory faults are converted into recoverable panics in-process; raw
// instruction probes run in a disposable subprocess whose exit status
// reports the verdict. In both cases a trap during method M disables
// only M, never the engine.
package trampoline

import (
	"runtime"
	"runtime/debug"
	"sort"
	"sync"

	appErr "stressforge/pkg/errors"
)

// Guard tracks which methods have been disabled for this worker's
// lifetime and provides the checkpoint around each risky attempt. A
// disabled method is never retried.
type Guard struct {
	mu       sync.Mutex
	disabled map[string]string // method -> reason
	fallback string
}

// NewGuard creates a guard with the given always-legal fallback method.
func NewGuard(fallback string) *Guard {
	return &Guard{
		disabled: make(map[string]string),
		fallback: fallback,
	}
}

// Fallback returns the guard's known-safe method name.
func (g *Guard) Fallback() string {
	return g.fallback
}

// Disabled reports whether the method has been disabled.
func (g *Guard) Disabled(method string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.disabled[method]
	return ok
}

// DisableReason returns the recorded reason a method was disabled.
func (g *Guard) DisableReason(method string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.disabled[method]
	return reason, ok
}

// Disable marks the method disabled for the remainder of this worker's
// life. Disabling is permanent and idempotent; the first reason wins.
func (g *Guard) Disable(method, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.disabled[method]; !ok {
		g.disabled[method] = reason
	}
}

// DisabledMethods returns the disabled method names, sorted.
func (g *Guard) DisabledMethods() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.disabled))
	for m := range g.disabled {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Attempt is the checkpoint: it runs fn with memory faults promoted to
// recoverable panics. On a trap the method is disabled and a
// ProbeTrapped error is returned; the caller resumes normally, which is
// the non-local-jump recovery the engine depends on. A panic that is
// not a runtime fault is re-raised untouched.
func (g *Guard) Attempt(method string, fn func()) (err error) {
	if g.Disabled(method) {
		return appErr.New(appErr.MethodDisabled).WithDetail("method", method)
	}

	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		re, ok := r.(runtime.Error)
		if !ok {
			panic(r)
		}
		g.Disable(method, re.Error())
		err = appErr.New(appErr.ProbeTrapped).
			WithDetail("method", method).
			WithDetail("reason", re.Error())
	}()

	fn()
	return nil
}

// Select resolves the method to run: the requested one when still
// enabled, otherwise the fallback. If even the fallback is disabled the
// worker has nothing safe left to run and should exit cleanly.
func (g *Guard) Select(method string) (string, error) {
	if !g.Disabled(method) {
		return method, nil
	}
	if !g.Disabled(g.fallback) {
		return g.fallback, nil
	}
	return "", appErr.New(appErr.FallbackDisabled).
		WithDetail("method", method).
		WithDetail("fallback", g.fallback)
}
