package trampoline

import (
	"sort"
	"sync"

	appErr "stressforge/pkg/errors"
)

// Probe targets are the risky method bodies a disposable subprocess
// executes exactly once. Stressor packages register theirs at init so
// both the orchestrator and the worker helper binary see the same set.

var (
	targetsMu sync.RWMutex
	targets   = make(map[string]func())
)

// RegisterTarget registers a probe target under a unique name. Panics
// on duplicates, mirroring the stressor registry.
func RegisterTarget(name string, fn func()) {
	targetsMu.Lock()
	defer targetsMu.Unlock()
	if _, ok := targets[name]; ok {
		panic("trampoline: duplicate probe target " + name)
	}
	targets[name] = fn
}

// RunTarget executes a registered target in the current process. A trap
// is allowed to kill the process; the parent observes the exit status.
func RunTarget(name string) error {
	targetsMu.RLock()
	fn, ok := targets[name]
	targetsMu.RUnlock()
	if !ok {
		return appErr.New(appErr.NotFound).WithDetail("target", name)
	}
	fn()
	return nil
}

// TargetNames lists registered probe targets, sorted.
func TargetNames() []string {
	targetsMu.RLock()
	defer targetsMu.RUnlock()
	out := make([]string, 0, len(targets))
	for name := range targets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
