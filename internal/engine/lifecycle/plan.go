// Package lifecycle manages worker processes: spawning with retries,
// the startup synchronization barrier, deadline enforcement, exit
// classification including OOM kills, and bounded restart supervision.
package lifecycle

import (
	"syscall"
	"time"

	appErr "stressforge/pkg/errors"
)

// RunPlan describes one supervised run of a stressor.
type RunPlan struct {
	RunID     string
	Stressor  string
	Options   map[string]string
	Instances int
	Timeout   time.Duration // zero = no deadline
	MaxOps    uint64        // zero = unbounded
	Verify    bool
	PinCPUs   bool
}

// Deadline converts the plan's timeout into an absolute end time.
func (p RunPlan) Deadline(now time.Time) time.Time {
	if p.Timeout <= 0 {
		return time.Time{}
	}
	return now.Add(p.Timeout)
}

// Validate checks the plan before any resource is allocated.
func (p RunPlan) Validate() error {
	if p.Stressor == "" {
		return appErr.ValidationError("stressor", "required")
	}
	if p.Instances <= 0 {
		return appErr.ValidationError("instances", "must be positive")
	}
	return nil
}

// InitRequest is the JSON handshake the parent writes to a worker's
// stdin. The shared region fd is ExtraFiles[0] (fd 3); the worker
// validates the region header before first use.
type InitRequest struct {
	RunID            string            `json:"runId"`
	Stressor         string            `json:"stressor"`
	Options          map[string]string `json:"options,omitempty"`
	Worker           int               `json:"worker"`
	Workers          int               `json:"workers"`
	MaxOps           uint64            `json:"maxOps"`
	DeadlineUnixNano int64             `json:"deadlineUnixNano"`
	Verify           bool              `json:"verify"`
	CPU              int               `json:"cpu"` // -1 = no pinning
}

// RegionFd is the file descriptor number a worker finds the shared
// region on: the first ExtraFiles entry after stdin/stdout/stderr.
const RegionFd = 3

// ExitClassification partitions how a worker left.
type ExitClassification int

const (
	ClassNormal ExitClassification = iota
	ClassSignaled
	ClassOomKilled
)

func (c ExitClassification) String() string {
	switch c {
	case ClassNormal:
		return "exited"
	case ClassSignaled:
		return "signaled"
	case ClassOomKilled:
		return "oom-killed"
	default:
		return "unknown"
	}
}

// ExitStatus is the classified result of reaping one worker process.
type ExitStatus struct {
	Class  ExitClassification
	Code   int            // valid for ClassNormal
	Signal syscall.Signal // valid for ClassSignaled/ClassOomKilled
}

// ExitCode maps the status onto the engine's process exit-code space.
func (s ExitStatus) ExitCode() int {
	switch s.Class {
	case ClassNormal:
		return s.Code
	case ClassOomKilled:
		return appErr.ExitResourceUnavailable
	default:
		return appErr.ExitEngineFailure
	}
}

// SlotResult is the parent-side record of one worker slot after all
// restarts are spent.
type SlotResult struct {
	Slot     int
	Pid      int
	Status   ExitStatus
	Restarts int
	Ops      uint64
}

// RunResult aggregates a supervised run. Partial failures do not
// silently pass: the worst classification across workers wins, while
// collected metrics are still reported.
type RunResult struct {
	Slots    []SlotResult
	Duration time.Duration
}

// WorstExit returns the most severe exit code across all slots.
// Severity order: engine failure > verification failure > resource
// unavailable > unimplemented > success.
func (r *RunResult) WorstExit() int {
	rank := func(code int) int {
		switch code {
		case appErr.ExitSuccess:
			return 0
		case appErr.ExitUnimplemented:
			return 1
		case appErr.ExitResourceUnavailable:
			return 2
		case appErr.ExitVerificationFailure:
			return 3
		default:
			return 4
		}
	}
	worst := appErr.ExitSuccess
	for _, s := range r.Slots {
		if code := s.Status.ExitCode(); rank(code) > rank(worst) {
			worst = code
		}
	}
	return worst
}

// TotalOps sums the final bogo-ops counters across slots.
func (r *RunResult) TotalOps() uint64 {
	var total uint64
	for _, s := range r.Slots {
		total += s.Ops
	}
	return total
}
