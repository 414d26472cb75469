// Package control implements the termination controller: the per-worker
// run context every payload loop polls to decide whether to keep
// iterating, and the bogo-ops accounting used both for liveness and for
// the max-ops stop condition.
package control

import (
	"time"

	"stressforge/internal/engine/shm"
	appErr "stressforge/pkg/errors"
)

// DefaultBatch is the polling batch size payload loops use when they do
// not declare their own. Overshoot past max-ops is bounded by the batch.
const DefaultBatch = 64

// RunContext is the per-worker handle passed to a payload. Read-only
// after creation except for the counter the worker owns.
type RunContext struct {
	Worker   int
	Workers  int
	PageSize int

	// Deadline is the absolute end time; zero means no deadline.
	Deadline time.Time
	// MaxOps is the bogo-ops stop bound; zero means unbounded.
	MaxOps uint64

	counter *shm.Counter
	region  *shm.Region
}

// NewRunContext builds a worker's run context over the shared region.
func NewRunContext(region *shm.Region, worker int, deadline time.Time, maxOps uint64, pageSize int) (*RunContext, error) {
	counter, err := region.Counter(worker)
	if err != nil {
		return nil, err
	}
	return &RunContext{
		Worker:   worker,
		Workers:  region.Workers(),
		PageSize: pageSize,
		Deadline: deadline,
		MaxOps:   maxOps,
		counter:  counter,
		region:   region,
	}, nil
}

// ShouldContinue reports whether the payload loop should keep iterating:
// the process-wide continue flag is set, the worker's bogo-ops counter
// is below max-ops, and the deadline has not passed. Payloads must poll
// it frequently enough that shutdown latency stays sub-second; checking
// once per batch of iterations is the expected pattern.
func (c *RunContext) ShouldContinue() bool {
	if !c.region.KeepRunning() {
		return false
	}
	if c.MaxOps > 0 && c.counter.Load() >= c.MaxOps {
		return false
	}
	if !c.Deadline.IsZero() && !time.Now().Before(c.Deadline) {
		return false
	}
	return true
}

// BogoInc records one unit of payload progress.
func (c *RunContext) BogoInc() {
	c.counter.Inc()
}

// BogoAdd records n units of payload progress. Payloads that batch
// updates accept a soft max-ops bound in exchange for less counter
// traffic.
func (c *RunContext) BogoAdd(n uint64) {
	c.counter.Add(n)
}

// Ops returns this worker's bogo-ops count so far.
func (c *RunContext) Ops() uint64 {
	return c.counter.Load()
}

// SetMetric publishes a named metric for this worker.
func (c *RunContext) SetMetric(label string, value float64, kind shm.AggKind) error {
	return c.region.SetMetric(c.Worker, label, value, kind)
}

// Region exposes the shared region for engine-internal callers.
func (c *RunContext) Region() *shm.Region {
	return c.region
}

// Validate checks the context invariants before the payload runs.
func (c *RunContext) Validate() error {
	if c.counter == nil || c.region == nil {
		return appErr.New(appErr.InternalError).WithMessage("run context is not initialized")
	}
	if c.Worker < 0 || c.Worker >= c.Workers {
		return appErr.New(appErr.WorkerIndexOutOfRange).WithDetail("worker", c.Worker)
	}
	return nil
}
