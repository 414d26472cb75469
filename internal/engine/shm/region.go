package shm

import (
	"bytes"
	"math"
	"os"
	"sync/atomic"
	"unsafe"

	appErr "stressforge/pkg/errors"
)

// Region is a mapped view of the shared metrics block. The parent holds
// the allocating view; each worker holds an attached view of the same
// memory. A bogo counter slot is written by exactly one worker and only
// read by the parent.
type Region struct {
	file    *os.File
	data    []byte
	workers int
}

// File returns the backing memory fd, to be passed to workers via
// ExtraFiles.
func (r *Region) File() *os.File {
	return r.file
}

// Workers returns the worker count the region was sized for.
func (r *Region) Workers() int {
	return r.workers
}

func (r *Region) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.data[off]))
}

func (r *Region) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.data[off]))
}

func (r *Region) i64(off int) *int64 {
	return (*int64)(unsafe.Pointer(&r.data[off]))
}

func (r *Region) initHeader(workers int) {
	atomic.StoreUint32(r.u32(offVersion), regionVersion)
	atomic.StoreUint32(r.u32(offWorkerCount), uint32(workers))
	atomic.StoreUint32(r.u32(offContinue), 1)
	atomic.StoreUint32(r.u32(offGate), 0)
	atomic.StoreUint32(r.u32(offMetricCap), MaxMetricSlots)
	// Magic last: attaching workers treat it as the published marker.
	atomic.StoreUint64(r.u64(offMagic), regionMagic)
}

func (r *Region) validateHeader() error {
	if atomic.LoadUint64(r.u64(offMagic)) != regionMagic {
		return appErr.New(appErr.RegionCorrupt)
	}
	if atomic.LoadUint32(r.u32(offVersion)) != regionVersion {
		return appErr.New(appErr.RegionVersionMismatch)
	}
	workers := int(atomic.LoadUint32(r.u32(offWorkerCount)))
	if workers <= 0 || Size(workers, 0) > len(r.data) {
		return appErr.New(appErr.RegionCorrupt)
	}
	r.workers = workers
	return nil
}

// KeepRunning reports the process-wide continue flag.
func (r *Region) KeepRunning() bool {
	return atomic.LoadUint32(r.u32(offContinue)) != 0
}

// StopAll clears the continue flag; every payload loop observes it on
// its next poll.
func (r *Region) StopAll() {
	atomic.StoreUint32(r.u32(offContinue), 0)
}

// ReleaseGate opens the startup gate, letting all sync-waiting workers
// enter their timed RUNNING phase together.
func (r *Region) ReleaseGate() {
	atomic.StoreUint32(r.u32(offGate), 1)
}

// GateReleased reports whether the startup gate is open.
func (r *Region) GateReleased() bool {
	return atomic.LoadUint32(r.u32(offGate)) != 0
}

// SetReady marks worker i as having reached the barrier.
func (r *Region) SetReady(i int) {
	if i < 0 || i >= r.workers {
		return
	}
	atomic.StoreUint32(r.u32(workerSlotOff(i)+wOffReady), 1)
}

// Ready reports whether worker i has reached the barrier.
func (r *Region) Ready(i int) bool {
	if i < 0 || i >= r.workers {
		return false
	}
	return atomic.LoadUint32(r.u32(workerSlotOff(i)+wOffReady)) != 0
}

// AllReady reports whether every worker has reached the barrier.
func (r *Region) AllReady() bool {
	for i := 0; i < r.workers; i++ {
		if !r.Ready(i) {
			return false
		}
	}
	return true
}

// SetState records worker i's lifecycle phase.
func (r *Region) SetState(i int, s WorkerState) {
	if i < 0 || i >= r.workers {
		return
	}
	atomic.StoreUint32(r.u32(workerSlotOff(i)+wOffState), uint32(s))
}

// State reads worker i's lifecycle phase.
func (r *Region) State(i int) WorkerState {
	if i < 0 || i >= r.workers {
		return StateSpawning
	}
	return WorkerState(atomic.LoadUint32(r.u32(workerSlotOff(i) + wOffState)))
}

// MarkStart records the RUNNING-phase entry timestamp for worker i.
func (r *Region) MarkStart(i int, unixNano int64) {
	if i < 0 || i >= r.workers {
		return
	}
	atomic.StoreInt64(r.i64(workerSlotOff(i)+wOffStartNs), unixNano)
}

// StartNs returns worker i's RUNNING-phase entry timestamp.
func (r *Region) StartNs(i int) int64 {
	if i < 0 || i >= r.workers {
		return 0
	}
	return atomic.LoadInt64(r.i64(workerSlotOff(i) + wOffStartNs))
}

// MarkDone records the DEINIT timestamp for worker i.
func (r *Region) MarkDone(i int, unixNano int64) {
	if i < 0 || i >= r.workers {
		return
	}
	atomic.StoreInt64(r.i64(workerSlotOff(i)+wOffDoneNs), unixNano)
}

// DoneNs returns worker i's DEINIT timestamp.
func (r *Region) DoneNs(i int) int64 {
	if i < 0 || i >= r.workers {
		return 0
	}
	return atomic.LoadInt64(r.i64(workerSlotOff(i) + wOffDoneNs))
}

// Counter is a worker-owned bogo-ops slot. Exactly one worker writes
// it; the parent only reads.
type Counter struct {
	p *uint64
}

// Counter returns worker i's bogo-ops counter.
func (r *Region) Counter(i int) (*Counter, error) {
	if i < 0 || i >= r.workers {
		return nil, appErr.New(appErr.WorkerIndexOutOfRange).WithDetail("worker", i)
	}
	return &Counter{p: r.u64(workerSlotOff(i) + wOffBogo)}, nil
}

// Inc adds one bogo operation.
func (c *Counter) Inc() {
	atomic.AddUint64(c.p, 1)
}

// Add adds n bogo operations.
func (c *Counter) Add(n uint64) {
	atomic.AddUint64(c.p, n)
}

// Load reads the counter; callers other than the owner see a possibly
// slightly stale but monotonic value.
func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(c.p)
}

// Ops reads worker i's bogo-ops counter.
func (r *Region) Ops(i int) uint64 {
	if i < 0 || i >= r.workers {
		return 0
	}
	return atomic.LoadUint64(r.u64(workerSlotOff(i) + wOffBogo))
}

// TotalOps sums all workers' counters.
func (r *Region) TotalOps() uint64 {
	var total uint64
	for i := 0; i < r.workers; i++ {
		total += r.Ops(i)
	}
	return total
}

// SetMetric publishes or updates a named metric for a worker. The slot
// table is fixed-size; exhaustion is an error the payload may ignore
// (metrics are advisory).
func (r *Region) SetMetric(worker int, label string, value float64, kind AggKind) error {
	if worker < 0 || worker >= r.workers {
		return appErr.New(appErr.WorkerIndexOutOfRange).WithDetail("worker", worker)
	}
	if len(label) == 0 {
		return appErr.ValidationError("label", "required")
	}
	if len(label) > metricLabelBytes-1 {
		return appErr.New(appErr.MetricLabelTooLong).WithDetail("label", label)
	}

	// Update in place if this worker already published the label.
	for j := 0; j < MaxMetricSlots; j++ {
		base := metricSlotOff(r.workers, j)
		if atomic.LoadUint32(r.u32(base+mOffUsed)) != slotPublished {
			continue
		}
		if int(atomic.LoadUint32(r.u32(base+mOffWorker))) != worker {
			continue
		}
		if r.slotLabel(base) != label {
			continue
		}
		atomic.StoreUint32(r.u32(base+mOffKind), uint32(kind))
		atomic.StoreUint64(r.u64(base+mOffValue), math.Float64bits(value))
		return nil
	}

	// Claim a fresh slot. The CAS makes concurrent claims from sibling
	// workers land on distinct slots.
	for j := 0; j < MaxMetricSlots; j++ {
		base := metricSlotOff(r.workers, j)
		if !atomic.CompareAndSwapUint32(r.u32(base+mOffUsed), slotEmpty, slotClaiming) {
			continue
		}
		atomic.StoreUint32(r.u32(base+mOffKind), uint32(kind))
		atomic.StoreUint32(r.u32(base+mOffWorker), uint32(worker))
		copy(r.data[base+mOffLabel:base+mOffLabel+metricLabelBytes], make([]byte, metricLabelBytes))
		copy(r.data[base+mOffLabel:], label)
		atomic.StoreUint64(r.u64(base+mOffValue), math.Float64bits(value))
		atomic.StoreUint32(r.u32(base+mOffUsed), slotPublished)
		return nil
	}
	return appErr.New(appErr.MetricTableFull).WithDetail("label", label)
}

func (r *Region) slotLabel(base int) string {
	raw := r.data[base+mOffLabel : base+mOffLabel+metricLabelBytes]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// Metrics snapshots all published metric samples. Values may be torn
// with respect to in-flight updates; reporting tolerates that.
func (r *Region) Metrics() []MetricSample {
	var out []MetricSample
	for j := 0; j < MaxMetricSlots; j++ {
		base := metricSlotOff(r.workers, j)
		if atomic.LoadUint32(r.u32(base+mOffUsed)) != slotPublished {
			continue
		}
		out = append(out, MetricSample{
			Worker: int(atomic.LoadUint32(r.u32(base + mOffWorker))),
			Label:  r.slotLabel(base),
			Value:  math.Float64frombits(atomic.LoadUint64(r.u64(base + mOffValue))),
			Kind:   AggKind(atomic.LoadUint32(r.u32(base + mOffKind))),
		})
	}
	return out
}
