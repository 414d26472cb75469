// Package shm implements the shared metrics region: a single MAP_SHARED
// memory-fd mapping established by the parent before any worker is
// spawned and re-mapped by every worker from an inherited descriptor.
// All fields are either owned by exactly one writer or monotonic, so no
// cross-process locking is used; readers accept torn multi-word reads.
package shm

const (
	regionMagic   uint64 = 0x5354525346524731 // "STRSFRG1"
	regionVersion uint32 = 1

	headerSize     = 64
	workerSlotSize = 64
	metricSlotSize = 128

	// MaxMetricSlots bounds the named-metric table.
	MaxMetricSlots = 64

	metricLabelBytes = 96
)

// Header field offsets.
const (
	offMagic       = 0
	offVersion     = 8
	offWorkerCount = 12
	offContinue    = 16
	offGate        = 20
	offMetricCap   = 24
)

// Worker slot field offsets, relative to the slot base.
const (
	wOffBogo    = 0
	wOffStartNs = 8
	wOffDoneNs  = 16
	wOffReady   = 24
	wOffState   = 28
)

// Metric slot field offsets, relative to the slot base.
const (
	mOffUsed   = 0
	mOffKind   = 4
	mOffWorker = 8
	mOffValue  = 16
	mOffLabel  = 32
)

// Metric slot publication states.
const (
	slotEmpty     uint32 = 0
	slotClaiming  uint32 = 1
	slotPublished uint32 = 2
)

// AggKind governs how the parent combines per-worker metric values.
type AggKind uint32

const (
	// AggArithmetic sums and divides; used for additive rates.
	AggArithmetic AggKind = iota
	// AggHarmonic averages reciprocals; used for time-per-operation
	// quantities so slow outliers do not skew the combined rate.
	AggHarmonic
)

// WorkerState is the lifecycle phase a worker reports into its slot.
type WorkerState uint32

const (
	StateSpawning WorkerState = iota
	StateSyncWait
	StateRunning
	StateDeinit
	StateExited
)

func (s WorkerState) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateSyncWait:
		return "sync-wait"
	case StateRunning:
		return "running"
	case StateDeinit:
		return "deinit"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// MetricSample is one published named metric read back by the parent.
type MetricSample struct {
	Worker int
	Label  string
	Value  float64
	Kind   AggKind
}

// Size returns the region size in bytes for the given worker count,
// rounded up to the page size.
func Size(workers, pageSize int) int {
	raw := headerSize + workers*workerSlotSize + MaxMetricSlots*metricSlotSize
	if pageSize <= 0 {
		return raw
	}
	return (raw + pageSize - 1) / pageSize * pageSize
}

func workerSlotOff(i int) int {
	return headerSize + i*workerSlotSize
}

func metricSlotOff(workers, j int) int {
	return headerSize + workers*workerSlotSize + j*metricSlotSize
}
