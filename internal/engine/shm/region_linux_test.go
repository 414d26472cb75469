//go:build linux

package shm

import (
	"errors"
	"sync"
	"testing"

	appErr "stressforge/pkg/errors"

	"golang.org/x/sys/unix"
)

func allocForTest(t *testing.T, workers int) *Region {
	t.Helper()
	r, err := Alloc(workers)
	if err != nil {
		t.Fatalf("alloc region: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestAllocAndAttachShareMemory(t *testing.T) {
	parent := allocForTest(t, 4)

	// A second mapping of the same fd simulates the worker-side view.
	child, err := Attach(parent.File())
	if err != nil {
		t.Fatalf("attach region: %v", err)
	}
	defer func() { child.data = nil; child.file = nil }() // parent owns the fd

	if child.Workers() != 4 {
		t.Fatalf("attached worker count = %d, want 4", child.Workers())
	}

	c, err := child.Counter(2)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	c.Add(41)
	c.Inc()
	if got := parent.Ops(2); got != 42 {
		t.Fatalf("parent sees %d ops, want 42", got)
	}

	child.SetReady(2)
	if parent.AllReady() {
		t.Fatalf("AllReady true with only one ready worker")
	}
	for i := 0; i < 4; i++ {
		child.SetReady(i)
	}
	if !parent.AllReady() {
		t.Fatalf("AllReady false with all workers ready")
	}

	if child.GateReleased() {
		t.Fatalf("gate released before parent opened it")
	}
	parent.ReleaseGate()
	if !child.GateReleased() {
		t.Fatalf("worker view does not observe released gate")
	}

	if !child.KeepRunning() {
		t.Fatalf("continue flag not set after alloc")
	}
	parent.StopAll()
	if child.KeepRunning() {
		t.Fatalf("worker view does not observe cleared continue flag")
	}
}

func TestAttachRejectsCorruptRegion(t *testing.T) {
	parent := allocForTest(t, 2)
	parent.data[offMagic] ^= 0xff

	_, err := Attach(parent.File())
	if !appErr.Is(err, appErr.RegionCorrupt) {
		t.Fatalf("attach corrupt region: err = %v, want RegionCorrupt", err)
	}
}

func TestAllocExhaustsRetries(t *testing.T) {
	failures := 0
	orig := memfdCreate
	memfdCreate = func(name string, flags int) (int, error) {
		failures++
		return -1, unix.ENOMEM
	}
	defer func() { memfdCreate = orig }()

	_, err := Alloc(4)
	if err == nil {
		t.Fatalf("alloc succeeded with failing allocator")
	}
	if !appErr.Is(err, appErr.RegionAllocFailed) {
		t.Fatalf("err = %v, want RegionAllocFailed", err)
	}
	if code := appErr.GetCode(err).ExitStatus(); code != appErr.ExitResourceUnavailable {
		t.Fatalf("exit status = %d, want %d", code, appErr.ExitResourceUnavailable)
	}
	if failures != allocRetries {
		t.Fatalf("allocator called %d times, want %d", failures, allocRetries)
	}
	if !errors.Is(err, unix.ENOMEM) {
		t.Fatalf("underlying errno lost: %v", err)
	}
}

func TestMetricsPublishAndUpdate(t *testing.T) {
	r := allocForTest(t, 3)

	if err := r.SetMetric(0, "ops-per-sec", 100, AggArithmetic); err != nil {
		t.Fatalf("set metric: %v", err)
	}
	if err := r.SetMetric(1, "ops-per-sec", 200, AggArithmetic); err != nil {
		t.Fatalf("set metric: %v", err)
	}
	// Same worker + label updates in place, not a new slot.
	if err := r.SetMetric(0, "ops-per-sec", 150, AggArithmetic); err != nil {
		t.Fatalf("update metric: %v", err)
	}

	samples := r.Metrics()
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	byWorker := map[int]float64{}
	for _, s := range samples {
		if s.Label != "ops-per-sec" {
			t.Fatalf("label = %q", s.Label)
		}
		byWorker[s.Worker] = s.Value
	}
	if byWorker[0] != 150 || byWorker[1] != 200 {
		t.Fatalf("samples = %v", byWorker)
	}
}

func TestMetricTableFull(t *testing.T) {
	r := allocForTest(t, 1)
	for j := 0; j < MaxMetricSlots; j++ {
		if err := r.SetMetric(0, "m"+string(rune('A'+j%26))+string(rune('0'+j/26)), 1, AggHarmonic); err != nil {
			t.Fatalf("slot %d: %v", j, err)
		}
	}
	err := r.SetMetric(0, "one-too-many", 1, AggHarmonic)
	if !appErr.Is(err, appErr.MetricTableFull) {
		t.Fatalf("err = %v, want MetricTableFull", err)
	}
}

func TestConcurrentClaimsLandOnDistinctSlots(t *testing.T) {
	const workers = 8
	r := allocForTest(t, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.SetMetric(i, "latency-ns", float64(i+1), AggHarmonic); err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	samples := r.Metrics()
	if len(samples) != workers {
		t.Fatalf("got %d samples, want %d", len(samples), workers)
	}
	seen := map[int]bool{}
	for _, s := range samples {
		if seen[s.Worker] {
			t.Fatalf("worker %d published twice", s.Worker)
		}
		seen[s.Worker] = true
	}
}

func TestCounterOutOfRange(t *testing.T) {
	r := allocForTest(t, 2)
	if _, err := r.Counter(5); !appErr.Is(err, appErr.WorkerIndexOutOfRange) {
		t.Fatalf("err = %v, want WorkerIndexOutOfRange", err)
	}
	if _, err := r.Counter(-1); !appErr.Is(err, appErr.WorkerIndexOutOfRange) {
		t.Fatalf("err = %v, want WorkerIndexOutOfRange", err)
	}
}
