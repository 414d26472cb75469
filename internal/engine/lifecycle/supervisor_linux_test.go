//go:build linux

package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stressforge/internal/engine/shm"
	appErr "stressforge/pkg/errors"
)

type fakeHandle struct {
	pid    int
	status ExitStatus
	done   chan struct{}
	once   sync.Once
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) Wait() ExitStatus {
	<-h.done
	return h.status
}

func (h *fakeHandle) Kill() {
	h.once.Do(func() { close(h.done) })
}

// fakeSpawner runs worker behavior in-process against the real region.
type fakeSpawner struct {
	region  *shm.Region
	behave  func(slot int, spawnSeq int, h *fakeHandle)
	spawned atomic.Int64
}

func (s *fakeSpawner) Spawn(_ context.Context, _ RunPlan, slot int) (WorkerHandle, error) {
	seq := int(s.spawned.Add(1))
	h := &fakeHandle{pid: 1000 + seq, done: make(chan struct{})}
	go s.behave(slot, seq, h)
	return h, nil
}

func allocRegion(t *testing.T, workers int) *shm.Region {
	t.Helper()
	r, err := shm.Alloc(workers)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func cooperativeWorker(region *shm.Region, ops uint64) func(int, int, *fakeHandle) {
	return func(slot, _ int, h *fakeHandle) {
		region.SetReady(slot)
		for !region.GateReleased() {
			time.Sleep(time.Millisecond)
		}
		region.MarkStart(slot, time.Now().UnixNano())
		c, _ := region.Counter(slot)
		for i := uint64(0); i < ops && region.KeepRunning(); i++ {
			c.Inc()
		}
		region.MarkDone(slot, time.Now().UnixNano())
		h.status = ExitStatus{Class: ClassNormal, Code: 0}
		h.Kill()
	}
}

func TestSupervisorRunsAllWorkers(t *testing.T) {
	const workers = 4
	region := allocRegion(t, workers)
	sp := &fakeSpawner{region: region, behave: cooperativeWorker(region, 100)}
	sv, err := NewSupervisor(SupervisorConfig{}, sp, region)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	plan := RunPlan{RunID: "t1", Stressor: "cpu", Instances: workers, Timeout: 30 * time.Second}
	res, err := sv.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Slots) != workers {
		t.Fatalf("got %d slot results, want %d", len(res.Slots), workers)
	}
	if got := res.WorstExit(); got != appErr.ExitSuccess {
		t.Errorf("WorstExit = %d, want %d", got, appErr.ExitSuccess)
	}
	if res.TotalOps() != workers*100 {
		t.Errorf("TotalOps = %d, want %d", res.TotalOps(), workers*100)
	}
	for _, s := range res.Slots {
		if s.Restarts != 0 {
			t.Errorf("slot %d restarted %d times", s.Slot, s.Restarts)
		}
	}
}

// No worker may start running before every sibling reaches the barrier.
func TestSupervisorGateHoldsUntilAllReady(t *testing.T) {
	const workers = 3
	region := allocRegion(t, workers)
	var violated atomic.Bool
	sp := &fakeSpawner{region: region}
	sp.behave = func(slot, seq int, h *fakeHandle) {
		if slot == 2 {
			// Straggler: everyone else must still be gated.
			time.Sleep(50 * time.Millisecond)
			if region.GateReleased() {
				violated.Store(true)
			}
		}
		cooperativeWorker(region, 10)(slot, seq, h)
	}
	sv, _ := NewSupervisor(SupervisorConfig{}, sp, region)
	if _, err := sv.Run(context.Background(), RunPlan{RunID: "t2", Stressor: "cpu", Instances: workers}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if violated.Load() {
		t.Error("gate released before all workers were ready")
	}
}

func TestSupervisorOomRestartBound(t *testing.T) {
	region := allocRegion(t, 1)
	sp := &fakeSpawner{region: region}
	sp.behave = func(slot, _ int, h *fakeHandle) {
		region.SetReady(slot)
		h.status = ExitStatus{Class: ClassOomKilled, Signal: 9}
		h.Kill()
	}
	cfg := SupervisorConfig{
		OomRetries:     2,
		RestartBackoff: time.Millisecond,
		BarrierTimeout: time.Second,
	}
	sv, _ := NewSupervisor(cfg, sp, region)
	res, err := sv.Run(context.Background(), RunPlan{RunID: "t3", Stressor: "vm", Instances: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	slot := res.Slots[0]
	if slot.Restarts != cfg.OomRetries {
		t.Errorf("Restarts = %d, want %d", slot.Restarts, cfg.OomRetries)
	}
	if slot.Status.Class != ClassOomKilled {
		t.Errorf("Class = %v, want %v", slot.Status.Class, ClassOomKilled)
	}
	// Initial spawn plus each allowed restart, and no more.
	if got := int(sp.spawned.Load()); got != 1+cfg.OomRetries {
		t.Errorf("spawn count = %d, want %d", got, 1+cfg.OomRetries)
	}
	if got := res.WorstExit(); got != appErr.ExitResourceUnavailable {
		t.Errorf("WorstExit = %d, want %d", got, appErr.ExitResourceUnavailable)
	}
}

func TestSupervisorOomRecoveryAfterRestart(t *testing.T) {
	region := allocRegion(t, 1)
	sp := &fakeSpawner{region: region}
	sp.behave = func(slot, seq int, h *fakeHandle) {
		if seq == 1 {
			region.SetReady(slot)
			h.status = ExitStatus{Class: ClassOomKilled, Signal: 9}
			h.Kill()
			return
		}
		cooperativeWorker(region, 50)(slot, seq, h)
	}
	cfg := SupervisorConfig{OomRetries: 3, RestartBackoff: time.Millisecond}
	sv, _ := NewSupervisor(cfg, sp, region)
	res, err := sv.Run(context.Background(), RunPlan{RunID: "t4", Stressor: "vm", Instances: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Slots[0].Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", res.Slots[0].Restarts)
	}
	if res.WorstExit() != appErr.ExitSuccess {
		t.Errorf("WorstExit = %d, want success after recovery", res.WorstExit())
	}
}

func TestSupervisorBarrierTimeout(t *testing.T) {
	region := allocRegion(t, 2)
	sp := &fakeSpawner{region: region}
	sp.behave = func(slot, _ int, h *fakeHandle) {
		if slot == 0 {
			region.SetReady(slot)
		}
		// Slot 1 never checks in; Kill releases Wait.
		<-h.done
	}
	cfg := SupervisorConfig{BarrierTimeout: 50 * time.Millisecond, BarrierPoll: time.Millisecond}
	sv, _ := NewSupervisor(cfg, sp, region)
	_, err := sv.Run(context.Background(), RunPlan{RunID: "t5", Stressor: "cpu", Instances: 2})
	if appErr.GetCode(err) != appErr.BarrierTimeout {
		t.Fatalf("err = %v, want BarrierTimeout", err)
	}
	if region.KeepRunning() {
		t.Error("continue flag still set after aborted run")
	}
}

func TestSupervisorDeadlineStopsWorkers(t *testing.T) {
	region := allocRegion(t, 2)
	sp := &fakeSpawner{region: region}
	sp.behave = func(slot, seq int, h *fakeHandle) {
		// Unbounded loop: only the continue flag stops it.
		cooperativeWorker(region, 1<<62)(slot, seq, h)
	}
	sv, _ := NewSupervisor(SupervisorConfig{}, sp, region)
	plan := RunPlan{RunID: "t6", Stressor: "cpu", Instances: 2, Timeout: 100 * time.Millisecond}
	start := time.Now()
	res, err := sv.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run took %v, deadline not enforced", elapsed)
	}
	if res.WorstExit() != appErr.ExitSuccess {
		t.Errorf("WorstExit = %d, deadline exit should be clean", res.WorstExit())
	}
	if res.TotalOps() == 0 {
		t.Error("no ops recorded before deadline")
	}
}

func TestSupervisorRejectsMismatchedInstances(t *testing.T) {
	region := allocRegion(t, 2)
	sp := &fakeSpawner{region: region, behave: cooperativeWorker(region, 1)}
	sv, _ := NewSupervisor(SupervisorConfig{}, sp, region)
	_, err := sv.Run(context.Background(), RunPlan{RunID: "t7", Stressor: "cpu", Instances: 3})
	if err == nil {
		t.Fatal("expected error for instance/region mismatch")
	}
}
