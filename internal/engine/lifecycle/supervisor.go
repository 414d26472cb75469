package lifecycle

import (
	"context"
	"sync"
	"time"

	"stressforge/internal/engine/shm"
	appErr "stressforge/pkg/errors"
	"stressforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// WorkerHandle is the parent-side view of one running worker process.
type WorkerHandle interface {
	Pid() int
	// Wait blocks until the worker is reaped and classifies its exit.
	Wait() ExitStatus
	// Kill force-terminates the worker and everything it spawned.
	Kill()
}

// Spawner starts one worker for a slot. Manager is the production
// implementation.
type Spawner interface {
	Spawn(ctx context.Context, plan RunPlan, slot int) (WorkerHandle, error)
}

const (
	defaultOomRetries        = 3
	defaultRestartBackoff    = 100 * time.Millisecond
	defaultRestartBackoffMax = 5 * time.Second
	defaultGracePeriod       = 2 * time.Second
	defaultBarrierTimeout    = 10 * time.Second
	defaultBarrierPoll       = time.Millisecond
)

// SupervisorConfig bounds restart and shutdown behavior.
type SupervisorConfig struct {
	OomRetries        int
	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration
	GracePeriod       time.Duration
	BarrierTimeout    time.Duration
	BarrierPoll       time.Duration
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.OomRetries <= 0 {
		c.OomRetries = defaultOomRetries
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = defaultRestartBackoff
	}
	if c.RestartBackoffMax <= 0 {
		c.RestartBackoffMax = defaultRestartBackoffMax
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.BarrierTimeout <= 0 {
		c.BarrierTimeout = defaultBarrierTimeout
	}
	if c.BarrierPoll <= 0 {
		c.BarrierPoll = defaultBarrierPoll
	}
	return c
}

// Supervisor spawns a plan's workers, releases them through the startup
// barrier together, enforces the deadline, reaps and classifies exits,
// and restarts OOM-killed slots up to a bound.
type Supervisor struct {
	cfg     SupervisorConfig
	spawner Spawner
	region  *shm.Region

	mu      sync.Mutex
	handles []WorkerHandle
}

// NewSupervisor creates a supervisor over an already-allocated region.
func NewSupervisor(cfg SupervisorConfig, spawner Spawner, region *shm.Region) (*Supervisor, error) {
	if spawner == nil {
		return nil, appErr.ValidationError("spawner", "required")
	}
	if region == nil {
		return nil, appErr.ValidationError("region", "required")
	}
	return &Supervisor{cfg: cfg.withDefaults(), spawner: spawner, region: region}, nil
}

// Run executes the plan to completion. Failing to spawn the initial
// worker set is fatal for the whole run; everything after that is
// contained per slot.
func (s *Supervisor) Run(ctx context.Context, plan RunPlan) (*RunResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if plan.Instances != s.region.Workers() {
		return nil, appErr.New(appErr.InvalidParams).
			WithMessage("plan instance count does not match region size")
	}
	start := time.Now()

	s.mu.Lock()
	s.handles = make([]WorkerHandle, plan.Instances)
	s.mu.Unlock()

	for slot := 0; slot < plan.Instances; slot++ {
		h, err := s.spawner.Spawn(ctx, plan, slot)
		if err != nil {
			s.abort()
			return nil, err
		}
		s.setHandle(slot, h)
	}

	// Hold every worker at the gate until all siblings are ready, so no
	// timed measurement window opens before the full set exists.
	if err := s.waitAllReady(ctx); err != nil {
		s.abort()
		s.reapAll(plan, nil)
		return nil, err
	}
	s.region.ReleaseGate()
	logger.Info(ctx, "barrier released", zap.Int("workers", plan.Instances))

	stopTimers := s.armDeadline(ctx, plan)
	defer stopTimers()

	results := make([]SlotResult, plan.Instances)
	s.reapAll(plan, func(slot int, res SlotResult) {
		results[slot] = res
	})

	return &RunResult{Slots: results, Duration: time.Since(start)}, nil
}

func (s *Supervisor) setHandle(slot int, h WorkerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[slot] = h
}

func (s *Supervisor) handle(slot int) WorkerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[slot]
}

// abort stops the run and kills everything already spawned.
func (s *Supervisor) abort() {
	s.region.StopAll()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		if h != nil {
			h.Kill()
		}
	}
}

// waitAllReady busy-polls the barrier with bounded sleep; no hard
// real-time guarantee is needed here.
func (s *Supervisor) waitAllReady(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.BarrierTimeout)
	for {
		if s.region.AllReady() {
			return nil
		}
		if time.Now().After(deadline) {
			return appErr.New(appErr.BarrierTimeout).
				WithDetail("timeout", s.cfg.BarrierTimeout.String())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.BarrierPoll):
		}
	}
}

// armDeadline clears the continue flag at the plan deadline (or on ctx
// cancellation) and SIGKILLs stragglers after the grace period. Workers
// normally observe the flag and exit on their own well within it.
func (s *Supervisor) armDeadline(ctx context.Context, plan RunPlan) func() {
	kill := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, h := range s.handles {
			if h != nil {
				h.Kill()
			}
		}
	}
	var timers struct {
		mu   sync.Mutex
		list []*time.Timer
	}
	arm := func(d time.Duration, fn func()) {
		t := time.AfterFunc(d, fn)
		timers.mu.Lock()
		timers.list = append(timers.list, t)
		timers.mu.Unlock()
	}
	if plan.Timeout > 0 {
		arm(plan.Timeout, s.region.StopAll)
		arm(plan.Timeout+s.cfg.GracePeriod, kill)
	}
	stopCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-stopCtx.Done()
		if ctx.Err() != nil {
			// Operator cancel: cooperative stop first, then the same
			// grace period as a deadline.
			s.region.StopAll()
			arm(s.cfg.GracePeriod, kill)
		}
	}()
	return func() {
		cancel()
		timers.mu.Lock()
		defer timers.mu.Unlock()
		for _, t := range timers.list {
			t.Stop()
		}
	}
}

// reapAll waits for every slot, restarting OOM-killed workers up to the
// retry ceiling before recording the slot as failed.
func (s *Supervisor) reapAll(plan RunPlan, record func(slot int, res SlotResult)) {
	var wg sync.WaitGroup
	for slot := 0; slot < plan.Instances; slot++ {
		h := s.handle(slot)
		if h == nil {
			continue
		}
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			res := s.superviseSlot(plan, slot)
			if record != nil {
				record(slot, res)
			}
		}(slot)
	}
	wg.Wait()
}

func (s *Supervisor) superviseSlot(plan RunPlan, slot int) SlotResult {
	ctx := context.Background()
	restarts := 0
	backoff := s.cfg.RestartBackoff
	for {
		h := s.handle(slot)
		status := h.Wait()

		if status.Class == ClassOomKilled && s.region.KeepRunning() {
			if restarts >= s.cfg.OomRetries {
				// Escalate rather than loop forever.
				logger.Error(ctx, "oom restart ceiling reached",
					zap.Int("slot", slot), zap.Int("restarts", restarts))
				return SlotResult{
					Slot: slot, Pid: h.Pid(), Status: status,
					Restarts: restarts, Ops: s.region.Ops(slot),
				}
			}
			restarts++
			logger.Warn(ctx, "worker oom-killed, restarting",
				zap.Int("slot", slot), zap.Int("restart", restarts))
			time.Sleep(backoff)
			if backoff < s.cfg.RestartBackoffMax {
				backoff *= 2
			}
			nh, err := s.spawner.Spawn(ctx, plan, slot)
			if err != nil {
				logger.Error(ctx, "oom restart spawn failed",
					zap.Int("slot", slot), zap.Error(err))
				return SlotResult{
					Slot: slot, Pid: h.Pid(), Status: status,
					Restarts: restarts, Ops: s.region.Ops(slot),
				}
			}
			s.setHandle(slot, nh)
			continue
		}

		return SlotResult{
			Slot: slot, Pid: h.Pid(), Status: status,
			Restarts: restarts, Ops: s.region.Ops(slot),
		}
	}
}
