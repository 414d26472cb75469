//go:build linux

// Package worker is the child-process side of the engine: it attaches
// the inherited shared region, checks in at the startup barrier, runs
// the requested payload, and records its lifecycle in the region.
package worker

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
	"go.uber.org/zap"

	"stressforge/internal/engine/capability"
	"stressforge/internal/engine/control"
	"stressforge/internal/engine/lifecycle"
	"stressforge/internal/engine/shm"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
	"stressforge/pkg/utils/contextkey"
	"stressforge/pkg/utils/logger"
)

const gatePoll = time.Millisecond

// Main runs one worker to completion and returns its exit code. The
// shared region arrives on the fd named by the init request contract.
func Main(req lifecycle.InitRequest) int {
	ctx := context.WithValue(context.Background(), contextkey.RunID, req.RunID)
	ctx = context.WithValue(ctx, contextkey.Stressor, req.Stressor)
	ctx = context.WithValue(ctx, contextkey.Worker, req.Worker)

	regionFile := os.NewFile(uintptr(lifecycle.RegionFd), "stress-region")
	if regionFile == nil {
		logger.Error(ctx, "region fd missing")
		return appErr.ExitEngineFailure
	}
	region, err := shm.Attach(regionFile)
	if err != nil {
		logger.Error(ctx, "region attach failed", zap.Error(err))
		return appErr.GetCode(err).ExitStatus()
	}
	defer region.Close()

	if req.Worker < 0 || req.Worker >= req.Workers {
		logger.Error(ctx, "worker index out of range", zap.Int("worker", req.Worker))
		return appErr.ExitEngineFailure
	}
	region.SetState(req.Worker, shm.StateSpawning)

	// Prefer this process when the kernel has to pick an OOM victim;
	// the supervisor restarts us, the parent must survive.
	adjustOomScore(ctx)

	if req.CPU >= 0 {
		pinCPU(ctx, req.CPU)
	}

	desc, err := stressor.Lookup(req.Stressor)
	if err != nil {
		logger.Error(ctx, "unknown stressor", zap.Error(err))
		region.SetState(req.Worker, shm.StateExited)
		return appErr.ExitEngineFailure
	}
	opts, err := desc.Schema.Parse(req.Options)
	if err != nil {
		logger.Error(ctx, "bad options", zap.Error(err))
		region.SetState(req.Worker, shm.StateExited)
		return appErr.ExitEngineFailure
	}

	var deadline time.Time
	if req.DeadlineUnixNano > 0 {
		deadline = time.Unix(0, req.DeadlineUnixNano)
	}
	ctrl, err := control.NewRunContext(region, req.Worker, deadline, req.MaxOps, os.Getpagesize())
	if err != nil {
		logger.Error(ctx, "run context", zap.Error(err))
		region.SetState(req.Worker, shm.StateExited)
		return appErr.ExitEngineFailure
	}

	// Barrier: check in, then hold until the parent has seen every
	// sibling and opens the gate.
	region.SetState(req.Worker, shm.StateSyncWait)
	region.SetReady(req.Worker)
	for !region.GateReleased() {
		if !region.KeepRunning() {
			region.SetState(req.Worker, shm.StateExited)
			return appErr.ExitSuccess
		}
		time.Sleep(gatePoll)
	}

	region.SetState(req.Worker, shm.StateRunning)
	region.MarkStart(req.Worker, time.Now().UnixNano())
	caps := capability.Snapshot()
	logger.Info(ctx, "payload starting",
		zap.String("vendor", caps.Vendor()),
		zap.Int("numaNodes", caps.NUMANodes()))

	class, runErr := desc.Entry(ctx, ctrl, stressor.Params{Options: opts, Verify: req.Verify})

	region.MarkDone(req.Worker, time.Now().UnixNano())
	region.SetState(req.Worker, shm.StateDeinit)
	if runErr != nil {
		logger.Error(ctx, "payload finished with error",
			zap.String("class", class.String()), zap.Error(runErr))
	} else {
		logger.Info(ctx, "payload finished",
			zap.String("class", class.String()), zap.Uint64("ops", ctrl.Ops()))
	}
	region.SetState(req.Worker, shm.StateExited)
	return class.ExitCode()
}

func adjustOomScore(ctx context.Context) {
	err := os.WriteFile("/proc/self/oom_score_adj", []byte("900"), 0644)
	if err != nil {
		logger.Warn(ctx, "oom_score_adj not applied", zap.Error(err))
	}
}

func pinCPU(ctx context.Context, cpu int) {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu % runtime.NumCPU())
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		logger.Warn(ctx, "cpu pinning failed",
			zap.String("cpu", strconv.Itoa(cpu)), zap.Error(err))
	}
}
