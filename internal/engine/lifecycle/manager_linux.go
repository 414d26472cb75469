//go:build linux

package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"stressforge/internal/engine/shm"
	appErr "stressforge/pkg/errors"
	"stressforge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultHelperPath      = "stress-worker"
	defaultSpawnRetries    = 5
	defaultSpawnRetryDelay = 100 * time.Millisecond
)

// Config holds worker-spawning settings.
type Config struct {
	HelperPath      string
	EnableCgroup    bool
	CgroupRoot      string
	SpawnRetries    int
	SpawnRetryDelay time.Duration
}

// Manager spawns worker helper processes over a pre-allocated shared
// region. It implements Spawner.
type Manager struct {
	cfg    Config
	region *shm.Region
}

// NewManager creates a manager. The region must already be allocated;
// mapping it after the first spawn would be a correctness bug, since
// later workers would not share it.
func NewManager(cfg Config, region *shm.Region) (*Manager, error) {
	if region == nil {
		return nil, appErr.ValidationError("region", "required")
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = defaultHelperPath
	}
	if cfg.SpawnRetries <= 0 {
		cfg.SpawnRetries = defaultSpawnRetries
	}
	if cfg.SpawnRetryDelay <= 0 {
		cfg.SpawnRetryDelay = defaultSpawnRetryDelay
	}
	return &Manager{cfg: cfg, region: region}, nil
}

// Spawn starts worker `slot` for the plan. EAGAIN/ENOMEM-style spawn
// failures are retried with backoff up to the configured ceiling before
// the run reports resource exhaustion.
func (m *Manager) Spawn(ctx context.Context, plan RunPlan, slot int) (WorkerHandle, error) {
	req := InitRequest{
		RunID:    plan.RunID,
		Stressor: plan.Stressor,
		Options:  plan.Options,
		Worker:   slot,
		Workers:  plan.Instances,
		MaxOps:   plan.MaxOps,
		Verify:   plan.Verify,
		CPU:      -1,
	}
	if deadline := plan.Deadline(time.Now()); !deadline.IsZero() {
		req.DeadlineUnixNano = deadline.UnixNano()
	}
	if plan.PinCPUs {
		req.CPU = slot % runtime.NumCPU()
	}

	var lastErr error
	delay := m.cfg.SpawnRetryDelay
	for attempt := 0; attempt < m.cfg.SpawnRetries; attempt++ {
		if attempt > 0 {
			logger.Warn(ctx, "worker spawn retry",
				zap.Int("slot", slot), zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		handle, err := m.spawnOnce(ctx, req, plan, slot)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		if !isTransientSpawnErr(err) {
			return nil, appErr.Wrap(err, appErr.SpawnFailed).WithDetail("slot", slot)
		}
	}
	return nil, appErr.Wrap(lastErr, appErr.SpawnRetriesExhausted).
		WithDetail("slot", slot).
		WithDetail("attempts", m.cfg.SpawnRetries)
}

func (m *Manager) spawnOnce(ctx context.Context, req InitRequest, plan RunPlan, slot int) (WorkerHandle, error) {
	stdinPipe, err := jsonToPipe(req)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, m.cfg.HelperPath)
	cmd.Stdin = stdinPipe
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{m.region.File()}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Own process group: direct SIGKILL delivery reaches the whole
		// worker, and a worker's fault cannot down its siblings.
		Setpgid: true,
		// Orphaned workers self-terminate instead of running forever.
		Pdeathsig: syscall.SIGKILL,
	}

	cgroupPath := ""
	cgroupCleanup := func() {}
	if m.cfg.EnableCgroup {
		cgroupPath, cgroupCleanup, err = createWorkerCgroup(m.cfg.CgroupRoot, plan.RunID, slot)
		if err != nil {
			_ = stdinPipe.Close()
			return nil, appErr.Wrap(err, appErr.CgroupSetupFailed).WithDetail("slot", slot)
		}
	}

	if err := cmd.Start(); err != nil {
		cgroupCleanup()
		_ = stdinPipe.Close()
		return nil, err
	}

	if m.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add worker to cgroup failed",
				zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	logger.Debug(ctx, "worker spawned",
		zap.Int("slot", slot), zap.Int("pid", cmd.Process.Pid))
	return &workerHandle{
		cmd:           cmd,
		slot:          slot,
		cgroupPath:    cgroupPath,
		cgroupCleanup: cgroupCleanup,
	}, nil
}

func isTransientSpawnErr(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM)
}

func jsonToPipe(req InitRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

// workerHandle is the parent-side view of one spawned worker.
type workerHandle struct {
	cmd           *exec.Cmd
	slot          int
	cgroupPath    string
	cgroupCleanup func()
}

func (h *workerHandle) Pid() int {
	return h.cmd.Process.Pid
}

// Wait reaps the worker and classifies its exit. A SIGKILL is reported
// as an OOM kill only with corroborating cgroup evidence.
func (h *workerHandle) Wait() ExitStatus {
	waitErr := h.cmd.Wait()
	defer h.cgroupCleanup()

	state := h.cmd.ProcessState
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sig := ws.Signal()
			if sig == syscall.SIGKILL && wasOomKilled(h.cgroupPath) {
				return ExitStatus{Class: ClassOomKilled, Signal: sig}
			}
			return ExitStatus{Class: ClassSignaled, Signal: sig}
		}
		return ExitStatus{Class: ClassNormal, Code: state.ExitCode()}
	}
	if waitErr != nil {
		return ExitStatus{Class: ClassSignaled, Signal: syscall.SIGKILL}
	}
	return ExitStatus{Class: ClassNormal}
}

// Kill force-terminates the worker's whole process group.
func (h *workerHandle) Kill() {
	if h.cgroupPath != "" {
		if err := killCgroup(h.cgroupPath); err == nil {
			return
		}
	}
	if pid := h.cmd.Process.Pid; pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}
