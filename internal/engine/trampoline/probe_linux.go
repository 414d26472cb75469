//go:build linux

package trampoline

import (
	"context"
	"errors"
	"os/exec"
	"syscall"

	appErr "stressforge/pkg/errors"
)

// Verdict classifies a subprocess probe attempt.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictTrapped
	VerdictHung
	VerdictFailed
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictTrapped:
		return "trapped"
	case VerdictHung:
		return "hung"
	default:
		return "failed"
	}
}

// ProbeResult reports what became of a probe subprocess.
type ProbeResult struct {
	Method  string
	Verdict Verdict
	Signal  syscall.Signal
}

// ProbeSubprocess runs `helper -probe method` in its own process group
// and classifies the exit. SIGILL/SIGBUS/SIGSEGV mean the instruction
// sequence is illegal here; exceeding the watchdog bound means it
// hangs. Either way the caller disables the method and substitutes the
// fallback. The probe crash is the recovery mechanism, contained to
// a process nothing else depends on.
func ProbeSubprocess(ctx context.Context, helperPath, method string, wd *Watchdog) (ProbeResult, error) {
	res := ProbeResult{Method: method, Verdict: VerdictFailed}
	if helperPath == "" {
		return res, appErr.New(appErr.HelperNotFound)
	}

	cmd := exec.CommandContext(ctx, helperPath, "-probe", method)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if err := cmd.Start(); err != nil {
		return res, appErr.Wrap(err, appErr.SpawnFailed).WithDetail("method", method)
	}

	wd.Arm(func() {
		// Only pre-armed recovery from the timer callback: kill the
		// probe's process group and let Wait classify it.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	})
	waitErr := cmd.Wait()
	wd.Disarm()

	if waitErr == nil {
		res.Verdict = VerdictOK
		return res, nil
	}
	if wd.Fired() {
		res.Verdict = VerdictHung
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.Signal = status.Signal()
			switch status.Signal() {
			case syscall.SIGILL, syscall.SIGBUS, syscall.SIGSEGV:
				res.Verdict = VerdictTrapped
				return res, nil
			}
		}
		// Nonzero exit without a trap signal: the probe body itself
		// failed, treat as unusable but not a fault.
		res.Verdict = VerdictFailed
		return res, nil
	}
	return res, appErr.Wrap(waitErr, appErr.InternalError).WithDetail("method", method)
}

// ProbeAndFilter probes every named method and disables the ones that
// trap or hang, logging through the supplied callback. The fallback
// method is never probed; it must be legal everywhere.
func ProbeAndFilter(ctx context.Context, g *Guard, helperPath string, methods []string, wd *Watchdog, report func(ProbeResult)) error {
	for _, m := range methods {
		if m == g.Fallback() || g.Disabled(m) {
			continue
		}
		res, err := ProbeSubprocess(ctx, helperPath, m, wd)
		if err != nil {
			return err
		}
		switch res.Verdict {
		case VerdictTrapped:
			g.Disable(m, "trapped "+res.Signal.String())
		case VerdictHung:
			g.Disable(m, "hung beyond watchdog bound")
		case VerdictFailed:
			g.Disable(m, "probe failed")
		}
		if report != nil {
			report(res)
		}
	}
	return nil
}
