//go:build linux && cgo

package payload

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	seccomp "github.com/seccomp/libseccomp-golang"

	"stressforge/internal/engine/control"
	"stressforge/internal/engine/trampoline"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

// Syscalls a sandboxed child still needs to run its loop and exit.
var seccompAllowlist = []string{
	"read", "write", "close", "exit", "exit_group",
	"getpid", "gettid", "clock_gettime", "nanosleep",
	"rt_sigreturn", "rt_sigaction", "rt_sigprocmask",
	"futex", "sched_yield", "mmap", "munmap", "brk",
	"sigaltstack", "epoll_pwait", "madvise",
}

func init() {
	// The child half: installs the allowlist filter on itself, then
	// exercises allowed syscalls under it. Runs in a disposable
	// subprocess so a filter bug cannot take down a measuring worker.
	trampoline.RegisterTarget("seccomp:child", seccompChild)

	stressor.Register(&stressor.Descriptor{
		Name:    "seccomp",
		Summary: "spawns short-lived children confined by a strict syscall allowlist",
		Tags:    []string{"process", "os", "security"},
		Schema:  stressor.Schema{},
		Entry:   seccompEntry,
	})
}

func seccompChild() {
	filter, err := seccomp.NewFilter(seccomp.ActErrno.SetReturnCode(int16(syscall.EPERM)))
	if err != nil {
		os.Exit(1)
	}
	for _, name := range seccompAllowlist {
		sc, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRule(sc, seccomp.ActAllow); err != nil {
			os.Exit(1)
		}
	}
	if err := filter.Load(); err != nil {
		os.Exit(1)
	}
	// Allowed work under the filter.
	for i := 0; i < 1000; i++ {
		_ = os.Getpid()
	}
	// A denied syscall must fail with EPERM, not succeed.
	if _, err := os.OpenFile("/dev/null", os.O_RDONLY, 0); err == nil {
		os.Exit(2)
	}
	os.Exit(0)
}

func seccompEntry(ctx context.Context, ctrl *control.RunContext, p stressor.Params) (stressor.ExitClass, error) {
	self := ProbeHelperPath
	if self == "" {
		return stressor.Unimplemented, appErr.New(appErr.HelperNotFound).
			WithDetail("stressor", "seccomp")
	}

	for ctrl.ShouldContinue() {
		cmd := exec.CommandContext(ctx, self, "-probe", "seccomp:child")
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
		runErr := cmd.Run()
		if runErr != nil {
			if ee, ok := runErr.(*exec.ExitError); ok {
				if p.Verify || ee.ExitCode() != 0 {
					return stressor.VerificationFailure, appErr.New(appErr.VerificationFailure).
						WithMessagef("seccomp child exited %d", ee.ExitCode())
				}
			} else {
				return stressor.ResourceUnavailable, appErr.Wrap(runErr, appErr.SpawnFailed)
			}
		}
		ctrl.BogoInc()
	}
	return stressor.Success, nil
}
