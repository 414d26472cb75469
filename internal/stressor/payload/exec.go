package payload

import (
	"context"
	"os/exec"
	"time"

	"github.com/google/shlex"

	"stressforge/internal/engine/control"
	"stressforge/internal/engine/shm"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

func init() {
	stressor.Register(&stressor.Descriptor{
		Name:    "exec",
		Summary: "repeatedly spawns and reaps a child command",
		Tags:    []string{"process", "scheduler"},
		Schema: stressor.Schema{
			"exec-cmd": {Kind: stressor.OptString, Default: "/bin/true",
				Help: "command line to run each iteration, shell-style quoting"},
			"exec-timeout": {Kind: stressor.OptInt, Default: "10", Min: 1, Max: 300,
				Help: "per-child timeout in seconds"},
		},
		VerifyByDef: false,
		Entry:       execEntry,
	})
}

func execEntry(ctx context.Context, ctrl *control.RunContext, p stressor.Params) (stressor.ExitClass, error) {
	argv, err := shlex.Split(p.Options.String("exec-cmd"))
	if err != nil || len(argv) == 0 {
		return stressor.Unimplemented, appErr.New(appErr.OptionInvalid).
			WithMessagef("exec-cmd: %q is not a valid command line", p.Options.String("exec-cmd"))
	}
	childTimeout := time.Duration(p.Options.Int("exec-timeout")) * time.Second

	var spawnNs uint64
	var spawns uint64
	for ctrl.ShouldContinue() {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, childTimeout)
		cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
		runErr := cmd.Run()
		cancel()
		if runErr != nil {
			if _, isExit := runErr.(*exec.ExitError); !isExit {
				return stressor.ResourceUnavailable, appErr.Wrap(runErr, appErr.SpawnFailed).
					WithDetail("cmd", argv[0])
			}
			if p.Verify {
				return stressor.VerificationFailure, appErr.Wrap(runErr, appErr.VerificationFailure).
					WithDetail("cmd", argv[0])
			}
		}
		spawnNs += uint64(time.Since(start).Nanoseconds())
		spawns++
		ctrl.BogoInc()
	}

	if spawns > 0 {
		avgMs := float64(spawnNs) / float64(spawns) / 1e6
		if err := ctrl.SetMetric("spawn latency ms", avgMs, shm.AggArithmetic); err != nil {
			return stressor.Success, err
		}
	}
	return stressor.Success, nil
}
