//go:build linux

package payload

import (
	"context"

	"go.uber.org/zap"

	"stressforge/internal/engine/trampoline"
	"stressforge/pkg/utils/logger"
)

func init() {
	cpuPreflight = probeCpuKernels
}

// probeCpuKernels runs each kernel once in a disposable subprocess
// before the measuring loop starts. A kernel that traps or hangs there
// is disabled up front instead of mid-measurement.
func probeCpuKernels(ctx context.Context, g *trampoline.Guard) {
	if ProbeHelperPath == "" {
		return
	}
	methods := make([]string, 0, len(cpuKernels))
	for _, k := range cpuKernels {
		methods = append(methods, cpuKey(k.name))
	}
	wd := trampoline.NewWatchdog(trampoline.DefaultWatchdogBound)
	err := trampoline.ProbeAndFilter(ctx, g, ProbeHelperPath, methods, wd, func(res trampoline.ProbeResult) {
		if res.Verdict != trampoline.VerdictOK {
			logger.Warn(ctx, "cpu kernel disabled by preflight probe",
				zap.String("method", res.Method),
				zap.String("verdict", res.Verdict.String()))
		}
	})
	if err != nil {
		logger.Warn(ctx, "cpu preflight probing failed", zap.Error(err))
	}
}
