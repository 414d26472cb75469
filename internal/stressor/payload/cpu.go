// Package payload bundles the built-in stressors. Importing it for
// side effects registers every payload with the stressor registry.
package payload

import (
	"context"
	"math"
	"sync"

	"stressforge/internal/engine/control"
	"stressforge/internal/engine/trampoline"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

// ProbeHelperPath points at a binary that understands -probe. The
// worker main sets it to its own path; when empty (tests, the parent
// CLI), subprocess preflight probing is skipped and only the in-process
// fault guard protects the run.
var ProbeHelperPath string

type cpuKernel struct {
	name string
	// run executes one batch and returns a checksum over its work.
	run func(rounds int) float64
}

var cpuKernels = []cpuKernel{
	{"int64", cpuInt64},
	{"double", cpuDouble},
	{"fib", cpuFib},
	{"matrix", cpuMatrix},
	{"sqrt", cpuSqrt},
}

func init() {
	methods := []string{"all"}
	for _, k := range cpuKernels {
		methods = append(methods, k.name)
		// Probe targets let a disposable child exercise one kernel so a
		// trapping method is classified by signal instead of crashing a
		// measuring worker.
		k := k
		trampoline.RegisterTarget("cpu:"+k.name, func() { k.run(1000) })
	}
	stressor.Register(&stressor.Descriptor{
		Name:    "cpu",
		Summary: "arithmetic kernels exercising integer and floating point units",
		Tags:    []string{"cpu", "compute"},
		Schema: stressor.Schema{
			"cpu-method": {Kind: stressor.OptChoice, Default: "all", Choices: methods,
				Help: "kernel to run, or all to rotate"},
			"cpu-rounds": {Kind: stressor.OptInt, Default: "1000", Min: 1, Max: 1 << 20,
				Help: "kernel inner rounds per bogo-op"},
		},
		VerifyByDef: false,
		Entry:       cpuEntry,
	})
}

// Guard state is process-wide: a kernel that traps once stays disabled
// for every later entry in this worker.
var (
	cpuGuard     = trampoline.NewGuard(cpuKey("int64"))
	cpuProbeOnce sync.Once
	cpuPreflight = func(context.Context, *trampoline.Guard) {}
)

func cpuKey(name string) string { return "cpu:" + name }

func cpuEntry(ctx context.Context, ctrl *control.RunContext, p stressor.Params) (stressor.ExitClass, error) {
	method := p.Options.String("cpu-method")
	rounds := int(p.Options.Int("cpu-rounds"))

	kernels := cpuKernels
	if method != "all" {
		kernels = nil
		for _, k := range cpuKernels {
			if k.name == method {
				kernels = []cpuKernel{k}
			}
		}
		if kernels == nil {
			return stressor.Unimplemented, appErr.New(appErr.StressorUnimplemented).
				WithDetail("method", method)
		}
	}

	cpuProbeOnce.Do(func() { cpuPreflight(ctx, cpuGuard) })

	next := 0
	for ctrl.ShouldContinue() {
		k := kernels[next%len(kernels)]
		next++
		key, err := cpuGuard.Select(cpuKey(k.name))
		if err != nil {
			// Even the always-legal fallback is disabled here.
			return stressor.ResourceUnavailable, err
		}
		if key != cpuKey(k.name) {
			k = kernelByName(key[len("cpu:"):])
		}
		var sum float64
		if err := cpuGuard.Attempt(cpuKey(k.name), func() { sum = k.run(rounds) }); err != nil {
			// Faulting kernel is now disabled; the fallback covers the
			// remaining iterations.
			continue
		}
		if p.Verify {
			again := k.run(rounds)
			if sum != again {
				return stressor.VerificationFailure, appErr.New(appErr.VerificationFailure).
					WithMessagef("cpu %s: checksum %g != %g", k.name, sum, again)
			}
		}
		ctrl.BogoInc()
	}
	return stressor.Success, nil
}

func kernelByName(name string) cpuKernel {
	for _, k := range cpuKernels {
		if k.name == name {
			return k
		}
	}
	return cpuKernels[0]
}

func cpuInt64(rounds int) float64 {
	var a, b uint64 = 0x0123456789abcdef, 0xfedcba9876543210
	for i := 0; i < rounds; i++ {
		a = a*6364136223846793005 + 1442695040888963407
		b ^= a >> 17
		b = b<<13 | b>>51
		a ^= b
	}
	return float64(a ^ b)
}

func cpuDouble(rounds int) float64 {
	x := 0.5
	for i := 0; i < rounds; i++ {
		x = 4.0 * x * (1.0 - x) // logistic map, chaotic but deterministic
	}
	return x
}

func cpuFib(rounds int) float64 {
	var a, b uint64 = 0, 1
	for i := 0; i < rounds; i++ {
		a, b = b, a+b
	}
	return float64(a)
}

func cpuMatrix(rounds int) float64 {
	const n = 8
	var m [n][n]float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m[i][j] = float64(i*n+j) + 1
		}
	}
	var sum float64
	for r := 0; r < rounds; r++ {
		var out [n][n]float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				var acc float64
				for k := 0; k < n; k++ {
					acc += m[i][k] * m[k][j]
				}
				out[i][j] = acc
			}
		}
		sum += out[0][n-1]
	}
	return sum
}

func cpuSqrt(rounds int) float64 {
	var sum float64
	for i := 1; i <= rounds; i++ {
		sum += math.Sqrt(float64(i))
	}
	return sum
}
