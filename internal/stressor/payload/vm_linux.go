//go:build linux

package payload

import (
	"context"
	"math/bits"
	"unsafe"

	"golang.org/x/sys/unix"

	"stressforge/internal/engine/control"
	"stressforge/internal/engine/shm"
	"stressforge/internal/engine/trampoline"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

var vmPatterns = map[string]func(addr uintptr, i int) byte{
	"zero":    func(uintptr, int) byte { return 0x00 },
	"ones":    func(uintptr, int) byte { return 0xff },
	"checker": func(_ uintptr, i int) byte { return 0xaa >> uint(i&1) & 0xff },
	"walk":    func(_ uintptr, i int) byte { return 1 << uint(i&7) },
	"addr":    func(addr uintptr, i int) byte { return byte(addr + uintptr(i)) },
}

func init() {
	choices := []string{"all"}
	for name := range vmPatterns {
		choices = append(choices, name)
	}
	stressor.Register(&stressor.Descriptor{
		Name:    "vm",
		Summary: "writes and re-reads bit patterns over anonymous mappings",
		Tags:    []string{"vm", "memory"},
		Schema: stressor.Schema{
			"vm-bytes": {Kind: stressor.OptBytes, Default: "16m", Min: 4096, Max: 1 << 38,
				Help: "size of the mapping each worker walks"},
			"vm-method": {Kind: stressor.OptChoice, Default: "all", Choices: choices,
				Help: "bit pattern, or all to rotate"},
		},
		VerifyByDef: true,
		Entry:       vmEntry,
	})
}

func vmEntry(ctx context.Context, ctrl *control.RunContext, p stressor.Params) (stressor.ExitClass, error) {
	size := int(p.Options.Bytes("vm-bytes"))
	method := p.Options.String("vm-method")

	names := make([]string, 0, len(vmPatterns))
	if method == "all" {
		for name := range vmPatterns {
			names = append(names, name)
		}
	} else {
		names = append(names, method)
	}

	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return stressor.ResourceUnavailable, appErr.Wrap(err, appErr.ResourceExhausted).
			WithDetail("bytes", p.Options.String("vm-bytes"))
	}
	defer unix.Munmap(mem)
	base := uintptr(unsafe.Pointer(&mem[0]))

	guard := trampoline.NewGuard("zero")
	var bitErrors uint64
	next := 0
	for ctrl.ShouldContinue() {
		name := names[next%len(names)]
		next++
		selected, serr := guard.Select(name)
		if serr != nil {
			return stressor.ResourceUnavailable, serr
		}
		pat := vmPatterns[selected]

		aerr := guard.Attempt(selected, func() {
			for i := range mem {
				mem[i] = pat(base, i)
			}
			if p.Verify {
				for i := range mem {
					if got, want := mem[i], pat(base, i); got != want {
						bitErrors += uint64(bits.OnesCount8(got ^ want))
					}
				}
			}
		})
		if aerr != nil {
			continue
		}
		ctrl.BogoInc()
	}

	if p.Verify {
		if err := ctrl.SetMetric("vm bit errors", float64(bitErrors), shm.AggArithmetic); err != nil {
			return stressor.Success, err
		}
		if bitErrors > 0 {
			return stressor.VerificationFailure, appErr.New(appErr.VerificationFailure).
				WithMessagef("vm: %d bit errors detected", bitErrors)
		}
	}
	return stressor.Success, nil
}
