package payload

import (
	"context"
	"io"
	"os"

	"stressforge/internal/engine/control"
	"stressforge/internal/engine/shm"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

func init() {
	stressor.Register(&stressor.Descriptor{
		Name:    "pipe",
		Summary: "moves data through an os pipe between two goroutines",
		Tags:    []string{"pipe", "scheduler", "memory"},
		Schema: stressor.Schema{
			"pipe-bytes": {Kind: stressor.OptBytes, Default: "4096", Min: 64, Max: 1 << 20,
				Help: "write size per iteration"},
		},
		VerifyByDef: false,
		Entry:       pipeEntry,
	})
}

func pipeEntry(ctx context.Context, ctrl *control.RunContext, p stressor.Params) (stressor.ExitClass, error) {
	size := int(p.Options.Bytes("pipe-bytes"))
	r, w, err := os.Pipe()
	if err != nil {
		return stressor.ResourceUnavailable, appErr.Wrap(err, appErr.ResourceExhausted)
	}
	defer r.Close()

	drained := make(chan error, 1)
	go func() {
		_, cerr := io.Copy(io.Discard, r)
		drained <- cerr
	}()

	block := make([]byte, size)
	for i := range block {
		block[i] = byte(i)
	}

	var moved uint64
	for ctrl.ShouldContinue() {
		n, werr := w.Write(block)
		if werr != nil {
			w.Close()
			<-drained
			return stressor.ResourceUnavailable, appErr.Wrap(werr, appErr.ResourceExhausted)
		}
		moved += uint64(n)
		ctrl.BogoInc()
	}
	w.Close()
	if err := <-drained; err != nil {
		return stressor.ResourceUnavailable, appErr.Wrap(err, appErr.ResourceExhausted)
	}

	if err := ctrl.SetMetric("pipe MB moved", float64(moved)/(1<<20), shm.AggArithmetic); err != nil {
		return stressor.Success, err
	}
	return stressor.Success, nil
}
