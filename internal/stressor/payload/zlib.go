package payload

import (
	"bytes"
	"context"
	"io"
	"math/rand"

	"github.com/klauspost/compress/flate"

	"stressforge/internal/engine/control"
	"stressforge/internal/engine/shm"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

func init() {
	stressor.Register(&stressor.Descriptor{
		Name:    "zlib",
		Summary: "deflate compression and decompression pump",
		Tags:    []string{"cpu", "compress"},
		Schema: stressor.Schema{
			"zlib-bytes": {Kind: stressor.OptBytes, Default: "64k", Min: 1 << 10, Max: 1 << 26,
				Help: "input block size per iteration"},
			"zlib-level": {Kind: stressor.OptInt, Default: "6", Min: 1, Max: 9,
				Help: "deflate compression level"},
		},
		VerifyByDef: true,
		Entry:       zlibEntry,
	})
}

func zlibEntry(ctx context.Context, ctrl *control.RunContext, p stressor.Params) (stressor.ExitClass, error) {
	size := int(p.Options.Bytes("zlib-bytes"))
	level := int(p.Options.Int("zlib-level"))

	// Mixed-entropy input: text-like low bytes with random runs, so the
	// compressor has real work on every block.
	rng := rand.New(rand.NewSource(int64(ctrl.Worker) + 1))
	input := make([]byte, size)
	for i := range input {
		if rng.Intn(4) == 0 {
			input[i] = byte(rng.Intn(256))
		} else {
			input[i] = byte('a' + i%26)
		}
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, level)
	if err != nil {
		return stressor.Unimplemented, appErr.Wrap(err, appErr.StressorUnimplemented)
	}

	var totalIn, totalOut uint64
	for ctrl.ShouldContinue() {
		compressed.Reset()
		fw.Reset(&compressed)
		if _, err := fw.Write(input); err != nil {
			return stressor.ResourceUnavailable, appErr.Wrap(err, appErr.ResourceExhausted)
		}
		if err := fw.Close(); err != nil {
			return stressor.ResourceUnavailable, appErr.Wrap(err, appErr.ResourceExhausted)
		}
		totalIn += uint64(size)
		totalOut += uint64(compressed.Len())

		if p.Verify {
			fr := flate.NewReader(bytes.NewReader(compressed.Bytes()))
			back, err := io.ReadAll(fr)
			fr.Close()
			if err != nil {
				return stressor.VerificationFailure, appErr.Wrap(err, appErr.VerificationFailure)
			}
			if !bytes.Equal(back, input) {
				return stressor.VerificationFailure, appErr.New(appErr.VerificationFailure).
					WithMessage("zlib: decompressed block differs from input")
			}
		}
		ctrl.BogoInc()
	}

	if totalOut > 0 {
		ratio := float64(totalIn) / float64(totalOut)
		if err := ctrl.SetMetric("compression ratio", ratio, shm.AggHarmonic); err != nil {
			return stressor.Success, err
		}
	}
	return stressor.Success, nil
}
