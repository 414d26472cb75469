package payload

import (
	"bytes"
	"context"
	"encoding/binary"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"

	"stressforge/internal/engine/control"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

func init() {
	stressor.Register(&stressor.Descriptor{
		Name:    "crypto",
		Summary: "memory-hard key derivation and hashing kernels",
		Tags:    []string{"cpu", "memory", "crypto"},
		Schema: stressor.Schema{
			"crypto-method": {Kind: stressor.OptChoice, Default: "blake2b",
				Choices: []string{"blake2b", "argon2"},
				Help:    "hash kernel to run"},
			"crypto-memory": {Kind: stressor.OptBytes, Default: "8m", Min: 1 << 20, Max: 1 << 30,
				Help: "argon2 memory cost"},
		},
		VerifyByDef: false,
		Entry:       cryptoEntry,
	})
}

func cryptoEntry(ctx context.Context, ctrl *control.RunContext, p stressor.Params) (stressor.ExitClass, error) {
	method := p.Options.String("crypto-method")
	memKiB := uint32(p.Options.Bytes("crypto-memory") >> 10)

	seed := make([]byte, 64)
	binary.LittleEndian.PutUint64(seed, uint64(ctrl.Worker)+1)

	switch method {
	case "blake2b":
		h, err := blake2b.New512(nil)
		if err != nil {
			return stressor.Unimplemented, appErr.Wrap(err, appErr.StressorUnimplemented)
		}
		digest := seed
		for ctrl.ShouldContinue() {
			h.Reset()
			h.Write(digest)
			digest = h.Sum(digest[:0])
			if p.Verify {
				want := blake2b.Sum512(digest)
				h.Reset()
				h.Write(digest)
				if !bytes.Equal(h.Sum(nil), want[:]) {
					return stressor.VerificationFailure, appErr.New(appErr.VerificationFailure).
						WithMessage("crypto: blake2b digest mismatch")
				}
			}
			ctrl.BogoInc()
		}
	case "argon2":
		salt := seed[:16]
		for ctrl.ShouldContinue() {
			key := argon2.IDKey(seed, salt, 1, memKiB, 1, 32)
			if p.Verify {
				again := argon2.IDKey(seed, salt, 1, memKiB, 1, 32)
				if !bytes.Equal(key, again) {
					return stressor.VerificationFailure, appErr.New(appErr.VerificationFailure).
						WithMessage("crypto: argon2 key mismatch")
				}
			}
			copy(seed, key)
			ctrl.BogoInc()
		}
	}
	return stressor.Success, nil
}
