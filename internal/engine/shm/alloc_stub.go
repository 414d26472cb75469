//go:build !linux

package shm

import (
	"os"

	appErr "stressforge/pkg/errors"
)

// The shared region relies on memfd + MAP_SHARED inheritance, which is
// Linux-only. Other platforms refuse at allocation time.

func Alloc(workers int) (*Region, error) {
	return nil, appErr.New(appErr.StressorUnimplemented).
		WithMessage("shared metrics region requires Linux")
}

func Attach(f *os.File) (*Region, error) {
	return nil, appErr.New(appErr.StressorUnimplemented).
		WithMessage("shared metrics region requires Linux")
}

func (r *Region) Close() error {
	return nil
}
