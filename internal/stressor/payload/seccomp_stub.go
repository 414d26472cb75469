//go:build !linux || !cgo

package payload

import (
	"context"

	"stressforge/internal/engine/control"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

func init() {
	stressor.Register(&stressor.Descriptor{
		Name:    "seccomp",
		Summary: "spawns short-lived children confined by a strict syscall allowlist",
		Tags:    []string{"process", "os", "security"},
		Schema:  stressor.Schema{},
		Entry: func(context.Context, *control.RunContext, stressor.Params) (stressor.ExitClass, error) {
			return stressor.Unimplemented, appErr.New(appErr.StressorUnimplemented).
				WithDetail("stressor", "seccomp")
		},
	})
}
