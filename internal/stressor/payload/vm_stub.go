//go:build !linux

package payload

import (
	"context"

	"stressforge/internal/engine/control"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
)

func init() {
	stressor.Register(&stressor.Descriptor{
		Name:    "vm",
		Summary: "writes and re-reads bit patterns over anonymous mappings",
		Tags:    []string{"vm", "memory"},
		Schema: stressor.Schema{
			"vm-bytes":  {Kind: stressor.OptBytes, Default: "16m", Min: 4096, Max: 1 << 38},
			"vm-method": {Kind: stressor.OptChoice, Default: "all", Choices: []string{"all"}},
		},
		Entry: func(context.Context, *control.RunContext, stressor.Params) (stressor.ExitClass, error) {
			return stressor.Unimplemented, appErr.New(appErr.StressorUnimplemented).
				WithDetail("stressor", "vm")
		},
	})
}
