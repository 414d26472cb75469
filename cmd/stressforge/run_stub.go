//go:build !linux

package main

import (
	"context"
	"fmt"
	"os"

	appErr "stressforge/pkg/errors"
)

func runJob(_ context.Context, _ *AppConfig, job JobConfig, _ string) int {
	fmt.Fprintf(os.Stderr, "stressor %q: worker supervision requires linux\n", job.Stressor)
	return appErr.ExitUnimplemented
}
