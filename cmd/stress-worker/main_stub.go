//go:build !linux

package main

import (
	"fmt"
	"os"

	appErr "stressforge/pkg/errors"
)

func main() {
	fmt.Fprintln(os.Stderr, "stress-worker requires linux")
	os.Exit(appErr.ExitUnimplemented)
}
