//go:build linux

// Command stress-worker is the helper binary stressforge spawns once
// per worker slot. It reads its init request from stdin, attaches the
// inherited shared region, and runs the requested payload. With -probe
// it instead runs a single probe target and exits, so the parent can
// classify trapping methods from the exit signal.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"stressforge/internal/engine/lifecycle"
	"stressforge/internal/engine/trampoline"
	"stressforge/internal/engine/worker"
	"stressforge/internal/stressor/payload"
	appErr "stressforge/pkg/errors"
	"stressforge/pkg/utils/logger"
)

func main() {
	probe := flag.String("probe", "", "run one probe target and exit")
	flag.Parse()

	if *probe != "" {
		if err := trampoline.RunTarget(*probe); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(appErr.ExitEngineFailure)
		}
		return
	}

	if self, err := os.Executable(); err == nil {
		payload.ProbeHelperPath = self
	}

	var req lifecycle.InitRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintf(os.Stderr, "decode init request failed: %v\n", err)
		os.Exit(appErr.ExitEngineFailure)
	}

	// Workers log to the shared stderr as console lines; the parent owns
	// the structured report.
	if err := logger.Init(logger.Config{Level: "info", Format: "console", OutputPath: "stderr", ErrorPath: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(appErr.ExitEngineFailure)
	}
	defer func() {
		_ = logger.Sync()
	}()

	os.Exit(worker.Main(req))
}
