// Command stressforge runs stress-test jobs: it allocates the shared
// metrics region, spawns and supervises stress-worker processes, and
// prints the aggregated bogo-ops report when the run ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stressforge/internal/engine/capability"
	"stressforge/internal/stressor"
	_ "stressforge/internal/stressor/payload"
	"stressforge/pkg/utils/logger"
)

type optionFlags map[string]string

func (o optionFlags) String() string { return "" }

func (o optionFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("option %q is not key=value", v)
	}
	o[k] = val
	return nil
}

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		name       = flag.String("stressor", "", "run a single stressor, overriding the job file")
		instances  = flag.Int("instances", 1, "worker count for -stressor")
		timeout    = flag.Duration("timeout", 60*time.Second, "run deadline for -stressor, 0 for none")
		maxOps     = flag.Uint64("max-ops", 0, "bogo-ops bound for -stressor, 0 for unbounded")
		verify     = flag.Bool("verify", false, "recheck payload results while running")
		pin        = flag.Bool("pin", false, "pin each worker to a cpu")
		list       = flag.Bool("list", false, "list available stressors and exit")
		caps       = flag.Bool("caps", false, "print the probed capability table and exit")
		opts       = optionFlags{}
	)
	flag.Var(opts, "opt", "stressor option key=value, repeatable")
	flag.Parse()

	if *list {
		for _, n := range stressor.Names() {
			d, _ := stressor.Lookup(n)
			fmt.Printf("%-10s %s\n", n, d.Summary)
		}
		return
	}
	if *caps {
		printCapabilities()
		return
	}

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *name != "" {
		cfg.Jobs = []JobConfig{{
			Stressor:  *name,
			Instances: *instances,
			Options:   opts,
			Timeout:   *timeout,
			MaxOps:    *maxOps,
			Verify:    verify,
			PinCPUs:   *pin,
		}}
	}
	if len(cfg.Jobs) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to run: pass -stressor or a -config with jobs")
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worst := 0
	for i, job := range cfg.Jobs {
		runID := fmt.Sprintf("%d-%d", os.Getpid(), i)
		code := runJob(ctx, cfg, job, runID)
		if rank(code) > rank(worst) {
			worst = code
		}
		if ctx.Err() != nil {
			break
		}
	}
	os.Exit(worst)
}

func rank(code int) int {
	switch code {
	case 0:
		return 0
	case 4:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	default:
		return 4
	}
}

func printCapabilities() {
	t := capability.Snapshot()
	fmt.Printf("vendor:     %s\n", t.Vendor())
	fmt.Printf("cpus:       %d\n", t.CPUs())
	fmt.Printf("numa nodes: %d\n", t.NUMANodes())
	fmt.Printf("page size:  %d\n", t.PageSize())
	for f := capability.Feature(0); f < capability.FeatureCount; f++ {
		fmt.Printf("%-12s %v\n", f, t.Has(f))
	}
}
