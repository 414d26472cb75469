//go:build linux

package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"stressforge/internal/engine/lifecycle"
	"stressforge/internal/engine/shm"
	"stressforge/internal/observer"
	"stressforge/internal/report"
	"stressforge/internal/stressor"
	appErr "stressforge/pkg/errors"
	"stressforge/pkg/utils/contextkey"
	"stressforge/pkg/utils/logger"
)

// runJob executes one job end to end and returns its exit code.
func runJob(ctx context.Context, cfg *AppConfig, job JobConfig, runID string) int {
	ctx = context.WithValue(ctx, contextkey.RunID, runID)
	ctx = context.WithValue(ctx, contextkey.Stressor, job.Stressor)

	desc, err := stressor.Lookup(job.Stressor)
	if err != nil {
		logger.Error(ctx, "unknown stressor", zap.Error(err))
		return appErr.ExitEngineFailure
	}
	// Reject bad options in the parent, before any fork.
	if _, err := desc.Schema.Parse(job.Options); err != nil {
		logger.Error(ctx, "bad options", zap.Error(err))
		return appErr.ExitEngineFailure
	}
	plan := job.plan(runID, desc.VerifyByDef)

	region, err := shm.Alloc(plan.Instances)
	if err != nil {
		logger.Error(ctx, "region allocation failed", zap.Error(err))
		return appErr.GetCode(err).ExitStatus()
	}
	defer region.Close()

	manager, err := lifecycle.NewManager(lifecycle.Config{
		HelperPath:   cfg.Engine.HelperPath,
		EnableCgroup: cfg.Engine.EnableCgroup,
		CgroupRoot:   cfg.Engine.CgroupRoot,
		SpawnRetries: cfg.Engine.SpawnRetries,
	}, region)
	if err != nil {
		logger.Error(ctx, "manager init failed", zap.Error(err))
		return appErr.ExitEngineFailure
	}
	supervisor, err := lifecycle.NewSupervisor(lifecycle.SupervisorConfig{
		OomRetries:     cfg.Engine.OomRetries,
		GracePeriod:    cfg.Engine.GracePeriod,
		BarrierTimeout: cfg.Engine.BarrierTimeout,
	}, manager, region)
	if err != nil {
		logger.Error(ctx, "supervisor init failed", zap.Error(err))
		return appErr.ExitEngineFailure
	}

	if cfg.Status.Enabled {
		srv := observer.New(cfg.Status.Addr, runID, job.Stressor, region)
		srv.Start(ctx)
		defer srv.Stop(context.Background())
	}

	logger.Info(ctx, "run starting",
		zap.Int("instances", plan.Instances),
		zap.Duration("timeout", plan.Timeout),
		zap.Uint64("maxOps", plan.MaxOps))

	res, err := supervisor.Run(ctx, plan)
	if err != nil {
		logger.Error(ctx, "run failed", zap.Error(err))
		return appErr.GetCode(err).ExitStatus()
	}

	summary := report.Build(job.Stressor, res, region.Metrics())
	summary.Write(os.Stdout)
	logger.Info(ctx, "run finished",
		zap.Uint64("bogoOps", summary.BogoOps),
		zap.Int("exitCode", summary.ExitCode))
	return summary.ExitCode
}
