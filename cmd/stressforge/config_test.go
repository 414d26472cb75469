package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfig(t *testing.T) {
	path := writeConfig(t, `
jobs:
  - stressor: cpu
    instances: 4
    timeout: 30s
    maxOps: 10000
    options:
      cpu-method: matrix
  - stressor: vm
    verify: false
engine:
  enableCgroup: true
  oomRetries: 5
status:
  enabled: true
logger:
  level: debug
`)
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(cfg.Jobs))
	}
	if cfg.Jobs[0].Instances != 4 || cfg.Jobs[0].Timeout != 30*time.Second {
		t.Errorf("job 0 = %+v", cfg.Jobs[0])
	}
	if cfg.Jobs[0].Options["cpu-method"] != "matrix" {
		t.Errorf("options = %v", cfg.Jobs[0].Options)
	}
	if cfg.Jobs[1].Instances != 1 {
		t.Errorf("default instances = %d, want 1", cfg.Jobs[1].Instances)
	}
	if cfg.Jobs[1].Timeout != defaultTimeout {
		t.Errorf("default timeout = %v", cfg.Jobs[1].Timeout)
	}
	if cfg.Jobs[1].Verify == nil || *cfg.Jobs[1].Verify {
		t.Error("explicit verify false should stay false")
	}
	if !cfg.Engine.EnableCgroup || cfg.Engine.OomRetries != 5 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.SpawnRetries != defaultSpawnRetries {
		t.Errorf("spawnRetries = %d", cfg.Engine.SpawnRetries)
	}
	if cfg.Status.Addr != defaultStatusAddr {
		t.Errorf("status addr = %q", cfg.Status.Addr)
	}
}

func TestLoadAppConfigRejectsNamelessJob(t *testing.T) {
	path := writeConfig(t, "jobs:\n  - instances: 2\n")
	if _, err := loadAppConfig(path); err == nil {
		t.Fatal("expected error for job without stressor")
	}
}

func TestJobPlanVerifyDefault(t *testing.T) {
	job := JobConfig{Stressor: "vm", Instances: 2, Timeout: time.Minute}
	plan := job.plan("r1", true)
	if !plan.Verify {
		t.Error("plan should inherit the stressor's verify default")
	}

	off := false
	job.Verify = &off
	plan = job.plan("r1", true)
	if plan.Verify {
		t.Error("explicit verify false must override the default")
	}
}
