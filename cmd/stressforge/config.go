package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stressforge/internal/engine/lifecycle"
	"stressforge/pkg/utils/logger"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultSpawnRetries   = 5
	defaultOomRetries     = 3
	defaultGracePeriod    = 2 * time.Second
	defaultBarrierTimeout = 10 * time.Second
	defaultStatusAddr     = "127.0.0.1:8090"
)

// JobConfig describes one stressor run in the job file.
type JobConfig struct {
	Stressor  string            `yaml:"stressor"`
	Instances int               `yaml:"instances"`
	Options   map[string]string `yaml:"options"`
	Timeout   time.Duration     `yaml:"timeout"`
	MaxOps    uint64            `yaml:"maxOps"`
	Verify    *bool             `yaml:"verify"`
	PinCPUs   bool              `yaml:"pinCPUs"`
}

// EngineConfig holds worker supervision settings.
type EngineConfig struct {
	HelperPath     string        `yaml:"helperPath"`
	EnableCgroup   bool          `yaml:"enableCgroup"`
	CgroupRoot     string        `yaml:"cgroupRoot"`
	SpawnRetries   int           `yaml:"spawnRetries"`
	OomRetries     int           `yaml:"oomRetries"`
	GracePeriod    time.Duration `yaml:"gracePeriod"`
	BarrierTimeout time.Duration `yaml:"barrierTimeout"`
}

// StatusConfig holds the optional HTTP status endpoint settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AppConfig is the top-level config file layout.
type AppConfig struct {
	Jobs   []JobConfig   `yaml:"jobs"`
	Engine EngineConfig  `yaml:"engine"`
	Status StatusConfig  `yaml:"status"`
	Logger logger.Config `yaml:"logger"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	for i := range cfg.Jobs {
		if cfg.Jobs[i].Stressor == "" {
			return nil, fmt.Errorf("job %d: stressor name is required", i)
		}
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Engine.HelperPath == "" {
		cfg.Engine.HelperPath = helperPathNearSelf()
	}
	if cfg.Engine.SpawnRetries <= 0 {
		cfg.Engine.SpawnRetries = defaultSpawnRetries
	}
	if cfg.Engine.OomRetries <= 0 {
		cfg.Engine.OomRetries = defaultOomRetries
	}
	if cfg.Engine.GracePeriod <= 0 {
		cfg.Engine.GracePeriod = defaultGracePeriod
	}
	if cfg.Engine.BarrierTimeout <= 0 {
		cfg.Engine.BarrierTimeout = defaultBarrierTimeout
	}
	if cfg.Status.Addr == "" {
		cfg.Status.Addr = defaultStatusAddr
	}
	for i := range cfg.Jobs {
		if cfg.Jobs[i].Instances <= 0 {
			cfg.Jobs[i].Instances = 1
		}
		if cfg.Jobs[i].Timeout == 0 {
			cfg.Jobs[i].Timeout = defaultTimeout
		}
	}
}

// helperPathNearSelf looks for the worker binary next to this one, so
// an installed pair works without configuration.
func helperPathNearSelf() string {
	self, err := os.Executable()
	if err != nil {
		return "stress-worker"
	}
	candidate := filepath.Join(filepath.Dir(self), "stress-worker")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return "stress-worker"
}

func (j JobConfig) plan(runID string, defaultVerify bool) lifecycle.RunPlan {
	verify := defaultVerify
	if j.Verify != nil {
		verify = *j.Verify
	}
	return lifecycle.RunPlan{
		RunID:     runID,
		Stressor:  j.Stressor,
		Options:   j.Options,
		Instances: j.Instances,
		Timeout:   j.Timeout,
		MaxOps:    j.MaxOps,
		Verify:    verify,
		PinCPUs:   j.PinCPUs,
	}
}
