// Package config loads the YAML configuration for the enrollment gate
// and its background jobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edusync/enrollment-gate/pkg/admission"
	"github.com/edusync/enrollment-gate/pkg/ranking"
	"github.com/edusync/enrollment-gate/pkg/reconcile"
	"github.com/edusync/enrollment-gate/pkg/writebehind"
)

// Config describes the full YAML configuration.
type Config struct {
	Redis struct {
		Addr   string `yaml:"addr"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`
	Capacity struct {
		RecordTTL time.Duration `yaml:"record_ttl"`
		Attempts  int           `yaml:"attempts"`
	} `yaml:"capacity"`
	Queue struct {
		ResultTTL     time.Duration `yaml:"result_ttl"`
		DrainInterval time.Duration `yaml:"drain_interval"`
	} `yaml:"queue"`
	Reconcile struct {
		Interval time.Duration `yaml:"interval"`
		LockTTL  time.Duration `yaml:"lock_ttl"`
	} `yaml:"reconcile"`
	Ranking struct {
		Size     int           `yaml:"size"`
		PageSize int           `yaml:"page_size"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"ranking"`
}

// Default returns the configuration used when no file is given. The
// values match the package defaults so a zero-config deployment behaves
// the same as one wired by hand.
func Default() Config {
	var cfg Config
	cfg.Redis.Addr = "localhost:6379"
	cfg.Capacity.RecordTTL = admission.DefaultRecordTTL
	cfg.Capacity.Attempts = 3
	cfg.Queue.ResultTTL = writebehind.DefaultResultTTL
	cfg.Queue.DrainInterval = writebehind.DefaultDrainInterval
	cfg.Reconcile.Interval = reconcile.DefaultInterval
	cfg.Reconcile.LockTTL = reconcile.DefaultLockTTL
	cfg.Ranking.Size = ranking.DefaultSize
	cfg.Ranking.PageSize = ranking.DefaultPageSize
	cfg.Ranking.TTL = ranking.DefaultTTL
	return cfg
}

// Load reads the YAML file at path and fills unset fields with
// defaults. An empty path returns Default directly.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config yaml file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if cfg.Capacity.Attempts <= 0 {
		return fmt.Errorf("capacity.attempts must be positive")
	}
	if cfg.Ranking.Size <= 0 || cfg.Ranking.PageSize <= 0 {
		return fmt.Errorf("ranking.size and ranking.page_size must be positive")
	}
	if cfg.Ranking.PageSize > cfg.Ranking.Size {
		return fmt.Errorf("ranking.page_size must not exceed ranking.size")
	}
	if cfg.Reconcile.LockTTL >= cfg.Reconcile.Interval {
		return fmt.Errorf("reconcile.lock_ttl must stay below reconcile.interval")
	}
	return nil
}
