// Package config loads the engine tuning file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/conditions"
)

// EngineConfig holds the knobs the executor and scheduler read at start-up.
type EngineConfig struct {
	Retry         RetryConfig               `yaml:"retry"`
	Scheduler     SchedulerConfig           `yaml:"scheduler"`
	ActionTimeout time.Duration             `yaml:"action_timeout"`
	Categories    []conditions.CategoryRule `yaml:"appointment_categories"`
}

// RetryConfig shapes the exponential backoff between failed action attempts.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// SchedulerConfig controls the due-enrollment scan.
type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
}

// Default returns the configuration used when no file is given.
func Default() EngineConfig {
	return EngineConfig{
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Minute,
			Multiplier:      2,
			MaxInterval:     time.Hour,
		},
		Scheduler: SchedulerConfig{
			Interval:    30 * time.Second,
			BatchSize:   100,
			Concurrency: 8,
		},
		ActionTimeout: 30 * time.Second,
		Categories:    conditions.DefaultCategoryRules,
	}
}

// Load reads path over the defaults. Fields absent from the file keep their default.
func Load(path string) (EngineConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadOrDefault loads path when set, and returns the defaults when path is empty.
func LoadOrDefault(path string) (EngineConfig, error) {
	if path == "" {
		return Default(), nil
	}

	return Load(path)
}

// Validate rejects settings the engine cannot run with.
func (c EngineConfig) Validate() error {
	var errs []error

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}

	if c.Retry.InitialInterval <= 0 {
		errs = append(errs, errors.New("retry.initial_interval must be positive"))
	}

	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry.multiplier must be at least 1"))
	}

	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		errs = append(errs, errors.New("retry.max_interval must not be below retry.initial_interval"))
	}

	if c.Scheduler.Interval < time.Second {
		errs = append(errs, errors.New("scheduler.interval must be at least 1s"))
	}

	if c.Scheduler.BatchSize < 1 {
		errs = append(errs, errors.New("scheduler.batch_size must be at least 1"))
	}

	if c.Scheduler.Concurrency < 1 {
		errs = append(errs, errors.New("scheduler.concurrency must be at least 1"))
	}

	if c.ActionTimeout <= 0 {
		errs = append(errs, errors.New("action_timeout must be positive"))
	}

	for i, rule := range c.Categories {
		if rule.Category == "" || len(rule.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("appointment_categories[%d]: category and keywords are required", i))
		}
	}

	return errors.Join(errs...)
}
