// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads pipeline configuration from the environment and an
// optional YAML file with viper.
//
// Every key can be overridden by an environment variable prefixed with
// CMDQUEUE_, dots replaced by underscores. The capture trigger frame is
// read from CMDQUEUE_CAPTURE_FRAME.
package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/reclaim"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CMDQUEUE"

// Config represents the complete cmdqueue configuration.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Reclaim  ReclaimConfig  `mapstructure:"reclaim"`
	Driver   DriverConfig   `mapstructure:"driver"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PipelineConfig sizes the chunk ring.
type PipelineConfig struct {
	// RingCapacity is the number of chunks in the ring (min 2).
	RingCapacity int `mapstructure:"ring_capacity"`
	// HeapSize is the CPU scratch heap of every chunk in bytes.
	HeapSize int `mapstructure:"heap_size"`
	// ElevatedPriority raises the scheduling priority of the worker threads.
	ElevatedPriority bool `mapstructure:"elevated_priority"`
}

// CaptureConfig controls GPU capture.
type CaptureConfig struct {
	// Frame is the frame to capture, as a decimal string. Empty or
	// malformed values disable the scheduled capture.
	Frame string `mapstructure:"frame"`
	// Dir is the directory trace files are written to.
	Dir string `mapstructure:"dir"`
	// DeviceLabel names the device in capture sessions.
	DeviceLabel string `mapstructure:"device_label"`
	// TriggerFile, when set, requests a capture each time the file appears.
	TriggerFile string `mapstructure:"trigger_file"`
}

// ReclaimConfig sizes the staging, copy-temp and command-data allocators.
type ReclaimConfig struct {
	// PageSize is the size of regular pages in bytes.
	PageSize uint64 `mapstructure:"page_size"`
	// BudgetMB bounds the page memory of each allocator.
	BudgetMB int `mapstructure:"budget_mb"`
	// MaxFreePages bounds the idle pages kept for reuse.
	MaxFreePages int `mapstructure:"max_free_pages"`
}

// DriverConfig selects the native queue driver.
type DriverConfig struct {
	// Name is a registered driver name; empty selects the default.
	Name string `mapstructure:"name"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			RingCapacity:     cmdqueue.DefaultRingCapacity,
			HeapSize:         cmdqueue.DefaultHeapSize,
			ElevatedPriority: true,
		},
		Capture: CaptureConfig{
			DeviceLabel: cmdqueue.DefaultDeviceLabel,
		},
		Reclaim: ReclaimConfig{
			PageSize:     reclaim.DefaultPageSize,
			BudgetMB:     reclaim.DefaultBudget >> 20,
			MaxFreePages: reclaim.DefaultMaxFreePages,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers the defaults on v and binds the environment.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Pipeline defaults
	v.SetDefault("pipeline.ring_capacity", defaults.Pipeline.RingCapacity)
	v.SetDefault("pipeline.heap_size", defaults.Pipeline.HeapSize)
	v.SetDefault("pipeline.elevated_priority", defaults.Pipeline.ElevatedPriority)

	// Capture defaults
	v.SetDefault("capture.frame", defaults.Capture.Frame)
	v.SetDefault("capture.dir", defaults.Capture.Dir)
	v.SetDefault("capture.device_label", defaults.Capture.DeviceLabel)
	v.SetDefault("capture.trigger_file", defaults.Capture.TriggerFile)

	// Reclaim defaults
	v.SetDefault("reclaim.page_size", defaults.Reclaim.PageSize)
	v.SetDefault("reclaim.budget_mb", defaults.Reclaim.BudgetMB)
	v.SetDefault("reclaim.max_free_pages", defaults.Reclaim.MaxFreePages)

	// Driver defaults
	v.SetDefault("driver.name", defaults.Driver.Name)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Options translates the configuration into pipeline options.
func (c *Config) Options() []cmdqueue.Option {
	return []cmdqueue.Option{
		cmdqueue.WithRingCapacity(c.Pipeline.RingCapacity),
		cmdqueue.WithHeapSize(c.Pipeline.HeapSize),
		cmdqueue.WithElevatedPriority(c.Pipeline.ElevatedPriority),
		cmdqueue.WithCaptureFrame(c.Capture.Frame),
		cmdqueue.WithCaptureDir(c.Capture.Dir),
		cmdqueue.WithDeviceLabel(c.Capture.DeviceLabel),
	}
}

// ReclaimConfig returns the allocator configuration.
func (c *Config) ReclaimConfig() reclaim.Config {
	return reclaim.Config{
		PageSize:     c.Reclaim.PageSize,
		Budget:       uint64(c.Reclaim.BudgetMB) << 20,
		MaxFreePages: c.Reclaim.MaxFreePages,
	}
}

// LogLevel returns the slog level for Logging.Level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
