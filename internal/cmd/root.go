// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cmd implements the cqbench command line.
package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/config"
)

// v holds the command configuration: defaults, config file, environment
// and flags, in increasing priority.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "cqbench",
	Short: "Drive synthetic workloads through a cmdqueue pipeline",
	Long: `cqbench commits chunks through a cmdqueue pipeline on a chosen driver
and reports throughput, back-pressure and reclaim statistics.

Settings come from a YAML config file, CMDQUEUE_* environment variables
(e.g., CMDQUEUE_CAPTURE_FRAME) and flags.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug/info/warn/error)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"config":    "config",
		"log-level": "logging.level",
	})
}

func initConfig() {
	config.SetDefaults(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("cqbench: config file not read", "file", cfgFile, "err", err)
		}
	}
}

// bindFlags binds flags to configuration keys.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		_ = v.BindPFlag(key, fs.Lookup(flag))
	}
}

// loadConfig reads the merged configuration and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				slog.Error("cqbench: invalid configuration", "field", e.Field, "err", e.Message)
			}
		}
		return nil, err
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})
	cmdqueue.SetLogger(slog.New(handler))
	return cfg, nil
}
