package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/kiln-ml/kiln/internal/logger"
)

// Config is the kiln configuration file (~/.config/kiln/config.yaml).
// Flags take precedence over config values.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// BatchCapacity is the default dispatches-per-batch for run.
	BatchCapacity int `yaml:"batch_capacity"`

	// Power biases adapter selection: "high-performance" or "low-power".
	Power string `yaml:"power"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kiln", "config.yaml")
}

// loadConfig reads the config file named by --config, or the default
// location. A missing file is not an error; a malformed one is.
func loadConfig(cmd *cli.Command) (Config, error) {
	var cfg Config
	path := cmd.String("config")
	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			return cfg, err
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildLogger combines flags and config into the CLI logger.
func buildLogger(cmd *cli.Command, cfg Config) logger.Logger {
	level := cfg.LogLevel
	if cmd.String("log-level") != "" {
		level = cmd.String("log-level")
	}
	format := cfg.LogFormat
	if cmd.String("log-format") != "" {
		format = cmd.String("log-format")
	}
	lv := logger.ParseLevel(level)
	if format == "json" {
		return logger.JSON(os.Stderr, lv)
	}
	return logger.Text(os.Stderr, lv)
}
