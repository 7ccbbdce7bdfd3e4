package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the yaml run configuration.
type Config struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	MaxSteps     int    `yaml:"max_steps"`
	WorkDir      string `yaml:"workdir"`
	RequirePatch bool   `yaml:"require_patch"`

	// Markers optionally override the protocol delimiters.
	Markers struct {
		Begin string `yaml:"begin"`
		End   string `yaml:"end"`
		Arg   string `yaml:"arg"`
		Val   string `yaml:"val"`
	} `yaml:"markers"`
}

// DefaultCLIConfig returns the config used when no file is given.
func DefaultCLIConfig() Config {
	return Config{
		Provider: "openai",
		MaxSteps: 50,
		WorkDir:  ".",
	}
}

// LoadConfig reads a yaml config file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultCLIConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 50
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	return cfg, nil
}
