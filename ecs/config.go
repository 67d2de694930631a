package ecs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables a World is constructed with: pool sizing and
// logging. It is ordinary data, loadable from a YAML file the same way
// the teacher's resource manifests are.
type Config struct {
	Pools  PoolConfig  `yaml:"pools"`
	Logger LoggerConfig `yaml:"logger"`
}

// PoolConfig sizes the op pool and the default capacity newly discovered
// component schemas get (schemas registered explicitly via RegisterSchema
// may override this with WithPoolCapacity).
type PoolConfig struct {
	OpCapacity        int `yaml:"op_capacity"`
	DefaultComponentCapacity int `yaml:"default_component_capacity"`
}

// LoggerConfig controls the ambient logger's verbosity and format.
type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration a World is built with when no
// Config is supplied explicitly.
func DefaultConfig() Config {
	return Config{
		Pools: PoolConfig{
			OpCapacity:               defaultPoolCapacity,
			DefaultComponentCapacity: defaultPoolCapacity,
		},
		Logger: LoggerConfig{Level: "info"},
	}
}

// LoadConfig reads and parses a YAML configuration file, filling in
// DefaultConfig's values for anything left at its zero value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("ecs: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("ecs: parsing config: %w", err)
	}
	if cfg.Pools.OpCapacity <= 0 {
		cfg.Pools.OpCapacity = defaultPoolCapacity
	}
	if cfg.Pools.DefaultComponentCapacity <= 0 {
		cfg.Pools.DefaultComponentCapacity = defaultPoolCapacity
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	return cfg, nil
}
