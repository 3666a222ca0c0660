// Package config loads gradeforge's orchestrator configuration: the
// store connection string, admission worker count, and HTTP bind
// address. A yaml.v3-decoded struct validated with
// go-playground/validator/v10, layered under viper environment
// binding so FORGE_STORE_DSN and FORGE_WORKERS can override the file
// without one.
package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full gradeforge orchestrator configuration document.
type Config struct {
	StoreDSN    string `yaml:"store_dsn" mapstructure:"store_dsn" validate:"required"`
	Workers     int64  `yaml:"workers" mapstructure:"workers" validate:"required,min=1,max=4096"`
	BindAddr    string `yaml:"bind_addr" mapstructure:"bind_addr" validate:"required,hostname_port"`
	LogLevel    string `yaml:"log_level,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	RunTimeoutS int    `yaml:"run_timeout_seconds,omitempty" mapstructure:"run_timeout_seconds" validate:"omitempty,min=1,max=3600"`
}

// Default returns the configuration gradeforge falls back to when no
// file and no environment overrides are present: an in-memory store,
// two admission permits, and a loopback bind address.
func Default() Config {
	return Config{
		StoreDSN:    ":memory:",
		Workers:     2,
		BindAddr:    "127.0.0.1:8080",
		LogLevel:    "info",
		RunTimeoutS: 5,
	}
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validateInst = validator.New()
	})
	return validateInst
}

// Load reads the configuration YAML at path (if non-empty; a missing
// path yields Default()'s values as the viper base), layers the
// FORGE_STORE_DSN and FORGE_WORKERS environment variables over it the
// teacher's validator_instance.go way, validates the merged result,
// and returns it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("forge")
	v.AutomaticEnv()
	_ = v.BindEnv("store_dsn", "FORGE_STORE_DSN")
	_ = v.BindEnv("workers", "FORGE_WORKERS")
	_ = v.BindEnv("bind_addr", "FORGE_BIND_ADDR")

	def := Default()
	v.SetDefault("store_dsn", def.StoreDSN)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("bind_addr", def.BindAddr)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("run_timeout_seconds", def.RunTimeoutS)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes raw as a standalone YAML document (no environment
// layering, no defaults) and validates it. Used by tests and by
// callers that already have the document in hand.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	if err := validatorInstance().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
