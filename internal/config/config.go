// Package config loads CollabIQ's configuration: defaults, then a
// YAML file, then environment variable overrides. Adapted from the
// teacher's config.Loader builder (config/loader.go) and its
// reflection-based env-override walk; the section layout is replaced
// with CollabIQ's own (pipeline/providers/kb/secrets/log) instead of
// the teacher's server/agent/redis/database/qdrant sections.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is CollabIQ's complete runtime configuration.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" env:"PIPELINE"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	KB        KBConfig        `yaml:"kb" env:"KB"`
	Secrets   SecretsConfig   `yaml:"secrets" env:"SECRETS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	DataRoot  string          `yaml:"data_root" env:"DATA_ROOT"`
}

// PipelineConfig controls the pipeline controller and daemon loop.
type PipelineConfig struct {
	Workers        int           `yaml:"workers" env:"WORKERS"`
	QueueSize      int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	FetchLimit     int           `yaml:"fetch_limit" env:"FETCH_LIMIT"`
	Interval       time.Duration `yaml:"interval" env:"INTERVAL"`
	GroupQuery     string        `yaml:"group_query" env:"GROUP_QUERY"`
	OnDuplicate    string        `yaml:"on_duplicate" env:"ON_DUPLICATE"`
}

// ProvidersConfig lists the LLM vendor priority and strategy.
type ProvidersConfig struct {
	Priority       []string `yaml:"priority" env:"-"`
	Strategy       string   `yaml:"strategy" env:"STRATEGY"`
	QualityRouting bool     `yaml:"quality_routing" env:"QUALITY_ROUTING"`
	MaxAttempts    int      `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// KBConfig points at the knowledge-base database to write into.
type KBConfig struct {
	DatabaseID string  `yaml:"database_id" env:"DATABASE_ID"`
	RateLimit  float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// SecretsConfig configures the secret port's in-process cache.
type SecretsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	EnvFile  string        `yaml:"env_file" env:"ENV_FILE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // "json" or "console"
}

// DefaultConfig returns CollabIQ's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Workers: 4, QueueSize: 64, FetchLimit: 50,
			Interval: 5 * time.Minute, OnDuplicate: "update",
		},
		Providers: ProvidersConfig{
			Priority: []string{"gemini", "claude", "openai"},
			Strategy: "failover", QualityRouting: true, MaxAttempts: 3,
		},
		KB: KBConfig{RateLimit: 3},
		Secrets: SecretsConfig{CacheTTL: 60 * time.Second},
		Log:     LogConfig{Level: "info", Format: "json"},
		DataRoot: "./data",
	}
}

// Loader builds a Config from defaults, an optional YAML file, and
// environment variable overrides (precedence: defaults -> file ->
// env), mirroring the teacher's config.Loader.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader constructs a Loader with the CollabIQ default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "COLLABIQ"}
}

// WithConfigPath sets the YAML file to load, if any.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a post-load validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the final Config.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}
