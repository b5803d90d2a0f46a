// Copyright (c) GraphRAG Authors.
// Licensed under the MIT License.

// Package config loads the GraphRAG configuration from defaults, an
// optional YAML file and environment variable overrides, in that order.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("graphrag.yaml").
//	    WithEnvPrefix("GRAPHRAG").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete GraphRAG configuration.
type Config struct {
	// Log controls structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry controls OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Store selects and configures the persistence backend.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Redis configures the optional embedding cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Embedding configures the embedding provider.
	Embedding ProviderConfig `yaml:"embedding" env:"EMBEDDING"`

	// LLM configures the completion provider.
	LLM ProviderConfig `yaml:"llm" env:"LLM"`

	// Retrieval configures the retriever.
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Chunker configures document chunking.
	Chunker ChunkerConfig `yaml:"chunker" env:"CHUNKER"`

	// ClientCache configures the provider client cache.
	ClientCache ClientCacheConfig `yaml:"client_cache" env:"CLIENT_CACHE"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver: memory, sqlite, postgres, mysql or mongo.
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the connection string for the SQL drivers.
	DSN string `yaml:"dsn" env:"DSN"`
	// MongoURI is the connection string for the mongo driver.
	MongoURI string `yaml:"mongo_uri" env:"MONGO_URI"`
	// MongoDatabase is the database name for the mongo driver.
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
}

// RedisConfig configures the embedding cache.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// ProviderConfig configures an upstream HTTP provider.
type ProviderConfig struct {
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	Model             string        `yaml:"model" env:"MODEL"`
	Dimensions        int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// RetrievalConfig configures the retriever.
type RetrievalConfig struct {
	// MinScore is the similarity floor for vector search.
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
	// TopK is the default result count per retrieval.
	TopK int `yaml:"top_k" env:"TOP_K"`
}

// ChunkerConfig configures document chunking.
type ChunkerConfig struct {
	TargetTokens  int `yaml:"target_tokens" env:"TARGET_TOKENS"`
	OverlapTokens int `yaml:"overlap_tokens" env:"OVERLAP_TOKENS"`
}

// ClientCacheConfig configures the provider client cache.
type ClientCacheConfig struct {
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "graphrag",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Store: StoreConfig{
			Driver:        "memory",
			MongoDatabase: "graphrag",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "graphrag:emb",
			TTL:       24 * time.Hour,
		},
		Embedding: ProviderConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
		LLM: ProviderConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			MinScore: 0.2,
			TopK:     10,
		},
		Chunker: ChunkerConfig{
			TargetTokens:  512,
			OverlapTokens: 102,
		},
		ClientCache: ClientCacheConfig{
			MaxEntries: 32,
			TTL:        time.Hour,
		},
	}
}

// Loader loads configuration with an optional file and env prefix.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the GRAPHRAG env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "GRAPHRAG"}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
// Precedence: defaults, then YAML file, then environment variables.
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

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
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
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
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
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

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

// MustLoad loads configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "mysql", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}

	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, "retrieval min_score must be between 0 and 1")
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "retrieval top_k must be positive")
	}
	if c.Chunker.TargetTokens <= 0 {
		errs = append(errs, "chunker target_tokens must be positive")
	}
	if c.Chunker.OverlapTokens < 0 {
		errs = append(errs, "chunker overlap_tokens must not be negative")
	}
	if c.Chunker.OverlapTokens >= c.Chunker.TargetTokens {
		errs = append(errs, "chunker overlap_tokens must be smaller than target_tokens")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
