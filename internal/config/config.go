// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/R2-Decide/esci-evaluator/internal/backend"
	"github.com/R2-Decide/esci-evaluator/internal/label"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"ESCI_HOST" yaml:"host"`
	Port int    `envconfig:"ESCI_PORT" yaml:"port"`

	// Relevance gain per label
	Weights WeightsConfig `yaml:"weights"`

	// Evaluation configuration
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Dataset configuration
	Dataset DatasetConfig `yaml:"dataset"`

	// Backend adapter configuration
	Backends BackendsConfig `yaml:"backends"`

	// Qdrant connection settings for the r2decide adapter
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Redis configuration for run history
	Redis RedisConfig `yaml:"redis"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// WeightsConfig holds the relevance gain assigned to each judgment label.
type WeightsConfig struct {
	Exact      float64 `envconfig:"ESCI_WEIGHT_EXACT" yaml:"exact"`
	Substitute float64 `envconfig:"ESCI_WEIGHT_SUBSTITUTE" yaml:"substitute"`
	Complement float64 `envconfig:"ESCI_WEIGHT_COMPLEMENT" yaml:"complement"`
	Irrelevant float64 `envconfig:"ESCI_WEIGHT_IRRELEVANT" yaml:"irrelevant"`
}

// Weights converts the configured gains to the label weight set.
func (w WeightsConfig) Weights() label.Weights {
	return label.Weights{
		Exact:      w.Exact,
		Substitute: w.Substitute,
		Complement: w.Complement,
		Irrelevant: w.Irrelevant,
	}
}

// EvaluationConfig holds scoring and driver settings.
type EvaluationConfig struct {
	// Ks lists the rank cutoffs to evaluate at.
	Ks []int `envconfig:"ESCI_EVAL_KS" yaml:"ks"`

	// Threshold is the minimum gain for a result to count as relevant
	// in precision, recall, MRR and AP.
	Threshold float64 `envconfig:"ESCI_EVAL_THRESHOLD" yaml:"threshold"`

	// Workers is the number of concurrent query evaluations.
	Workers int `envconfig:"ESCI_EVAL_WORKERS" yaml:"workers"`

	// FailureThreshold is the consecutive backend-unavailable count
	// that aborts a run.
	FailureThreshold int `envconfig:"ESCI_EVAL_FAILURE_THRESHOLD" yaml:"failure_threshold"`

	// MinLabels drops queries with fewer labeled products. Zero keeps
	// every query.
	MinLabels int `envconfig:"ESCI_EVAL_MIN_LABELS" yaml:"min_labels"`
}

// DatasetConfig holds ground truth loading settings.
type DatasetConfig struct {
	Path     string `envconfig:"ESCI_DATASET_PATH" yaml:"path"`
	Locale   string `envconfig:"ESCI_DATASET_LOCALE" yaml:"locale"`
	Category string `envconfig:"ESCI_DATASET_CATEGORY" yaml:"category"`
}

// BackendsConfig holds per-platform adapter settings.
type BackendsConfig struct {
	// Default selects the adapter used when a request names none.
	Default string `envconfig:"ESCI_DEFAULT_BACKEND" yaml:"default"`

	// ResultsFile feeds the static adapter from pre-captured results.
	ResultsFile string `envconfig:"ESCI_RESULTS_FILE" yaml:"results_file"`

	Algolia   backend.AlgoliaConfig   `yaml:"algolia"`
	Doofinder backend.DoofinderConfig `yaml:"doofinder"`
	Shopify   backend.ShopifyConfig   `yaml:"shopify"`
	R2Decide  backend.QdrantConfig    `yaml:"r2decide"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string `envconfig:"QDRANT_HOST" yaml:"host"`
	Port   int    `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS bool   `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
}

// RedisConfig holds run history storage settings.
type RedisConfig struct {
	URL string `envconfig:"ESCI_REDIS_URL" yaml:"url"`

	// RetentionDays prunes stored runs older than this. Zero keeps
	// runs forever.
	RetentionDays int `envconfig:"ESCI_REDIS_RETENTION_DAYS" yaml:"retention_days"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"ESCI_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"ESCI_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"ESCI_KAFKA_GROUP" yaml:"kafka_group"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"ESCI_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"ESCI_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	defaults := label.DefaultWeights()
	cfg.Weights = WeightsConfig{
		Exact:      defaults.Exact,
		Substitute: defaults.Substitute,
		Complement: defaults.Complement,
		Irrelevant: defaults.Irrelevant,
	}

	cfg.Evaluation = EvaluationConfig{
		Ks:               []int{5, 10, 20},
		Threshold:        defaults.Substitute,
		Workers:          4,
		FailureThreshold: 3,
	}

	cfg.Backends = BackendsConfig{
		Default: "static",
	}

	cfg.Qdrant = QdrantConfig{
		Host: "localhost",
		Port: 6334,
	}

	cfg.Redis = RedisConfig{
		URL:           "redis://localhost:6379",
		RetentionDays: 30,
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Weight validation
	if err := c.Weights.Weights().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Evaluation validation
	if len(c.Evaluation.Ks) == 0 {
		errs = append(errs, "evaluation ks cannot be empty")
	}
	for _, k := range c.Evaluation.Ks {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("evaluation k must be positive, got %d", k))
			break
		}
	}

	if c.Evaluation.Threshold <= 0 || c.Evaluation.Threshold > 1 {
		errs = append(errs, "evaluation threshold must be in (0, 1]")
	}

	if c.Evaluation.Workers < 1 {
		errs = append(errs, "evaluation workers must be positive")
	}

	if c.Evaluation.FailureThreshold < 1 {
		errs = append(errs, "evaluation failure_threshold must be positive")
	}

	if c.Evaluation.MinLabels < 0 {
		errs = append(errs, "evaluation min_labels cannot be negative")
	}

	// Backend validation
	validBackends := map[string]bool{"static": true, "algolia": true, "doofinder": true, "shopify": true, "r2decide": true}
	if !validBackends[c.Backends.Default] {
		errs = append(errs, fmt.Sprintf("invalid default backend: %s (must be static, algolia, doofinder, shopify, or r2decide)", c.Backends.Default))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
