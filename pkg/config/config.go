// Package config resolves the process configuration once at startup from
// defaults, an optional YAML file and environment variables, validates it
// and hands the typed result to each component explicitly.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override config
// values. Double underscore separates nesting levels so keys that contain
// underscores stay addressable: GOSEGMENT_SERVER__API_KEY -> server.api_key.
const EnvPrefix = "GOSEGMENT_"

// Config is the complete validated process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server" validate:"required"`
	Database DatabaseConfig `koanf:"database" validate:"required"`
	Dataset  DatasetConfig  `koanf:"dataset"`
	Model    ModelConfig    `koanf:"model" validate:"required"`
	Monitor  MonitorConfig  `koanf:"monitor" validate:"required"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port" validate:"min=1,max=65535"`
	APIKey       string `koanf:"api_key"`
	APIKeyHeader string `koanf:"api_key_header" validate:"required"`
}

// DatabaseConfig configures the registry storage backend.
type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=postgres sqlite"`
	DSN    string `koanf:"dsn" validate:"required"`
}

// DatasetConfig locates the reference dataset on disk.
type DatasetConfig struct {
	Path     string `koanf:"path"`
	IDColumn string `koanf:"id_column"`
}

// ModelConfig carries the training parameters for every pipeline stage.
type ModelConfig struct {
	Features []string     `koanf:"features" validate:"min=1"`
	KMeans   KMeansConfig `koanf:"kmeans" validate:"required"`
	DBSCAN   DBSCANConfig `koanf:"dbscan" validate:"required"`
	PCA      PCAConfig    `koanf:"pca" validate:"required"`
}

// KMeansConfig configures the partitioning engine.
type KMeansConfig struct {
	Clusters      int   `koanf:"clusters" validate:"min=1"`
	MaxIterations int   `koanf:"max_iterations" validate:"min=1"`
	Seed          int64 `koanf:"seed"`
}

// DBSCANConfig configures the density engine.
type DBSCANConfig struct {
	Eps        float64 `koanf:"eps" validate:"gt=0"`
	MinSamples int     `koanf:"min_samples" validate:"min=1"`
}

// PCAConfig configures the dimensionality reducer.
type PCAConfig struct {
	Components int `koanf:"components" validate:"min=1"`
}

// MonitorConfig configures drift detection and alerting.
type MonitorConfig struct {
	DriftThreshold  float64  `koanf:"drift_threshold" validate:"gt=0,lt=1"`
	AlertRecipients []string `koanf:"alert_recipients" validate:"dive,email"`
}

// SMTPConfig configures outbound alert email. Disabled by default; with
// Enabled false a no-op notifier is used.
type SMTPConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host" validate:"required_if=Enabled true"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from" validate:"omitempty,email"`
	Password string `koanf:"password"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

// DefaultFeatures is the fixed marketing feature set the pipeline
// segments on.
var DefaultFeatures = []string{
	"Income", "Recency", "MntWines", "MntFruits", "MntMeatProducts",
	"MntFishProducts", "MntSweetProducts", "MntGoldProds",
	"NumDealsPurchases", "NumWebPurchases", "NumCatalogPurchases",
	"NumStorePurchases", "NumWebVisitsMonth",
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			APIKeyHeader: "X-API-Key",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/segmentation.db",
		},
		Dataset: DatasetConfig{
			Path:     "data/marketing_campaign.csv",
			IDColumn: "ID",
		},
		Model: ModelConfig{
			Features: append([]string(nil), DefaultFeatures...),
			KMeans: KMeansConfig{
				Clusters:      4,
				MaxIterations: 300,
				Seed:          42,
			},
			DBSCAN: DBSCANConfig{
				Eps:        0.5,
				MinSamples: 5,
			},
			PCA: PCAConfig{
				Components: 2,
			},
		},
		Monitor: MonitorConfig{
			DriftThreshold: 0.05,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the configuration: defaults first, then the YAML file at
// path (skipped when path is empty or missing), then environment
// variables, then validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
