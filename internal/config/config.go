// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds engine configuration
type Config struct {
	DataDir            string        `yaml:"data_dir" default:"data" validate:"required"` // Always absolute after Load
	LogLevel           string        `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogPretty          bool          `yaml:"log_pretty"`
	ModelFile          string        `yaml:"model_file" default:"predictor.msgpack" validate:"required"`
	JournalFile        string        `yaml:"journal_file" default:"journal.db" validate:"required"`
	JournalRetention   time.Duration `yaml:"journal_retention" default:"720h" validate:"gte=0"`
	JournalProfile     string        `yaml:"journal_profile" default:"standard" validate:"oneof=durable standard cache"`
	UserBalance        float64       `yaml:"user_balance" default:"100" validate:"gte=0"`
	RiskTolerance      string        `yaml:"risk_tolerance" default:"moderate" validate:"oneof=conservative moderate aggressive"`
	PredictionCacheTTL time.Duration `yaml:"prediction_cache_ttl" default:"5m" validate:"gt=0"`
	HistoryCacheTTL    time.Duration `yaml:"history_cache_ttl" default:"1h" validate:"gt=0"`
	RetrainThreshold   int           `yaml:"retrain_threshold" default:"100" validate:"min=1"`
	MinTrainingSamples int           `yaml:"min_training_samples" default:"10" validate:"min=1"`
	Workers            int           `yaml:"workers" default:"4" validate:"min=1"`
	CheckpointSchedule string        `yaml:"checkpoint_schedule" default:"@every 15m" validate:"required"`
	Backup             BackupConfig  `yaml:"backup"`
}

// BackupConfig configures the S3-compatible mirror for model checkpoints.
type BackupConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	Region          string `yaml:"region" default:"auto"`
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	Prefix          string `yaml:"prefix" default:"skinsentinel"`
	AccessKeyID     string `yaml:"access_key_id" validate:"required_if=Enabled true"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required_if=Enabled true"`
}

var validate = validator.New()

// Load builds the configuration: struct defaults, then the YAML file at path
// (or $ENGINE_CONFIG when path is empty), then .env and environment overrides.
// The result is validated and DataDir is resolved and created.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("set config defaults: %w", err)
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	if path == "" {
		path = getEnv("ENGINE_CONFIG", "")
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) {
	cfg.DataDir = getEnv("ENGINE_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogPretty = getEnvAsBool("LOG_PRETTY", cfg.LogPretty)
	cfg.ModelFile = getEnv("ENGINE_MODEL_FILE", cfg.ModelFile)
	cfg.JournalFile = getEnv("ENGINE_JOURNAL_FILE", cfg.JournalFile)
	cfg.JournalRetention = getEnvAsDuration("ENGINE_JOURNAL_RETENTION", cfg.JournalRetention)
	cfg.JournalProfile = strings.ToLower(getEnv("ENGINE_JOURNAL_PROFILE", cfg.JournalProfile))
	cfg.UserBalance = getEnvAsFloat("ENGINE_BALANCE", cfg.UserBalance)
	cfg.RiskTolerance = strings.ToLower(getEnv("ENGINE_RISK_TOLERANCE", cfg.RiskTolerance))
	cfg.PredictionCacheTTL = getEnvAsDuration("ENGINE_PREDICTION_CACHE_TTL", cfg.PredictionCacheTTL)
	cfg.HistoryCacheTTL = getEnvAsDuration("ENGINE_HISTORY_CACHE_TTL", cfg.HistoryCacheTTL)
	cfg.RetrainThreshold = getEnvAsInt("ENGINE_RETRAIN_THRESHOLD", cfg.RetrainThreshold)
	cfg.MinTrainingSamples = getEnvAsInt("ENGINE_MIN_TRAINING_SAMPLES", cfg.MinTrainingSamples)
	cfg.Workers = getEnvAsInt("ENGINE_WORKERS", cfg.Workers)
	cfg.CheckpointSchedule = getEnv("ENGINE_CHECKPOINT_SCHEDULE", cfg.CheckpointSchedule)

	cfg.Backup.Enabled = getEnvAsBool("BACKUP_ENABLED", cfg.Backup.Enabled)
	cfg.Backup.Endpoint = getEnv("BACKUP_ENDPOINT", cfg.Backup.Endpoint)
	cfg.Backup.Region = getEnv("BACKUP_REGION", cfg.Backup.Region)
	cfg.Backup.Bucket = getEnv("BACKUP_BUCKET", cfg.Backup.Bucket)
	cfg.Backup.Prefix = getEnv("BACKUP_PREFIX", cfg.Backup.Prefix)
	cfg.Backup.AccessKeyID = getEnv("BACKUP_ACCESS_KEY_ID", cfg.Backup.AccessKeyID)
	cfg.Backup.SecretAccessKey = getEnv("BACKUP_SECRET_ACCESS_KEY", cfg.Backup.SecretAccessKey)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ModelPath returns the predictor bundle location inside DataDir.
func (c *Config) ModelPath() string {
	return c.resolve(c.ModelFile)
}

// JournalPath returns the journal database location inside DataDir.
func (c *Config) JournalPath() string {
	return c.resolve(c.JournalFile)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
