package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Calculation CalculationConfig `json:"calculation"`
	Disclosure  DisclosureConfig  `json:"disclosure"`
	Storage     StorageConfig     `json:"storage"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Mode         string        `json:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

// CalculationConfig holds the defaults of every report build
type CalculationConfig struct {
	OutlierThreshold       float64 `json:"outlier_threshold"`
	UncertaintyMethod      string  `json:"uncertainty_method"`
	Iterations             int     `json:"iterations"`
	Workers                int     `json:"workers"`
	Seed                   *uint64 `json:"seed,omitempty"`
	MissingFactorPolicy    string  `json:"missing_factor_policy"`
	ConsistencyPlaceholder float64 `json:"consistency_placeholder"`
	MinPeerSamples         int     `json:"min_peer_samples"`
	// FactorCacheTTL keeps loaded factor tables in memory; zero disables it
	FactorCacheTTL time.Duration `json:"factor_cache_ttl"`
}

// DisclosureConfig holds document defaults and the taxonomy binding
type DisclosureConfig struct {
	IdentifierScheme      string `json:"identifier_scheme"`
	Language              string `json:"language"`
	ThousandsSeparator    string `json:"thousands_separator"`
	ConsolidationApproach string `json:"consolidation_approach"`
	TaxonomyPrefix        string `json:"taxonomy_prefix"`
	TaxonomyNamespace     string `json:"taxonomy_namespace"`
	TaxonomySchemaRef     string `json:"taxonomy_schema_ref"`
	// TaxonomyFile replaces the built-in taxonomy with a JSON definition
	TaxonomyFile string `json:"taxonomy_file"`
}

// StorageConfig locates published artifacts and the AWS services behind them
type StorageConfig struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	ManifestTable   string `json:"manifest_table"`
	TopicARN        string `json:"topic_arn"`
	EmailFrom       string `json:"email_from"`
}

// Enabled reports whether publishing is configured
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// SchedulerConfig controls periodic report generation
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Cron is a standard five-field cron expression
	Cron       string   `json:"cron"`
	Period     string   `json:"period"` // month, quarter or year
	Recipients []string `json:"recipients"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Default returns the configuration used when no file or environment overrides are present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			Mode:         "release",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "carbonscribe_ghg",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    5 * time.Minute,
		},
		Calculation: CalculationConfig{
			UncertaintyMethod:      "analytic",
			Iterations:             1000,
			MissingFactorPolicy:    "abort",
			ConsistencyPlaceholder: 80,
			MinPeerSamples:         3,
			FactorCacheTTL:         10 * time.Minute,
		},
		Disclosure: DisclosureConfig{
			IdentifierScheme: "http://standards.iso.org/iso/17442",
			Language:         "en",
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			Prefix: "disclosures",
		},
		Scheduler: SchedulerConfig{
			Cron:   "0 2 1 * *",
			Period: "month",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a .env file, a JSON file and environment
// variables, in increasing order of precedence. Missing files are skipped.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would otherwise fail deep inside a build
func (c *Config) Validate() error {
	switch strings.ToLower(c.Calculation.UncertaintyMethod) {
	case "", "analytic", "monte_carlo", "montecarlo", "monte-carlo":
	default:
		return fmt.Errorf("invalid uncertainty method %q", c.Calculation.UncertaintyMethod)
	}
	switch strings.ToLower(c.Calculation.MissingFactorPolicy) {
	case "", "abort", "exclude", "default":
	default:
		return fmt.Errorf("invalid missing factor policy %q", c.Calculation.MissingFactorPolicy)
	}
	if c.Calculation.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative")
	}
	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("invalid server mode %q", c.Server.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")
	setString(&config.Server.Mode, "GIN_MODE")

	setString(&config.Database.Host, "DATABASE_HOST")
	setInt(&config.Database.Port, "DATABASE_PORT")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")
	setBool(&config.Database.AutoMigrate, "DATABASE_AUTO_MIGRATE")

	setFloat(&config.Calculation.OutlierThreshold, "GHG_OUTLIER_THRESHOLD")
	setString(&config.Calculation.UncertaintyMethod, "GHG_UNCERTAINTY_METHOD")
	setInt(&config.Calculation.Iterations, "GHG_MONTE_CARLO_ITERATIONS")
	setInt(&config.Calculation.Workers, "GHG_MONTE_CARLO_WORKERS")
	setString(&config.Calculation.MissingFactorPolicy, "GHG_MISSING_FACTOR_POLICY")
	setDuration(&config.Calculation.FactorCacheTTL, "GHG_FACTOR_CACHE_TTL")
	if seed := os.Getenv("GHG_MONTE_CARLO_SEED"); seed != "" {
		if v, err := strconv.ParseUint(seed, 10, 64); err == nil {
			config.Calculation.Seed = &v
		}
	}

	setString(&config.Disclosure.IdentifierScheme, "GHG_IDENTIFIER_SCHEME")
	setString(&config.Disclosure.Language, "GHG_DOCUMENT_LANGUAGE")
	setString(&config.Disclosure.TaxonomyFile, "GHG_TAXONOMY_FILE")

	setString(&config.Storage.Region, "AWS_REGION")
	setString(&config.Storage.Endpoint, "AWS_ENDPOINT_URL")
	setString(&config.Storage.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&config.Storage.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&config.Storage.Bucket, "DISCLOSURE_BUCKET")
	setString(&config.Storage.Prefix, "DISCLOSURE_PREFIX")
	setString(&config.Storage.ManifestTable, "DISCLOSURE_MANIFEST_TABLE")
	setString(&config.Storage.TopicARN, "DISCLOSURE_TOPIC_ARN")
	setString(&config.Storage.EmailFrom, "DISCLOSURE_EMAIL_FROM")

	setBool(&config.Scheduler.Enabled, "SCHEDULER_ENABLED")
	setString(&config.Scheduler.Cron, "SCHEDULER_CRON")
	setString(&config.Scheduler.Period, "SCHEDULER_PERIOD")

	setString(&config.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
