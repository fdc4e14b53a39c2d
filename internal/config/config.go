// Package config loads clinicore settings from an optional TOML file and
// CLINICORE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CLINICORE_STORAGE_DRIVER.
const EnvPrefix = "CLINICORE"

// Config holds all application configuration. One value is built at startup
// and passed to the components that need it.
type Config struct {
	App     AppConfig
	Log     LogConfig
	Storage StorageConfig
	Blob    BlobConfig
	Sync    SyncConfig
	Audit   AuditConfig
	Sales   SalesConfig
	HTTP    HTTPConfig
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Driver        string // memory, sqlite, postgres, redis, badger, blob
	SQLitePath    string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BadgerDir     string
	DatasetKey    string
}

// BlobConfig configures the object store used for snapshot documents and
// audit archives.
type BlobConfig struct {
	Driver      string // fs, s3, memory
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	S3AccessKey string
	S3SecretKey string
}

// SyncConfig configures the cloud sync engine.
type SyncConfig struct {
	Enabled        bool
	BaseURL        string
	Token          string
	OrganizationID string
	Interval       time.Duration
	MaxRetries     int
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
	RatePerSecond  float64
	Entities       []string
}

// AuditConfig configures login lockout.
type AuditConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// SalesConfig configures the sale engine.
type SalesConfig struct {
	StockPolicy string // clamp or strict
}

// HTTPConfig configures the operations endpoint of `clinicore serve`.
type HTTPConfig struct {
	Addr string
}

// Load reads configuration. Priority (highest first): environment variables
// with the CLINICORE_ prefix, the TOML file, built-in defaults. An empty path
// searches for clinicore.toml in the working directory and /etc/clinicore; a
// missing file is not an error unless path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("clinicore")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/clinicore")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := build(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return build(v)
}

func build(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			TimeFormat: v.GetString("log.time_format"),
		},
		Storage: StorageConfig{
			Driver:        v.GetString("storage.driver"),
			SQLitePath:    v.GetString("storage.sqlite_path"),
			PostgresDSN:   v.GetString("storage.postgres_dsn"),
			RedisAddr:     v.GetString("storage.redis_addr"),
			RedisPassword: v.GetString("storage.redis_password"),
			RedisDB:       v.GetInt("storage.redis_db"),
			BadgerDir:     v.GetString("storage.badger_dir"),
			DatasetKey:    v.GetString("storage.dataset_key"),
		},
		Blob: BlobConfig{
			Driver:      v.GetString("blob.driver"),
			FSRoot:      v.GetString("blob.fs_root"),
			S3Bucket:    v.GetString("blob.s3_bucket"),
			S3Region:    v.GetString("blob.s3_region"),
			S3Endpoint:  v.GetString("blob.s3_endpoint"),
			S3PathStyle: v.GetBool("blob.s3_path_style"),
			S3AccessKey: v.GetString("blob.s3_access_key"),
			S3SecretKey: v.GetString("blob.s3_secret_key"),
		},
		Sync: SyncConfig{
			Enabled:        v.GetBool("sync.enabled"),
			BaseURL:        v.GetString("sync.base_url"),
			Token:          v.GetString("sync.token"),
			OrganizationID: v.GetString("sync.organization_id"),
			Interval:       v.GetDuration("sync.interval"),
			MaxRetries:     v.GetInt("sync.max_retries"),
			ProbeTimeout:   v.GetDuration("sync.probe_timeout"),
			RequestTimeout: v.GetDuration("sync.request_timeout"),
			RatePerSecond:  v.GetFloat64("sync.rate_per_second"),
			Entities:       v.GetStringSlice("sync.entities"),
		},
		Audit: AuditConfig{
			LockoutThreshold: v.GetInt("audit.lockout_threshold"),
			LockoutDuration:  v.GetDuration("audit.lockout_duration"),
		},
		Sales: SalesConfig{
			StockPolicy: v.GetString("sales.stock_policy"),
		},
		HTTP: HTTPConfig{
			Addr: v.GetString("http.addr"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "clinicore")
	v.SetDefault("app.env", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.time_format", "2006-01-02T15:04:05.000Z07:00")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "clinicore.db")
	v.SetDefault("storage.postgres_dsn", "postgres://localhost/clinicore?sslmode=disable")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.badger_dir", "clinicore-badger")
	v.SetDefault("storage.dataset_key", "clinicore:dataset")

	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs_root", "./blobdata")
	v.SetDefault("blob.s3_region", "us-east-1")

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.probe_timeout", 5*time.Second)
	v.SetDefault("sync.request_timeout", 30*time.Second)
	v.SetDefault("sync.rate_per_second", 10.0)
	v.SetDefault("sync.entities", []string{"patient", "encounter", "prescription", "sale", "product"})

	v.SetDefault("audit.lockout_threshold", 5)
	v.SetDefault("audit.lockout_duration", 15*time.Minute)

	v.SetDefault("sales.stock_policy", "clamp")

	v.SetDefault("http.addr", ":9090")
}

// validate performs validation on the configuration.
func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres", "redis", "badger", "blob":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	switch c.Sales.StockPolicy {
	case "clamp", "strict":
	default:
		return fmt.Errorf("sales.stock_policy must be clamp or strict, got %q", c.Sales.StockPolicy)
	}
	if c.Storage.DatasetKey == "" {
		return errors.New("storage.dataset_key must not be empty")
	}
	if c.Audit.LockoutThreshold <= 0 {
		return errors.New("audit.lockout_threshold must be positive")
	}
	if c.Audit.LockoutDuration <= 0 {
		return errors.New("audit.lockout_duration must be positive")
	}
	if c.Sync.Enabled {
		if c.Sync.BaseURL == "" {
			return errors.New("sync.base_url is required when sync is enabled")
		}
		if c.Sync.Interval <= 0 {
			return errors.New("sync.interval must be positive")
		}
	}
	if c.Sync.MaxRetries <= 0 {
		return errors.New("sync.max_retries must be positive")
	}
	if c.App.Env == "production" && c.Sync.Enabled && c.Sync.Token == "" {
		return errors.New("sync.token is required in production")
	}
	return nil
}
