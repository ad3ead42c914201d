// Package config loads daemon and CLI settings from an optional YAML file
// and MORPHEUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/backup"
	"github.com/dupipcom/morpheus-sub002/internal/scheduler"
	"github.com/dupipcom/morpheus-sub002/internal/server"
	"github.com/spf13/viper"
)

const envPrefix = "MORPHEUS"

type Config struct {
	Addr      string         `mapstructure:"addr"`
	DBPath    string         `mapstructure:"db_path"`
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"`
	WS        WSConfig       `mapstructure:"ws"`
	Backfill  BackfillConfig `mapstructure:"backfill"`
	Snapshot  SnapshotConfig `mapstructure:"snapshot"`
}

type WSConfig struct {
	OriginPatterns []string      `mapstructure:"origin_patterns"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
}

type BackfillConfig struct {
	Hour        int           `mapstructure:"hour"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type SnapshotConfig struct {
	S3         S3Config      `mapstructure:"s3"`
	Dir        string        `mapstructure:"dir"`
	Passphrase string        `mapstructure:"passphrase"`
	Retention  time.Duration `mapstructure:"retention"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "morpheus.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("ws.origin_patterns", []string{})
	v.SetDefault("ws.rate_limit", 30)
	v.SetDefault("ws.rate_window", time.Minute)
	v.SetDefault("backfill.hour", 3)
	v.SetDefault("backfill.interval", time.Minute)
	v.SetDefault("backfill.concurrency", 4)
	v.SetDefault("snapshot.s3.endpoint", "")
	v.SetDefault("snapshot.s3.bucket", "")
	v.SetDefault("snapshot.s3.region", "us-east-1")
	v.SetDefault("snapshot.s3.access_key", "")
	v.SetDefault("snapshot.s3.secret_key", "")
	v.SetDefault("snapshot.dir", "")
	v.SetDefault("snapshot.passphrase", "")
	v.SetDefault("snapshot.retention", 30*24*time.Hour)
}

// Load reads path when it is non-empty, then applies environment overrides
// such as MORPHEUS_DB_PATH or MORPHEUS_BACKFILL_HOUR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Backfill.Hour < 0 || c.Backfill.Hour > 23 {
		errs = append(errs, fmt.Errorf("backfill.hour %d out of range 0-23", c.Backfill.Hour))
	}
	if c.Backfill.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("backfill.concurrency must be at least 1"))
	}
	if c.WS.RateLimit < 1 {
		errs = append(errs, fmt.Errorf("ws.rate_limit must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Backup() backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  c.Snapshot.S3.Endpoint,
			Bucket:    c.Snapshot.S3.Bucket,
			Region:    c.Snapshot.S3.Region,
			AccessKey: c.Snapshot.S3.AccessKey,
			SecretKey: c.Snapshot.S3.SecretKey,
		},
		Dir:        c.Snapshot.Dir,
		Passphrase: c.Snapshot.Passphrase,
	}
}

func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		Hour:        c.Backfill.Hour,
		Interval:    c.Backfill.Interval,
		Concurrency: c.Backfill.Concurrency,
	}
}

func (c *Config) Server() server.Config {
	return server.Config{
		OriginPatterns: c.WS.OriginPatterns,
		RateLimit:      c.WS.RateLimit,
		RateWindow:     c.WS.RateWindow,
	}
}
