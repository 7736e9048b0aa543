package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/streamflix/partwise/internal/core/plan"
)

// Config represents the top-level application config plus the resolved
// partitioning scheme (buckets and index templates).
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Partitioning PartitioningConfig `koanf:"partitioning"`
	Provisioning ProvisioningConfig `koanf:"provisioning"`
	Aggregate    AggregateConfig    `koanf:"aggregate"`

	// Scheme is populated by Load after validating the partitioning section.
	Scheme SchemeConfig `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	Mode          string `koanf:"mode"` // debug | release
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	Schema       string `koanf:"schema"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type PartitioningConfig struct {
	BaseTable        string   `koanf:"base_table"`
	HashColumn       string   `koanf:"hash_column"`
	Granularity      string   `koanf:"granularity"`
	Modulus          int      `koanf:"modulus"`
	Buckets          []string `koanf:"buckets"` // last one is the designated default
	IndexTemplateDir string   `koanf:"index_template_dir"`
	OperationTimeout string   `koanf:"operation_timeout"`
}

type ProvisioningConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Interval      string `koanf:"interval"`
	HorizonMonths int    `koanf:"horizon_months"`
	MaxParallel   int    `koanf:"max_parallel"`
}

type AggregateConfig struct {
	Enabled         bool   `koanf:"enabled"`
	RefreshInterval string `koanf:"refresh_interval"`
	WindowDays      int    `koanf:"window_days"`
}

// SchemeConfig is the validated, ready-to-use partitioning scheme.
type SchemeConfig struct {
	Granularity      plan.Granularity
	Buckets          []plan.Bucket
	IndexTemplates   []plan.IndexTemplate
	OperationTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Partitioning.BaseTable) == "" {
		return fmt.Errorf("partitioning.base_table is required")
	}
	if strings.TrimSpace(c.Partitioning.HashColumn) == "" {
		return fmt.Errorf("partitioning.hash_column is required")
	}
	if c.Partitioning.Modulus <= 0 {
		return fmt.Errorf("partitioning.modulus must be > 0")
	}
	if len(c.Partitioning.Buckets) == 0 {
		return fmt.Errorf("partitioning.buckets is required")
	}
	if c.Partitioning.OperationTimeout != "" {
		d, err := time.ParseDuration(c.Partitioning.OperationTimeout)
		if err != nil {
			return fmt.Errorf("invalid partitioning.operation_timeout %q: %w", c.Partitioning.OperationTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("partitioning.operation_timeout must be >= 0")
		}
	}

	if c.Provisioning.Enabled {
		interval, err := time.ParseDuration(c.Provisioning.Interval)
		if err != nil {
			return fmt.Errorf("invalid provisioning.interval %q: %w", c.Provisioning.Interval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("provisioning.interval must be > 0")
		}
		if c.Provisioning.HorizonMonths <= 0 {
			return fmt.Errorf("provisioning.horizon_months must be > 0")
		}
		if c.Provisioning.MaxParallel <= 0 {
			return fmt.Errorf("provisioning.max_parallel must be > 0")
		}
	}

	if c.Aggregate.Enabled {
		interval, err := time.ParseDuration(c.Aggregate.RefreshInterval)
		if err != nil {
			return fmt.Errorf("invalid aggregate.refresh_interval %q: %w", c.Aggregate.RefreshInterval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("aggregate.refresh_interval must be > 0")
		}
		if c.Aggregate.WindowDays < 0 {
			return fmt.Errorf("aggregate.window_days must be >= 0")
		}
	}

	return nil
}

// resolveScheme turns the raw partitioning section into validated plan types.
// Bucket and template problems surface here, before any storage call.
func (c *Config) resolveScheme() error {
	granularity, err := plan.ParseGranularity(c.Partitioning.Granularity)
	if err != nil {
		return err
	}

	buckets := make([]plan.Bucket, len(c.Partitioning.Buckets))
	for i, name := range c.Partitioning.Buckets {
		buckets[i] = plan.Bucket{Name: name, Default: i == len(c.Partitioning.Buckets)-1}
	}
	if _, err := plan.AssignBuckets(c.Partitioning.Modulus, buckets); err != nil {
		return err
	}

	templates, err := plan.LoadIndexTemplates(c.Partitioning.IndexTemplateDir)
	if err != nil {
		return err
	}

	var timeout time.Duration
	if c.Partitioning.OperationTimeout != "" {
		timeout, _ = time.ParseDuration(c.Partitioning.OperationTimeout) // validated above
	}

	c.Scheme = SchemeConfig{
		Granularity:      granularity,
		Buckets:          buckets,
		IndexTemplates:   templates,
		OperationTimeout: timeout,
	}
	return nil
}

// Load parses config from file + env, validates it, then resolves the
// partitioning scheme (buckets, index templates).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                     8080,
		"server.host":                     "0.0.0.0",
		"server.mode":                     "release",
		"server.max_body_size_mb":         1,
		"database.dsn":                    "",
		"database.schema":                 "public",
		"database.max_open_conns":         25,
		"database.max_idle_conns":         25,
		"database.auto_migrate":           true,
		"partitioning.base_table":         "viewing_events",
		"partitioning.hash_column":        "country_code",
		"partitioning.granularity":        "month",
		"partitioning.modulus":            5,
		"partitioning.buckets":            []string{"us", "uk", "ca", "au", "other"},
		"partitioning.index_template_dir": "./config/indexes",
		"partitioning.operation_timeout":  "30s",
		"provisioning.enabled":            true,
		"provisioning.interval":           "24h",
		"provisioning.horizon_months":     3,
		"provisioning.max_parallel":       4,
		"aggregate.enabled":               true,
		"aggregate.refresh_interval":      "1h",
		"aggregate.window_days":           0,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("PARTWISE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PARTWISE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolveScheme(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
