package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Address            string `yaml:"address"`
		APIKey             string `yaml:"api_key"`
		RatePerMinute      int    `yaml:"rate_per_minute"`
		RateBurst          int    `yaml:"rate_burst"`
		ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
		// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
		LockWaitMillis int    `yaml:"lock_wait_ms"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Calendar struct {
		ClampAvailablePercentage *bool `yaml:"clamp_available_percentage"`
	} `yaml:"calendar"`

	CatalogPath                 string `yaml:"catalog_path"`
	CatalogWatchIntervalSeconds int    `yaml:"catalog_watch_interval_seconds"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/sessionbook.db"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "configs/providers.yaml"
	}
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "data/backups"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ClampAvailable reports whether calendar percentages are floored at zero. Defaults to true.
func (c *Config) ClampAvailable() bool {
	if c.Calendar.ClampAvailablePercentage == nil {
		return true
	}
	return *c.Calendar.ClampAvailablePercentage
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	if c.Redis.LockWaitMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Redis.LockWaitMillis) * time.Millisecond
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) CatalogWatchInterval() time.Duration {
	if c.CatalogWatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CatalogWatchIntervalSeconds) * time.Second
}

// RateLimit returns requests per minute and burst for the API limiter. Zero disables limiting.
func (c *Config) RateLimit() (perMinute, burst int) {
	perMinute = c.HTTP.RatePerMinute
	burst = c.HTTP.RateBurst
	if perMinute > 0 && burst <= 0 {
		burst = perMinute / 6
		if burst < 1 {
			burst = 1
		}
	}
	return perMinute, burst
}

func (c *Config) ReadTimeout() time.Duration {
	if c.HTTP.ReadTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HTTP.ReadTimeoutSeconds) * time.Second
}
