package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/tadash/internal/cache"
	"github.com/newthinker/tadash/internal/core"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Export   ExportConfig   `mapstructure:"export"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Warmup   WarmupConfig   `mapstructure:"warmup"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	APIKey       string        `mapstructure:"api_key"`
	TemplatesDir string        `mapstructure:"templates_dir"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ProviderConfig configures the market data source.
type ProviderConfig struct {
	Name    string        `mapstructure:"name"`
	BaseURL   string        `mapstructure:"base_url"`
	SearchURL string        `mapstructure:"search_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects and configures the fetch cache backend.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // "memory", "redis", "sqlite" or "none"
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig controls archival of CSV exports.
type ExportConfig struct {
	Archive ArchiveConfig `mapstructure:"archive"`
}

type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// WarmupConfig schedules background refreshes of popular series.
type WarmupConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Schedule string   `mapstructure:"schedule"`
	Symbols  []string `mapstructure:"symbols"`
	Period   string   `mapstructure:"period"`
	Interval string   `mapstructure:"interval"`
}

// Load reads configuration from file. An empty path yields the defaults
// with environment overrides applied (TADASH_SERVER_PORT and so on).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("tadash")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key needs a default for AutomaticEnv to see it on Unmarshal
	setDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.templates_dir", d.Server.TemplatesDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.search_url", d.Provider.SearchURL)
	v.SetDefault("provider.timeout", d.Provider.Timeout)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.sqlite.path", d.Cache.SQLite.Path)

	v.SetDefault("export.archive.enabled", d.Export.Archive.Enabled)
	v.SetDefault("export.archive.type", d.Export.Archive.Type)
	v.SetDefault("export.archive.path", d.Export.Archive.Path)
	v.SetDefault("export.archive.s3.bucket", "")
	v.SetDefault("export.archive.s3.endpoint", "")
	v.SetDefault("export.archive.s3.region", "")
	v.SetDefault("export.archive.s3.access_key", "")
	v.SetDefault("export.archive.s3.secret_key", "")
	v.SetDefault("export.archive.s3.prefix", "")

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("warmup.enabled", d.Warmup.Enabled)
	v.SetDefault("warmup.schedule", d.Warmup.Schedule)
	v.SetDefault("warmup.symbols", d.Warmup.Symbols)
	v.SetDefault("warmup.period", d.Warmup.Period)
	v.SetDefault("warmup.interval", d.Warmup.Interval)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Provider: ProviderConfig{
			Name:    "yahoo",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     cache.DefaultTTL,
			Redis:   RedisConfig{Addr: "localhost:6379"},
			SQLite:  SQLiteConfig{Path: "data/cache.db"},
		},
		Export: ExportConfig{
			Archive: ArchiveConfig{
				Type: "localfs",
				Path: "data/archive",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Warmup: WarmupConfig{
			Schedule: "*/30 * * * *",
			Period:   string(core.DefaultPeriod),
			Interval: string(core.DefaultInterval),
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Provider.Timeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("provider timeout cannot be negative, got %s", c.Provider.Timeout))
	}

	switch c.Cache.Backend {
	case "", "none", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("redis addr required when cache backend is redis"))
		}
	case "sqlite":
		if c.Cache.SQLite.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("sqlite path required when cache backend is sqlite"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cache ttl cannot be negative, got %s", c.Cache.TTL))
	}

	if a := c.Export.Archive; a.Enabled {
		switch a.Type {
		case "localfs":
			if a.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required when archive type is localfs"))
			}
		case "s3":
			if a.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("s3 bucket required when archive type is s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown archive type %q", a.Type))
		}
	}

	if w := c.Warmup; w.Enabled {
		if _, err := cron.ParseStandard(w.Schedule); err != nil {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("warmup schedule %q: %w", w.Schedule, err))
		}
		if len(w.Symbols) == 0 {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("warmup enabled without symbols"))
		}
		if _, err := core.NewQuery(w.Symbols[0], w.Period, w.Interval); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("warmup: %w", err))
		}
	}

	return nil
}

// CacheTTL returns the configured TTL, falling back to the default.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL <= 0 {
		return cache.DefaultTTL
	}
	return c.Cache.TTL
}
