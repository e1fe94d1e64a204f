// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob the pipeline reads, loaded via Viper.
type Config struct {
	Workers    int           `mapstructure:"workers"`
	QueueDepth int           `mapstructure:"queue_depth"`
	KeepCache  bool          `mapstructure:"keep_cache"`
	Logging    LoggingConfig `mapstructure:"logging"`
	Cache      CacheConfig   `mapstructure:"cache"`
	Logs       LogsConfig    `mapstructure:"logs"`
	HTTP       HTTPConfig    `mapstructure:"http"`
	Catalog    CatalogConfig `mapstructure:"catalog"`
	Compare    CompareConfig `mapstructure:"compare"`
	Rewrite    RewriteConfig `mapstructure:"rewrite"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig locates the optional Prometheus scrape endpoint. An
// empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CacheConfig sets the two content-cache roots.
type CacheConfig struct {
	TextDir  string `mapstructure:"text_dir"`
	ImageDir string `mapstructure:"image_dir"`
}

// LogsConfig locates the ledger directory.
type LogsConfig struct {
	Dir string `mapstructure:"dir"`
}

// HTTPConfig configures the fetching collector.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CatalogConfig locates the catalog endpoints.
type CatalogConfig struct {
	IndexURL           string `mapstructure:"index_url"`
	ArticleURLTemplate string `mapstructure:"article_url_template"`
	MaxArticles        int    `mapstructure:"max_articles"`
}

// CompareConfig governs the external comparison tool.
type CompareConfig struct {
	Tool               string `mapstructure:"tool"`
	Metric             string `mapstructure:"metric"`
	SoftTimeoutSeconds int    `mapstructure:"soft_timeout_seconds"`
	HardTimeoutSeconds int    `mapstructure:"hard_timeout_seconds"`
}

// RewriteConfig parameterizes the served-to-canonical URL rewrite.
type RewriteConfig struct {
	LegacyPrefix    string `mapstructure:"legacy_prefix"`
	CanonicalPrefix string `mapstructure:"canonical_prefix"`
	StorageOrigin   string `mapstructure:"storage_origin"`
}

// Load builds a Config from defaults, an optional file, and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMGCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("queue_depth", 10)
	v.SetDefault("keep_cache", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("cache.text_dir", "cache")
	v.SetDefault("cache.image_dir", "image-cache")
	v.SetDefault("logs.dir", "logs")
	v.SetDefault("http.user_agent", "imgcheck/0.1")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("catalog.index_url", "https://api.example.org/articles/index.csv")
	v.SetDefault("catalog.article_url_template", "https://api.example.org/articles/%s")
	v.SetDefault("catalog.max_articles", 0)
	v.SetDefault("compare.tool", "compare")
	v.SetDefault("compare.metric", "PAE")
	v.SetDefault("compare.soft_timeout_seconds", 20)
	v.SetDefault("compare.hard_timeout_seconds", 40)
	v.SetDefault("rewrite.legacy_prefix", "lax")
	v.SetDefault("rewrite.canonical_prefix", "articles")
	v.SetDefault("rewrite.storage_origin", "https://publishing-cdn.example.org")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Compare.SoftTimeoutSeconds <= 0 {
		return fmt.Errorf("compare.soft_timeout_seconds must be > 0")
	}
	if c.Compare.HardTimeoutSeconds <= c.Compare.SoftTimeoutSeconds {
		return fmt.Errorf("compare.hard_timeout_seconds must exceed the soft timeout")
	}
	if c.Catalog.IndexURL == "" {
		return fmt.Errorf("catalog.index_url must be set")
	}
	if !strings.Contains(c.Catalog.ArticleURLTemplate, "%s") {
		return fmt.Errorf("catalog.article_url_template must contain %%s")
	}
	if c.Rewrite.StorageOrigin == "" {
		return fmt.Errorf("rewrite.storage_origin must be set")
	}
	return nil
}

// HTTPTimeout converts the fetch timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SoftTimeout converts the comparison soft deadline into a duration.
func (c Config) SoftTimeout() time.Duration {
	return time.Duration(c.Compare.SoftTimeoutSeconds) * time.Second
}

// HardTimeout converts the comparison hard deadline into a duration.
func (c Config) HardTimeout() time.Duration {
	return time.Duration(c.Compare.HardTimeoutSeconds) * time.Second
}
