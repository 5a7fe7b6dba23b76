// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/paperlab/arxiv-harvester/internal/arxiv"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the metrics/health HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CrawlConfig governs the search enumeration pipeline.
type CrawlConfig struct {
	Concurrency int      `mapstructure:"concurrency"`
	PageSize    int      `mapstructure:"page_size"`
	WindowCap   int      `mapstructure:"window_cap"`
	MaxRetries  int      `mapstructure:"max_retries"`
	Fields      []string `mapstructure:"fields"`
	DedupCodes  bool     `mapstructure:"dedup_codes"`
}

// HTTPConfig configures outbound fetch behavior.
type HTTPConfig struct {
	UserAgent          string `mapstructure:"user_agent"`
	SearchTimeoutSec   int    `mapstructure:"search_timeout_seconds"`
	ArtifactTimeoutSec int    `mapstructure:"artifact_timeout_seconds"`
}

// ProxyConfig configures the proxy pool and rate buckets.
type ProxyConfig struct {
	PoolFile       string `mapstructure:"pool_file"`
	Buckets        int    `mapstructure:"buckets"`
	RateIntervalMs int    `mapstructure:"rate_interval_ms"`
}

// OutputConfig sets destinations for ledgers, artifacts and log files.
type OutputConfig struct {
	ResultDir string `mapstructure:"result_dir"`
	PDFDir    string `mapstructure:"pdf_dir"`
	LogDir    string `mapstructure:"log_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.concurrency", 10)
	v.SetDefault("crawl.page_size", 200)
	v.SetDefault("crawl.window_cap", 10000)
	v.SetDefault("crawl.max_retries", 0)
	v.SetDefault("crawl.fields", arxiv.DefaultFields)
	v.SetDefault("crawl.dedup_codes", false)
	v.SetDefault("http.user_agent", "paperlab-harvester/1.0")
	v.SetDefault("http.search_timeout_seconds", 60)
	v.SetDefault("http.artifact_timeout_seconds", 90)
	v.SetDefault("proxy.pool_file", "")
	v.SetDefault("proxy.buckets", 25)
	v.SetDefault("proxy.rate_interval_ms", 1000)
	v.SetDefault("output.result_dir", "result")
	v.SetDefault("output.pdf_dir", "result/pdf")
	v.SetDefault("output.log_dir", "logs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.PageSize <= 0 {
		return fmt.Errorf("crawl.page_size must be > 0")
	}
	if c.Crawl.WindowCap < c.Crawl.PageSize {
		return fmt.Errorf("crawl.window_cap must be >= crawl.page_size")
	}
	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("crawl.max_retries must be >= 0")
	}
	if len(c.Crawl.Fields) == 0 {
		return fmt.Errorf("crawl.fields must not be empty")
	}
	if c.HTTP.SearchTimeoutSec <= 0 {
		return fmt.Errorf("http.search_timeout_seconds must be > 0")
	}
	if c.HTTP.ArtifactTimeoutSec <= 0 {
		return fmt.Errorf("http.artifact_timeout_seconds must be > 0")
	}
	if c.Proxy.Buckets <= 0 {
		return fmt.Errorf("proxy.buckets must be > 0")
	}
	if c.Proxy.RateIntervalMs <= 0 {
		return fmt.Errorf("proxy.rate_interval_ms must be > 0")
	}
	if c.Output.ResultDir == "" {
		return fmt.Errorf("output.result_dir must be set")
	}
	if c.Output.PDFDir == "" {
		return fmt.Errorf("output.pdf_dir must be set")
	}
	return nil
}

// SearchTimeout converts the search timeout config into a duration.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.HTTP.SearchTimeoutSec) * time.Second
}

// ArtifactTimeout converts the artifact timeout config into a duration.
func (c Config) ArtifactTimeout() time.Duration {
	return time.Duration(c.HTTP.ArtifactTimeoutSec) * time.Second
}

// RateInterval converts the bucket refill config into a duration.
func (c Config) RateInterval() time.Duration {
	return time.Duration(c.Proxy.RateIntervalMs) * time.Millisecond
}
