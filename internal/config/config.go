package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendClickHouse    = "clickhouse"
	BackendMemory        = "memory"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPPort     string `mapstructure:"http_port"`
	AppMode      string `mapstructure:"app_mode"`
	LogLevel     string `mapstructure:"log_level"`
	FiberPrefork bool   `mapstructure:"fiber_prefork"`

	StoreBackend      string        `mapstructure:"store_backend"`
	DefaultIndex      string        `mapstructure:"default_index"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
	FanoutConcurrency int           `mapstructure:"fanout_concurrency"`
	ScanPageSize      int           `mapstructure:"scan_page_size"`
	ScanKeepAlive     time.Duration `mapstructure:"scan_keep_alive"`

	ESAddresses []string `mapstructure:"es_addresses"`
	ESUsername  string   `mapstructure:"es_username"`
	ESPassword  string   `mapstructure:"es_password"`

	ClickHouseAddr            string        `mapstructure:"clickhouse_addr"`
	ClickHouseDatabase        string        `mapstructure:"clickhouse_database"`
	ClickHouseUsername        string        `mapstructure:"clickhouse_username"`
	ClickHousePassword        string        `mapstructure:"clickhouse_password"`
	ClickHouseMaxConns        int           `mapstructure:"clickhouse_max_conns"`
	ClickHouseConnMaxLifetime time.Duration `mapstructure:"clickhouse_conn_max_lifetime"`

	MemoryFixture string `mapstructure:"memory_fixture"`
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("http_port", ":8080")
	v.SetDefault("app_mode", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("fiber_prefork", false)
	v.SetDefault("store_backend", BackendElasticsearch)
	v.SetDefault("default_index", "monocle")
	v.SetDefault("query_timeout", 30*time.Second)
	v.SetDefault("fanout_concurrency", 4)
	v.SetDefault("scan_page_size", 1000)
	v.SetDefault("scan_keep_alive", time.Minute)
	v.SetDefault("es_addresses", "http://localhost:9200")
	v.SetDefault("es_username", "")
	v.SetDefault("es_password", "")
	v.SetDefault("clickhouse_addr", "localhost:9000")
	v.SetDefault("clickhouse_database", "default")
	v.SetDefault("clickhouse_username", "default")
	v.SetDefault("clickhouse_password", "")
	v.SetDefault("clickhouse_max_conns", 10)
	v.SetDefault("clickhouse_conn_max_lifetime", 30*time.Minute)
	v.SetDefault("memory_fixture", "")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.AppMode = strings.ToLower(cfg.AppMode)
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.ESAddresses = splitAddresses(cfg.ESAddresses)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendElasticsearch:
		if len(c.ESAddresses) == 0 {
			return fmt.Errorf("ES_ADDRESSES is required")
		}
	case BackendClickHouse:
		if c.ClickHouseAddr == "" {
			return fmt.Errorf("CLICKHOUSE_ADDR is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive")
	}
	if c.ScanPageSize <= 0 {
		return fmt.Errorf("SCAN_PAGE_SIZE must be positive")
	}
	if c.DefaultIndex == "" {
		return fmt.Errorf("DEFAULT_INDEX is required")
	}
	return nil
}

// splitAddresses accepts both a list and a single comma separated value.
func splitAddresses(in []string) []string {
	var out []string
	for _, item := range in {
		for _, addr := range strings.Split(item, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}
