// Package config loads the service configuration: compiled defaults, then an
// optional YAML file, then a .env file, then YANIT_* environment variables.
// Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tenant    TenantConfig    `yaml:"tenant"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Budget    BudgetConfig    `yaml:"budget"`
	Cache     CacheConfig     `yaml:"cache"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Session   SessionConfig   `yaml:"session"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	MCPPort    int    `yaml:"mcp_port"`
	AdminToken string `yaml:"admin_token"`
}

// TenantConfig describes the boutique this instance serves.
type TenantConfig struct {
	Name        string `yaml:"name"`
	CatalogPath string `yaml:"catalog_path"`
	CatalogDSN  string `yaml:"catalog_dsn"`

	Phone        string `yaml:"phone"`
	Website      string `yaml:"website"`
	Email        string `yaml:"email"`
	ReturnPolicy string `yaml:"return_policy"`
	ShippingInfo string `yaml:"shipping_info"`
}

type PipelineConfig struct {
	TauHigh float64 `yaml:"tau_high"`
	TauLow  float64 `yaml:"tau_low"`
	TopK    int     `yaml:"top_k"`
}

type BudgetConfig struct {
	DailyQueryCap int     `yaml:"daily_query_cap"`
	DailyBudget   float64 `yaml:"daily_budget"`
	CostPer1K     float64 `yaml:"cost_per_1k"`
}

type CacheConfig struct {
	BusinessInfoTTL time.Duration `yaml:"business_info_ttl"`
	ProductTTL      time.Duration `yaml:"product_ttl"`
	SocialTTL       time.Duration `yaml:"social_ttl"`
	MaxPerTenant    int           `yaml:"max_per_tenant"`
}

type ModelConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Name             string        `yaml:"name"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type SessionConfig struct {
	Driver    string        `yaml:"driver"`
	RedisAddr string        `yaml:"redis_addr"`
	IdleTTL   time.Duration `yaml:"idle_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Tenant: TenantConfig{
			Name: "boutique",
		},
		Pipeline: PipelineConfig{
			TauHigh: 0.80,
			TauLow:  0.50,
			TopK:    5,
		},
		Budget: BudgetConfig{
			DailyQueryCap: 40000,
			DailyBudget:   1.0,
			CostPer1K:     0.002,
		},
		Cache: CacheConfig{
			BusinessInfoTTL: 24 * time.Hour,
			ProductTTL:      10 * time.Minute,
			SocialTTL:       time.Hour,
			MaxPerTenant:    4096,
		},
		Model: ModelConfig{
			BaseURL:          "https://openrouter.ai/api/v1",
			Name:             "google/gemini-2.0-flash-001",
			Timeout:          8 * time.Second,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Enabled: true,
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Session: SessionConfig{
			Driver:  "memory",
			IdleTTL: 30 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "yanit")
	}
	return ".yanit"
}

// Load builds the configuration. path names the YAML file; empty means
// "config.yaml" in the working directory, and a missing file is not an
// error. A .env file in the working directory is folded into the
// environment before YANIT_* overrides apply.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	// Missing .env is the common case, not a failure.
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Pipeline.TauLow <= 0 || c.Pipeline.TauHigh <= c.Pipeline.TauLow || c.Pipeline.TauHigh > 1 {
		return fmt.Errorf("thresholds out of order: tau_low=%v tau_high=%v",
			c.Pipeline.TauLow, c.Pipeline.TauHigh)
	}
	if c.Budget.DailyQueryCap <= 0 || c.Budget.DailyBudget <= 0 {
		return fmt.Errorf("budget limits must be positive")
	}
	switch c.Session.Driver {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session driver redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown session driver %q", c.Session.Driver)
	}
	return nil
}
