package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "YANIT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "YANIT_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "server.admin_token", typ: kString, env: "YANIT_ADMIN_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "tenant.name", typ: kString, env: "YANIT_TENANT",
		apply:   func(cfg *Config, v any) { cfg.Tenant.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Tenant.Name },
	},
	{
		key: "tenant.catalog_path", typ: kString, env: "YANIT_CATALOG_PATH",
		apply:   func(cfg *Config, v any) { cfg.Tenant.CatalogPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Tenant.CatalogPath },
	},
	{
		key: "tenant.catalog_dsn", typ: kString, env: "YANIT_CATALOG_DSN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Tenant.CatalogDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Tenant.CatalogDSN },
	},
	{
		key: "pipeline.tau_high", typ: kFloat, env: "YANIT_TAU_HIGH",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TauHigh = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.TauHigh },
	},
	{
		key: "pipeline.tau_low", typ: kFloat, env: "YANIT_TAU_LOW",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TauLow = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.TauLow },
	},
	{
		key: "pipeline.top_k", typ: kInt, env: "YANIT_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.TopK },
	},
	{
		key: "budget.daily_query_cap", typ: kInt, env: "YANIT_DAILY_QUERY_CAP",
		apply:   func(cfg *Config, v any) { cfg.Budget.DailyQueryCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Budget.DailyQueryCap },
	},
	{
		key: "budget.daily_budget", typ: kFloat, env: "YANIT_DAILY_BUDGET",
		apply:   func(cfg *Config, v any) { cfg.Budget.DailyBudget = v.(float64) },
		extract: func(cfg Config) any { return cfg.Budget.DailyBudget },
	},
	{
		key: "budget.cost_per_1k", typ: kFloat, env: "YANIT_COST_PER_1K",
		apply:   func(cfg *Config, v any) { cfg.Budget.CostPer1K = v.(float64) },
		extract: func(cfg Config) any { return cfg.Budget.CostPer1K },
	},
	{
		key: "cache.business_info_ttl", typ: kDuration, env: "YANIT_CACHE_BUSINESS_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.BusinessInfoTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.BusinessInfoTTL },
	},
	{
		key: "cache.product_ttl", typ: kDuration, env: "YANIT_CACHE_PRODUCT_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.ProductTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.ProductTTL },
	},
	{
		key: "cache.social_ttl", typ: kDuration, env: "YANIT_CACHE_SOCIAL_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.SocialTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.SocialTTL },
	},
	{
		key: "model.base_url", typ: kString, env: "YANIT_MODEL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Model.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.BaseURL },
	},
	{
		key: "model.api_key", typ: kString, env: "YANIT_OPENROUTER_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Model.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.APIKey },
	},
	{
		key: "model.name", typ: kString, env: "YANIT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Model.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.Name },
	},
	{
		key: "model.timeout", typ: kDuration, env: "YANIT_MODEL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Model.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Model.Timeout },
	},
	{
		key: "model.failure_threshold", typ: kInt, env: "YANIT_BREAKER_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Model.FailureThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Model.FailureThreshold },
	},
	{
		key: "model.cooldown", typ: kDuration, env: "YANIT_BREAKER_COOLDOWN",
		apply:   func(cfg *Config, v any) { cfg.Model.Cooldown = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Model.Cooldown },
	},
	{
		key: "embedding.enabled", typ: kBool, env: "YANIT_EMBEDDINGS",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Embedding.Enabled },
	},
	{
		key: "embedding.base_url", typ: kString, env: "YANIT_EMBED_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.BaseURL },
	},
	{
		key: "embedding.model", typ: kString, env: "YANIT_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Model },
	},
	{
		key: "session.driver", typ: kString, env: "YANIT_SESSION_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Session.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.Driver },
	},
	{
		key: "session.redis_addr", typ: kString, env: "YANIT_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Session.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.RedisAddr },
	},
	{
		key: "session.idle_ttl", typ: kDuration, env: "YANIT_SESSION_IDLE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.IdleTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.IdleTTL },
	},
	{
		key: "kafka.brokers", typ: kList, env: "YANIT_KAFKA_BROKERS",
		apply:   func(cfg *Config, v any) { cfg.Kafka.Brokers = v.([]string) },
		extract: func(cfg Config) any { return cfg.Kafka.Brokers },
	},
	{
		key: "kafka.topic", typ: kString, env: "YANIT_KAFKA_TOPIC",
		apply:   func(cfg *Config, v any) { cfg.Kafka.Topic = v.(string) },
		extract: func(cfg Config) any { return cfg.Kafka.Topic },
	},
	{
		key: "storage.data_dir", typ: kString, env: "YANIT_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "YANIT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyEnvOverrides(cfg *Config) error {
	for _, s := range specs {
		raw, ok := os.LookupEnv(s.env)
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.env, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	case kList:
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return raw, nil
	}
}

// KeyInfo is one configuration key and its effective value, secrets masked.
type KeyInfo struct {
	Key   string
	Env   string
	Value string
}

// ShowAll lists every key with its effective value for the status output.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		val := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret && val != "" {
			val = "********"
		}
		out = append(out, KeyInfo{Key: s.key, Env: s.env, Value: val})
	}
	return out
}
