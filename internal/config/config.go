package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	JWT       JWTConfig       `json:"jwt"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	TokenAuth TokenAuthConfig `json:"token_auth"`
	Usage     UsageConfig     `json:"usage"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type JWTConfig struct {
	Secret      string `json:"secret"`
	ExpiryHours int    `json:"expiry_hours"`
}

// RateLimitConfig selects the counter backend ("postgres" or "redis"), the
// result-cache TTL, the posture when the counter store is unreachable
// ("open" allows the request, "closed" rejects it), and the ordered rule
// list. A matching-anything default rule is appended if the file does not
// declare one.
type RateLimitConfig struct {
	Store           string     `json:"store"`
	CacheTTLSeconds int        `json:"cache_ttl_seconds"`
	FailurePolicy   string     `json:"failure_policy"`
	Rules           []RuleSpec `json:"rules"`
}

type RuleSpec struct {
	Endpoint           string `json:"endpoint,omitempty"`
	Method             string `json:"method,omitempty"`
	Limit              int    `json:"limit"`
	WindowSeconds      int    `json:"window_seconds"`
	BlockForSeconds    int    `json:"block_for_seconds,omitempty"`
	TokenLimit         int    `json:"token_limit,omitempty"`
	TokenWindowSeconds int    `json:"token_window_seconds,omitempty"`
}

type TokenAuthConfig struct {
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

type UsageConfig struct {
	BufferSize           int `json:"buffer_size"`
	BatchSize            int `json:"batch_size"`
	FlushIntervalSeconds int `json:"flush_interval_seconds"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Secrets and connection details come from the environment when set, so the
// config file can be committed without them.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.JWT.ExpiryHours <= 0 {
		c.JWT.ExpiryHours = 24
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "postgres"
	}
	if c.RateLimit.CacheTTLSeconds <= 0 {
		c.RateLimit.CacheTTLSeconds = 5
	}
	if c.RateLimit.FailurePolicy == "" {
		c.RateLimit.FailurePolicy = "open"
	}
	if c.TokenAuth.CacheTTLSeconds <= 0 {
		c.TokenAuth.CacheTTLSeconds = 60
	}
	if c.Usage.BufferSize <= 0 {
		c.Usage.BufferSize = 1000
	}
	if c.Usage.BatchSize <= 0 {
		c.Usage.BatchSize = 100
	}
	if c.Usage.FlushIntervalSeconds <= 0 {
		c.Usage.FlushIntervalSeconds = 5
	}

	// A default rule (no endpoint/method constraint) must always exist.
	if !hasDefaultRule(c.RateLimit.Rules) {
		c.RateLimit.Rules = append(c.RateLimit.Rules, RuleSpec{
			Limit:         60,
			WindowSeconds: 60,
		})
	}
}

func (c *Config) Validate() error {
	if c.RateLimit.Store != "postgres" && c.RateLimit.Store != "redis" {
		return fmt.Errorf("rate_limit.store must be \"postgres\" or \"redis\", got %q", c.RateLimit.Store)
	}
	if c.RateLimit.FailurePolicy != "open" && c.RateLimit.FailurePolicy != "closed" {
		return fmt.Errorf("rate_limit.failure_policy must be \"open\" or \"closed\", got %q", c.RateLimit.FailurePolicy)
	}
	for i, rule := range c.RateLimit.Rules {
		if rule.Limit <= 0 {
			return fmt.Errorf("rate_limit.rules[%d]: limit must be positive", i)
		}
		if rule.WindowSeconds <= 0 {
			return fmt.Errorf("rate_limit.rules[%d]: window_seconds must be positive", i)
		}
		if rule.TokenLimit > 0 && rule.TokenWindowSeconds <= 0 {
			return fmt.Errorf("rate_limit.rules[%d]: token_limit requires token_window_seconds", i)
		}
	}
	return nil
}

func (r *RedisConfig) GetRedisAddr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return host + ":" + port
}

func hasDefaultRule(rules []RuleSpec) bool {
	for _, rule := range rules {
		if rule.Endpoint == "" && rule.Method == "" {
			return true
		}
	}
	return false
}
