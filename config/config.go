// Package config loads rate limiter configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ratelimiter "github.com/jassus213/go-quota-limiter"
	"gopkg.in/yaml.v3"
)

// File is the complete configuration file.
type File struct {
	RateLimiting   ratelimiter.Options         `yaml:"rate_limiting"`
	ClientPolicies []*ratelimiter.ClientPolicy `yaml:"client_policies"`
	IPPolicies     ratelimiter.IPPolicies      `yaml:"ip_policies"`
	Redis          RedisConfig                 `yaml:"redis"`
	Logging        LoggingConfig               `yaml:"logging"`
	Server         ServerConfig                `yaml:"server"`
}

// RedisConfig selects the shared Redis backend. An empty Address keeps
// counters and policies in memory.
type RedisConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig configures the zap logger of the server.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig configures the example server.
type ServerConfig struct {
	Address     string `yaml:"address"`
	MetricsPath string `yaml:"metrics_path"`
	// Limiter is "client" or "ip".
	Limiter string `yaml:"limiter"`
}

// Default returns a File with every default applied and no rules.
func Default() *File {
	return &File{
		RateLimiting: ratelimiter.DefaultOptions(),
		Redis: RedisConfig{
			KeyPrefix: "ratelimit:",
			Timeout:   time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Server: ServerConfig{
			Address:     ":8080",
			MetricsPath: "/metrics",
			Limiter:     "client",
		},
	}
}

// Load loads configuration from file and environment variables.
func Load(path string) (*File, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(cfg)
	cfg.RateLimiting.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML data on top of the defaults without reading the
// environment.
func Parse(data []byte) (*File, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	cfg.RateLimiting.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the rate limiting options, every policy and the server
// settings.
func (f *File) Validate() error {
	if err := f.RateLimiting.Validate(); err != nil {
		return err
	}
	regex := f.RateLimiting.EnableRegexRuleMatching
	for i, p := range f.ClientPolicies {
		if p == nil || p.ClientID == "" {
			return &ratelimiter.ConfigurationError{Field: fmt.Sprintf("client_policies[%d].client_id", i), Err: fmt.Errorf("required")}
		}
		if err := ratelimiter.ValidateRules(fmt.Sprintf("client_policies[%d].rules", i), p.Rules, regex); err != nil {
			return err
		}
	}
	for i, p := range f.IPPolicies.IPRules {
		field := fmt.Sprintf("ip_policies.ip_rules[%d]", i)
		if p == nil {
			return &ratelimiter.ConfigurationError{Field: field, Err: fmt.Errorf("nil policy")}
		}
		if _, err := ratelimiter.ParseIPRange(p.IP); err != nil {
			return &ratelimiter.ConfigurationError{Field: field + ".ip", Err: err}
		}
		if err := ratelimiter.ValidateRules(field+".rules", p.Rules, regex); err != nil {
			return err
		}
	}
	switch f.Server.Limiter {
	case "client", "ip":
	default:
		return &ratelimiter.ConfigurationError{Field: "server.limiter", Err: fmt.Errorf("must be client or ip, got %q", f.Server.Limiter)}
	}
	if f.Redis.Timeout < 0 {
		return &ratelimiter.ConfigurationError{Field: "redis.timeout", Err: fmt.Errorf("negative timeout")}
	}
	return nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *File, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment applies RATELIMIT_* overrides.
func loadFromEnvironment(cfg *File) {
	if addr := os.Getenv("RATELIMIT_REDIS_ADDRESS"); addr != "" {
		cfg.Redis.Address = addr
	}
	if pw := os.Getenv("RATELIMIT_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if db := os.Getenv("RATELIMIT_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}
	if prefix := os.Getenv("RATELIMIT_REDIS_KEY_PREFIX"); prefix != "" {
		cfg.Redis.KeyPrefix = prefix
	}
	if timeout := os.Getenv("RATELIMIT_REDIS_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Redis.Timeout = d
		}
	}

	if level := os.Getenv("RATELIMIT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if addr := os.Getenv("RATELIMIT_SERVER_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
	if limiter := os.Getenv("RATELIMIT_LIMITER"); limiter != "" {
		cfg.Server.Limiter = strings.ToLower(limiter)
	}

	if code := os.Getenv("RATELIMIT_HTTP_STATUS_CODE"); code != "" {
		if n, err := strconv.Atoi(code); err == nil {
			cfg.RateLimiting.HTTPStatusCode = n
		}
	}
	if v := os.Getenv("RATELIMIT_ENABLE_ENDPOINT_RATE_LIMITING"); v != "" {
		cfg.RateLimiting.EnableEndpointRateLimiting = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("RATELIMIT_STACK_BLOCKED_REQUESTS"); v != "" {
		cfg.RateLimiting.StackBlockedRequests = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("RATELIMIT_DISABLE_HEADERS"); v != "" {
		cfg.RateLimiting.DisableRateLimitHeaders = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("RATELIMIT_CLIENT_WHITELIST"); v != "" {
		cfg.RateLimiting.ClientWhitelist = splitList(v)
	}
	if v := os.Getenv("RATELIMIT_IP_WHITELIST"); v != "" {
		cfg.RateLimiting.IPWhitelist = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
