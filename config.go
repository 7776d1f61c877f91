package taskauth

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/minus-twelve/taskauth/token"
	"github.com/minus-twelve/taskauth/types"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

type (
	Config      = types.Config
	RedisConfig = types.RedisConfig
)

// LoadConfig reads a YAML file, applies environment overrides and fills in
// defaults. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.StoreType = getEnvOrDefault("STORE_TYPE", cfg.StoreType)
	cfg.Redis.URL = getEnvOrDefault("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Addr = net.JoinHostPort(host, getEnvOrDefault("REDIS_PORT", "6379"))
	}
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
	cfg.TokenStore.Redis.URL = getEnvOrDefault("TOKEN_REDIS_URL", cfg.TokenStore.Redis.URL)
	cfg.Token.Secret = getEnvOrDefault("JWT_SECRET", cfg.Token.Secret)
	cfg.AuthMode = getEnvOrDefault("AUTH_MODE", cfg.AuthMode)
	if v, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		cfg.Debug = v
	}
	cfg.HTTP.Addr = getEnvOrDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Database.File = getEnvOrDefault("DATABASE_FILE", cfg.Database.File)
	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvOrDefault("LOG_FORMAT", cfg.Log.Format)
}

// ApplyDefaults fills every zero field. Sessions default to Redis DB 0 and
// tokens to DB 1 of the same server. Cookies are secure unless Debug.
func ApplyDefaults(cfg *Config) {
	if cfg.StoreType == "" {
		cfg.StoreType = "redis"
	}
	if cfg.Redis.Addr == "" && cfg.Redis.URL == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.DialTimeout <= 0 {
		cfg.Redis.DialTimeout = 2 * time.Second
	}
	if cfg.Redis.MaxRetries == 0 {
		cfg.Redis.MaxRetries = 3
	}

	if cfg.TokenStore.StoreType == "" {
		cfg.TokenStore.StoreType = cfg.StoreType
	}
	if cfg.TokenStore.Memory.MaxKeys == 0 {
		cfg.TokenStore.Memory = cfg.Memory
	}
	if cfg.TokenStore.Redis.Addr == "" && cfg.TokenStore.Redis.URL == "" {
		tr := cfg.Redis
		tr.URL = ""
		tr.DB = 1
		if cfg.Redis.URL != "" {
			if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
				tr.Addr, tr.Password = opts.Addr, opts.Password
			}
		}
		cfg.TokenStore.Redis = tr
	}
	if cfg.TokenStore.Redis.DialTimeout <= 0 {
		cfg.TokenStore.Redis.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.TokenStore.Redis.MaxRetries == 0 {
		cfg.TokenStore.Redis.MaxRetries = cfg.Redis.MaxRetries
	}

	if cfg.AuthMode == "" {
		cfg.AuthMode = types.AuthModeSession
	}

	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = DefaultCookieName
	}
	if cfg.Session.HeaderName == "" {
		cfg.Session.HeaderName = DefaultHeaderName
	}
	if !cfg.Debug {
		cfg.Session.SecureCookie = true
	}

	if cfg.Token.TTL <= 0 {
		cfg.Token.TTL = token.DefaultTTL
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = token.DefaultIssuer
	}

	if cfg.Security.RateLimit.Limit <= 0 {
		cfg.Security.RateLimit.Limit = 5
	}
	if cfg.Security.RateLimit.Period <= 0 {
		cfg.Security.RateLimit.Period = time.Minute
	}

	if cfg.Log.Service == "" {
		cfg.Log.Service = "taskauth"
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = "prod"
		if cfg.Debug {
			cfg.Log.Env = "dev"
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.File == "" {
		cfg.Database.File = "taskauth.db"
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}
