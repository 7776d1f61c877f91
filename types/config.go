package types

import "time"

type MemoryConfig struct {
	MaxKeys int `yaml:"max_keys"`
}

// StoreConfig selects and configures one key-value backend.
type StoreConfig struct {
	StoreType string       `yaml:"store_type"`
	Memory    MemoryConfig `yaml:"memory"`
	Redis     RedisConfig  `yaml:"redis"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	CookieName    string        `yaml:"cookie_name"`
	HeaderName    string        `yaml:"header_name"`
	SecureCookie  bool          `yaml:"secure_cookie"`
	RotateOnLogin bool          `yaml:"rotate_on_login"`
}

type TokenConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

type Rate struct {
	Period time.Duration `yaml:"period"`
	Limit  int           `yaml:"limit"`
}

type SecurityConfig struct {
	RateLimit      Rate     `yaml:"rate_limit"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type LogConfig struct {
	Service string `yaml:"service"`
	Env     string `yaml:"env"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	File string `yaml:"file"`
}

// AuthMode values.
const (
	AuthModeSession = "session"
	AuthModeBearer  = "bearer"
)

type Config struct {
	StoreType  string         `yaml:"store_type"`
	Memory     MemoryConfig   `yaml:"memory"`
	Redis      RedisConfig    `yaml:"redis"`
	TokenStore StoreConfig    `yaml:"token_store"`
	AuthMode   string         `yaml:"auth_mode"`
	Debug      bool           `yaml:"debug"`
	Session    SessionConfig  `yaml:"session"`
	Token      TokenConfig    `yaml:"token"`
	Security   SecurityConfig `yaml:"security"`
	Log        LogConfig      `yaml:"log"`
	HTTP       HTTPConfig     `yaml:"http"`
	Database   DatabaseConfig `yaml:"database"`
}

// SessionStore returns the backend settings used for session records.
func (c Config) SessionStore() StoreConfig {
	return StoreConfig{StoreType: c.StoreType, Memory: c.Memory, Redis: c.Redis}
}
