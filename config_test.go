package taskauth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minus-twelve/taskauth/types"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORE_TYPE", "REDIS_URL", "REDIS_PASSWORD", "REDIS_HOST", "REDIS_PORT",
		"REDIS_DB", "TOKEN_REDIS_URL", "JWT_SECRET", "AUTH_MODE", "DEBUG",
		"HTTP_ADDR", "DATABASE_FILE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, "redis", cfg.StoreType)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 0, cfg.Redis.DB)
	require.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)

	require.Equal(t, "redis", cfg.TokenStore.StoreType)
	require.Equal(t, "localhost:6379", cfg.TokenStore.Redis.Addr)
	require.Equal(t, 1, cfg.TokenStore.Redis.DB)

	require.Equal(t, types.AuthModeSession, cfg.AuthMode)
	require.Equal(t, 24*time.Hour, cfg.Session.TTL)
	require.Equal(t, "session_token", cfg.Session.CookieName)
	require.Equal(t, "X-Session-ID", cfg.Session.HeaderName)
	require.True(t, cfg.Session.SecureCookie)
	require.False(t, cfg.Session.RotateOnLogin)

	require.Equal(t, 5*time.Minute, cfg.Token.TTL)
	require.Equal(t, 5, cfg.Security.RateLimit.Limit)
	require.Equal(t, time.Minute, cfg.Security.RateLimit.Period)
	require.Equal(t, "prod", cfg.Log.Env)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadConfig_File(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, `
store_type: memory
memory:
  max_keys: 100
debug: true
session:
  ttl: 2h
  rotate_on_login: true
token:
  secret: from-file
security:
  trusted_proxies: ["10.0.0.0/8"]
log:
  format: text
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "memory", cfg.StoreType)
	require.Equal(t, "memory", cfg.TokenStore.StoreType)
	require.Equal(t, 100, cfg.TokenStore.Memory.MaxKeys)
	require.Equal(t, 2*time.Hour, cfg.Session.TTL)
	require.True(t, cfg.Session.RotateOnLogin)
	require.False(t, cfg.Session.SecureCookie)
	require.Equal(t, "dev", cfg.Log.Env)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, "from-file", cfg.Token.Secret)
	require.Equal(t, []string{"10.0.0.0/8"}, cfg.Security.TrustedProxies)

	sessions := cfg.SessionStore()
	require.Equal(t, "memory", sessions.StoreType)
	require.Equal(t, 100, sessions.Memory.MaxKeys)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, "token:\n  secret: from-file\n")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("AUTH_MODE", "bearer")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.Token.Secret)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, 4, cfg.Redis.DB)
	require.Equal(t, "redis:6379", cfg.TokenStore.Redis.Addr)
	require.Equal(t, 1, cfg.TokenStore.Redis.DB)
	require.Equal(t, types.AuthModeBearer, cfg.AuthMode)
	require.True(t, cfg.Debug)
	require.False(t, cfg.Session.SecureCookie)
}

func TestLoadConfig_TokenStoreFollowsRedisURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("REDIS_URL", "redis://:pw@cache:6380/0")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "cache:6380", cfg.TokenStore.Redis.Addr)
	require.Equal(t, "pw", cfg.TokenStore.Redis.Password)
	require.Equal(t, 1, cfg.TokenStore.Redis.DB)
	require.Empty(t, cfg.TokenStore.Redis.URL)
}

func TestLoadConfig_Errors(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "session: [not, a, map]"))
	require.Error(t, err)
}
