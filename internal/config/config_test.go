package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST", "PORT", "DATABASE_URL", "JWT_SECRET", "JWT_EXPIRY", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "LOG_LEVEL", "LOG_FILE", "RATE_PER_TON", "SUPERADMIN_EMAIL", "SUPERADMIN_PASSWORD",
		"SUPERADMIN_NAME", "CORS_ALLOWED_ORIGINS", "CONFIG_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		env         map[string]string
		expectError string
		validate    func(*testing.T, *Config)
	}{
		{
			name: "valid config file",
			configFile: `
server:
  host: 127.0.0.1
  port: 9000
  read_timeout: 5s
database:
  dsn: "file:data/dash.db"
jwt:
  secret: "0123456789abcdef0123"
  expiry: 2h
redis:
  addr: "localhost:6379"
  db: 2
logging:
  level: debug
billing:
  rate_per_ton: "185.50"
cors:
  allowed_origins: ["https://dash.example.com", " "]
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
				assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, "file:data/dash.db", cfg.Database.DSN)
				assert.Equal(t, 2*time.Hour, cfg.JWT.Expiry)
				assert.Equal(t, 2, cfg.Redis.DB)
				assert.Equal(t, "debug", cfg.Logging.Level)
				rate, err := cfg.Billing.Rate()
				require.NoError(t, err)
				assert.Equal(t, "185.5", rate.String())
				assert.Equal(t, []string{"https://dash.example.com"}, cfg.CORS.AllowedOrigins)
			},
		},
		{
			name: "env overrides file",
			configFile: `
server:
  port: 9000
database:
  dsn: "file:data/dash.db"
jwt:
  secret: "0123456789abcdef0123"
`,
			env: map[string]string{
				"PORT":                 "7000",
				"DATABASE_URL":         "postgres://u:p@db:5432/dash",
				"JWT_EXPIRY":           "30m",
				"CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7000, cfg.Server.Port)
				assert.Equal(t, "postgres://u:p@db:5432/dash", cfg.Database.DSN)
				assert.Equal(t, 30*time.Minute, cfg.JWT.Expiry)
				assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
			},
		},
		{
			name: "defaults",
			configFile: `
database:
  dsn: "file:data/dash.db"
jwt:
  secret: "0123456789abcdef0123"
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "Super Admin", cfg.Bootstrap.SuperAdminName)
				rate, err := cfg.Billing.Rate()
				require.NoError(t, err)
				assert.True(t, rate.IsZero())
			},
		},
		{
			name:        "missing dsn and short secret",
			configFile:  "jwt:\n  secret: short\n",
			expectError: "database.dsn is required",
		},
		{
			name:        "bad env port",
			configFile:  "database:\n  dsn: x.db\njwt:\n  secret: 0123456789abcdef0123\n",
			env:         map[string]string{"PORT": "eighty"},
			expectError: "env PORT",
		},
		{
			name:        "half bootstrap",
			configFile:  "database:\n  dsn: x.db\njwt:\n  secret: 0123456789abcdef0123\nbootstrap:\n  superadmin_password: hunter22hunter22\n",
			expectError: "requires superadmin_email",
		},
		{
			name:        "bad rate",
			configFile:  "database:\n  dsn: x.db\njwt:\n  secret: 0123456789abcdef0123\nbilling:\n  rate_per_ton: abc\n",
			expectError: "billing.rate_per_ton",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(writeConfig(t, tt.configFile))
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "file:env.db")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file:env.db", cfg.Database.DSN)

	dsn, err := LoadDatabaseDSN("")
	require.NoError(t, err)
	assert.Equal(t, "file:env.db", dsn)
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("JWT_SECRET")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv-0123456789\n"), 0o644))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: x.db\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })

	jwtCfg, err := LoadJWTConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv-0123456789", jwtCfg.Secret)
}

func TestResolveConfigPath(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, "custom.yaml", ResolveConfigPath(" custom.yaml "))
	t.Setenv("CONFIG_PATH", "/etc/dash.yaml")
	assert.Equal(t, "/etc/dash.yaml", ResolveConfigPath(""))
	assert.False(t, ConfigExists(""))
	assert.False(t, ConfigExists(t.TempDir()))
}
