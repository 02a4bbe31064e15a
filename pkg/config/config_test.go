package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "REDIS_HOST", "JWT_SECRET", "OPENAI_MODEL", "BITRIX_TIMEOUT", "ENGINE_SYNC_DELAY_THRESHOLD"} {
		t.Setenv(key, "")
	}
	t.Setenv("BITRIX_WEBHOOK_URL", "https://example.bitrix24.com/rest/1/abc/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "https://example.bitrix24.com/rest/1/abc", cfg.Bitrix.WebhookURL)
	assert.Equal(t, 10*time.Second, cfg.Bitrix.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.SyncDelayThreshold)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/flows.db")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("ENGINE_SYNC_DELAY_THRESHOLD", "5s")
	t.Setenv("DB_MAX_OPEN_CONNS", "3")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/flows.db", cfg.Database.SQLitePath)
	assert.Equal(t, "redis:6379", cfg.Redis.GetAddr())
	assert.Equal(t, 5*time.Second, cfg.Engine.SyncDelayThreshold)
	assert.Equal(t, 3, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Auth.Enabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "unsupported DB_DRIVER",
		},
		{
			name:    "bad webhook url",
			mutate:  func(c *Config) { c.Bitrix.WebhookURL = "ftp://bitrix" },
			wantErr: "BITRIX_WEBHOOK_URL",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Engine.SyncDelayThreshold = -time.Second },
			wantErr: "ENGINE_SYNC_DELAY_THRESHOLD",
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "DB_HOST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Database: DatabaseConfig{Driver: "postgres", Host: "h", User: "u", DBName: "d"}}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "flows", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=flows sslmode=disable", cfg.GetDSN())
}
