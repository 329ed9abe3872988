package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"maintenance/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"CONFIG", "ADDR", "PORT", "DB_STR", "MIGRATE_PATH", "JWT_SECRET", "TOKEN_TTL",
	"BCRYPT_COST", "LOG_LEVEL", "ALLOWED_ORIGINS", "SHUTDOWN_TIMEOUT",
	"DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME",
}

// clearConfigEnv unsets every variable LoadConfig reads and restores them
// when the test ends.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		if old, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, old) })
		}
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Empty(t, cfg.DBStr)
	assert.Equal(t, "migrations", cfg.MigratePath)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultJWTSecret, cfg.JWTSecret)
	assert.True(t, cfg.UsesDefaultSecret())

	t.Setenv("JWT_SECRET", "from-vault")
	cfg, err = LoadConfig(nil)
	require.NoError(t, err)
	assert.False(t, cfg.UsesDefaultSecret())
}

func TestLoadConfig(t *testing.T) {
	yamlFile := writeConfigFile(t, "config.yaml", `
addr: 127.0.0.1
port: 9090
db_str: postgres://file@localhost/tasks
token_ttl: 15m
allowed_origins: ["https://ops.example.com"]
`)
	jsonFile := writeConfigFile(t, "config.json", `{"port": 7070, "log_level": "DEBUG"}`)
	brokenFile := writeConfigFile(t, "broken.yaml", "port: [not a number\n")

	tests := []struct {
		name string
		env  map[string]string
		args []string
		want struct {
			err      error
			address  string
			dbStr    string
			logLevel string
			tokenTTL time.Duration
		}
	}{
		{
			name: "yaml file from flag",
			args: []string{"-c", yamlFile},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{address: "127.0.0.1:9090", dbStr: "postgres://file@localhost/tasks", logLevel: "INFO", tokenTTL: 15 * time.Minute},
		},
		{
			name: "json file from CONFIG env",
			env:  map[string]string{"CONFIG": jsonFile},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{address: "0.0.0.0:7070", logLevel: "DEBUG", tokenTTL: time.Hour},
		},
		{
			name: "flags override file and env",
			env:  map[string]string{"PORT": "6060", "LOG_LEVEL": "WARN"},
			args: []string{"-c", yamlFile, "-port", "5050", "-dbdsn", "postgres://flag@localhost/tasks", "-dbstr", "ignored"},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{address: "127.0.0.1:5050", dbStr: "postgres://flag@localhost/tasks", logLevel: "WARN", tokenTTL: 15 * time.Minute},
		},
		{
			name: "database parts",
			env: map[string]string{
				"DB_USER": "ops", "DB_PASSWORD": "secret", "DB_HOST": "db", "DB_PORT": "5432", "DB_NAME": "tasks",
			},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{address: "0.0.0.0:8080", dbStr: "postgresql://ops:secret@db:5432/tasks?sslmode=disable", logLevel: "INFO", tokenTTL: time.Hour},
		},
		{
			name: "missing file falls back to env",
			args: []string{"-c", filepath.Join(t.TempDir(), "absent.yaml")},
			env:  map[string]string{"ADDR": "10.0.0.1"},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{address: "10.0.0.1:8080", logLevel: "INFO", tokenTTL: time.Hour},
		},
		{
			name: "broken file",
			args: []string{"-c", brokenFile},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{err: errors.ErrConfigFileReadFailed},
		},
		{
			name: "port out of range",
			args: []string{"-port", "70000"},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{err: errors.ErrConfigInvalidFormat},
		},
		{
			name: "unknown flag",
			args: []string{"-verbose"},
			want: struct {
				err      error
				address  string
				dbStr    string
				logLevel string
				tokenTTL time.Duration
			}{err: errors.ErrConfigInvalidFormat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(tt.args)

			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.address, cfg.Address())
			assert.Equal(t, tt.want.dbStr, cfg.DBStr)
			assert.Equal(t, tt.want.logLevel, cfg.LogLevel)
			assert.Equal(t, tt.want.tokenTTL, cfg.TokenTTL)
		})
	}
}
