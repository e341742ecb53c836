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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: postgres://localhost/dreams\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/dreams", cfg.Database.DSN)
	assert.Equal(t, 100, cfg.Processor.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Processor.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Processor.ClaimLease)
	assert.Equal(t, 1, cfg.Processor.Concurrency)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Firebase.TokenURI)
	assert.Equal(t, "https://www.googleapis.com/auth/firebase.messaging", cfg.Firebase.Scope)
	assert.Equal(t, 10*time.Second, cfg.Firebase.RequestTimeout)
	assert.Equal(t, "none", cfg.CredentialCache.Driver)
	assert.Equal(t, time.Minute, cfg.CredentialCache.Skew)
	assert.Equal(t, 1, cfg.Push.IOSBadge)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Contains(t, cfg.Warnings, "processor.concurrency is not set or invalid; defaulting to 1")
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
processor:
  batch_size: 25
  interval_seconds: 5
  concurrency: 8
credential_cache:
  driver: " Memory "
push:
  android_channel_id: dreams
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Processor.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Processor.Interval)
	assert.Equal(t, 8, cfg.Processor.Concurrency)
	assert.Equal(t, "memory", cfg.CredentialCache.Driver)
	assert.Equal(t, "dreams", cfg.Push.AndroidChannelID)
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: from-file\nserver:\n  internal_api_key: file-key\n")
	t.Setenv("DATABASE_DSN", "from-env")
	t.Setenv("INTERNAL_API_KEY", "env-key")
	t.Setenv("FIREBASE_SERVICE_ACCOUNT", `{"client_email":"svc@example.iam.gserviceaccount.com"}`)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.DSN)
	assert.Equal(t, "env-key", cfg.Server.InternalAPIKey)
	assert.Contains(t, cfg.Firebase.ServiceAccountJSON, "svc@example.iam.gserviceaccount.com")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
