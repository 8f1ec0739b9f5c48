package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvironmentProduction, cfg.Environment)
	assert.False(t, cfg.IsTest())
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIBaseURL)
	assert.Equal(t, 60*time.Second, cfg.Telegram.TokenCacheTTL)
	assert.Equal(t, []string{"INSERT"}, cfg.Queue.EventNames)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.True(t, cfg.Auth.Enabled)
	assert.Same(t, cfg, Get())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
environment: test
server:
  port: 8080
telegram:
  chat_id: "111"
queue:
  batch_size: 3
  batch_window: 2s
`)
	t.Setenv("TELEGRAM_CHAT_ID", "222")
	t.Setenv("BOTTE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsTest())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "222", cfg.Telegram.ChatID)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Queue.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Queue.BatchWindow)
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENVIRONMENT", "staging")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid environment "staging"`)
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "# comment\nBOTTE_TEST_DOTENV=\"from-file\"\nBOTTE_TEST_DOTENV_SET=ignored\n")
	t.Setenv("BOTTE_TEST_DOTENV_SET", "kept")
	os.Unsetenv("BOTTE_TEST_DOTENV")
	t.Cleanup(func() { os.Unsetenv("BOTTE_TEST_DOTENV") })

	require.NoError(t, loadEnvFile())
	assert.Equal(t, "from-file", os.Getenv("BOTTE_TEST_DOTENV"))
	assert.Equal(t, "kept", os.Getenv("BOTTE_TEST_DOTENV_SET"))
}

func TestSecretSource(t *testing.T) {
	t.Run("static value", func(t *testing.T) {
		got, err := StaticSecret("token").Get()
		require.NoError(t, err)
		assert.Equal(t, "token", got)
	})

	t.Run("unset", func(t *testing.T) {
		s := NewSecretSource("", "", 0)
		assert.False(t, s.Configured())
		_, err := s.Get()
		assert.Error(t, err)

		var nilSource *SecretSource
		_, err = nilSource.Get()
		assert.Error(t, err)
	})

	t.Run("file is cached for the ttl", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "token", "first\n")

		clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s := NewSecretSource("ignored", path, time.Minute)
		s.now = func() time.Time { return clock }

		got, err := s.Get()
		require.NoError(t, err)
		assert.Equal(t, "first", got)

		writeFile(t, dir, "token", "second")
		clock = clock.Add(30 * time.Second)
		got, err = s.Get()
		require.NoError(t, err)
		assert.Equal(t, "first", got)

		clock = clock.Add(31 * time.Second)
		got, err = s.Get()
		require.NoError(t, err)
		assert.Equal(t, "second", got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewSecretSource("", filepath.Join(t.TempDir(), "nope"), 0).Get()
		assert.Error(t, err)
	})
}
