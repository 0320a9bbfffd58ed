package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider(t *testing.T) {
	ctx := context.Background()
	provider := NewEnvProvider()

	os.Setenv("TEST_SECRET", "env-value")
	defer os.Unsetenv("TEST_SECRET")

	value, err := provider.GetSecret(ctx, "TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "env-value", value)

	value, err = provider.GetSecret(ctx, "NOT_SET_ANYWHERE")
	require.NoError(t, err)
	assert.Empty(t, value)

	assert.Equal(t, "env", provider.Name())
	assert.True(t, provider.IsAvailable(ctx))
}

func TestFileProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Keys map to kebab-case filenames, and trailing newlines from the
	// mounted file are stripped.
	err := os.WriteFile(filepath.Join(dir, "claude-api-key"), []byte("sk-ant-test\n"), 0o600)
	require.NoError(t, err)

	provider := NewFileProvider(dir)

	t.Run("reads mounted secret", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "CLAUDE_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-test", value)
	})

	t.Run("missing file yields empty value", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "NO_SUCH_SECRET")
		require.NoError(t, err)
		assert.Empty(t, value)
	})

	t.Run("unconfigured directory is an error", func(t *testing.T) {
		_, err := NewFileProvider("").GetSecret(ctx, "ANY_KEY")
		assert.Error(t, err)
	})

	t.Run("availability tracks the directory", func(t *testing.T) {
		assert.True(t, provider.IsAvailable(ctx))
		assert.False(t, NewFileProvider("/no/such/dir").IsAvailable(ctx))
		assert.False(t, NewFileProvider("").IsAvailable(ctx))

		// A plain file is not a secrets directory.
		assert.False(t, NewFileProvider(filepath.Join(dir, "claude-api-key")).IsAvailable(ctx))
	})

	assert.Equal(t, "file", provider.Name())
}

func TestK8sProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, "jwt-secret"), []byte("mounted-jwt"), 0o600)
	require.NoError(t, err)

	provider := NewK8sProvider(dir, "production")

	t.Run("reads delegate to the mounted files", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "JWT_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "mounted-jwt", value)
	})

	t.Run("keeps the configured namespace", func(t *testing.T) {
		assert.Equal(t, "production", provider.GetNamespace())
	})

	t.Run("defaults namespace outside a pod", func(t *testing.T) {
		assert.Equal(t, "default", NewK8sProvider(dir, "").GetNamespace())
	})

	t.Run("unavailable without a service account token", func(t *testing.T) {
		// The test process is not a pod, so availability is gated off
		// even though the secrets directory exists.
		assert.False(t, provider.IsAvailable(ctx))
	})

	assert.Equal(t, "kubernetes", provider.Name())
}

func TestChainProvider(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "file-secret"), []byte("from-file"), 0o600)
	require.NoError(t, err)

	chain := NewChainProvider(NewFileProvider(dir), NewEnvProvider())

	t.Run("first provider with a value wins", func(t *testing.T) {
		os.Setenv("FILE_SECRET", "from-env")
		defer os.Unsetenv("FILE_SECRET")

		value, err := chain.GetSecret(ctx, "FILE_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-file", value)
	})

	t.Run("empty value falls through to the next provider", func(t *testing.T) {
		os.Setenv("ENV_ONLY_SECRET", "from-env")
		defer os.Unsetenv("ENV_ONLY_SECRET")

		value, err := chain.GetSecret(ctx, "ENV_ONLY_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-env", value)
	})

	t.Run("errors when no provider is available", func(t *testing.T) {
		broken := NewChainProvider(NewFileProvider("/no/such/dir"))
		_, err := broken.GetSecret(ctx, "ANY_KEY")
		assert.Error(t, err)
		assert.False(t, broken.IsAvailable(ctx))
	})

	assert.Equal(t, "chain", chain.Name())
	assert.True(t, chain.IsAvailable(ctx))
}

func TestConfigLoader(t *testing.T) {
	ctx := context.Background()

	testEnv := map[string]string{
		"DB_HOST":         "test-host",
		"DB_PORT":         "5432",
		"DB_NAME":         "test-db",
		"DB_USER":         "test-user",
		"DB_PASSWORD":     "test-pass",
		"REDIS_ADDR":      "test-redis:6379",
		"CLAUDE_API_KEY":  "sk-ant-test",
		"JWT_SECRET":      "test-jwt-secret-with-sufficient-length-32chars",
		"PORT":            "8080",
		"RATE_LIMIT":      "50",
		"VOCABULARY_PATH": "testdata/vocabulary.json",
	}
	for k, v := range testEnv {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range testEnv {
			os.Unsetenv(k)
		}
	}()

	loader := NewLoader(NewEnvProvider())

	t.Run("loads all configuration sections", func(t *testing.T) {
		cfg, err := loader.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "test-host", cfg.Database.Host)
		assert.Equal(t, "test-pass", cfg.Database.Password)
		assert.Equal(t, "test-redis:6379", cfg.Redis.Addr)
		assert.Equal(t, "sk-ant-test", cfg.Claude.APIKey)
		assert.Equal(t, "test-jwt-secret-with-sufficient-length-32chars", cfg.Auth.JWTSecret)
		assert.Equal(t, 50, cfg.Auth.RateLimit)
		assert.Equal(t, "8080", cfg.Server.Port)
	})

	t.Run("uses defaults when env vars are unset", func(t *testing.T) {
		for k := range testEnv {
			os.Unsetenv(k)
		}
		defer func() {
			for k, v := range testEnv {
				os.Setenv(k, v)
			}
		}()

		cfg, err := loader.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, 100, cfg.Auth.RateLimit)
	})

	t.Run("parses durations", func(t *testing.T) {
		os.Setenv("JWT_EXPIRY", "12h")
		os.Setenv("QUERY_TIMEOUT", "45s")
		defer os.Unsetenv("JWT_EXPIRY")
		defer os.Unsetenv("QUERY_TIMEOUT")

		cfg, err := loader.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 12*time.Hour, cfg.Auth.JWTExpiry)
		assert.Equal(t, 45*time.Second, cfg.Query.Timeout)
	})

	t.Run("default allowed tables cover both report tables", func(t *testing.T) {
		os.Unsetenv("ALLOWED_TABLES")

		cfg, err := loader.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t,
			[]string{"sales_analytics", "public.sales_analytics", "stock_gw", "public.stock_gw"},
			cfg.Query.AllowedTables)
	})

	t.Run("parses and trims table lists", func(t *testing.T) {
		os.Setenv("ALLOWED_TABLES", "sales_analytics, customer_master ,item_master")
		defer os.Unsetenv("ALLOWED_TABLES")

		cfg, err := loader.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t,
			[]string{"sales_analytics", "customer_master", "item_master"},
			cfg.Query.AllowedTables)
	})

	t.Run("loads the stock vocabulary path", func(t *testing.T) {
		cfg, err := loader.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "vocabulary/stock_inventory.json", cfg.Vocabulary.StockPath)

		os.Setenv("STOCK_VOCABULARY_PATH", "custom/stock.json")
		defer os.Unsetenv("STOCK_VOCABULARY_PATH")

		cfg, err = loader.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "custom/stock.json", cfg.Vocabulary.StockPath)
	})
}
