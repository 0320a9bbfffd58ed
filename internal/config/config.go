package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Claude LLM configuration
	Claude ClaudeConfig

	// Vocabulary configuration
	Vocabulary VocabularyConfig

	// Authentication configuration
	Auth AuthConfig

	// Server configuration
	Server ServerConfig

	// Query configuration
	Query QueryConfig
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClaudeConfig holds Claude API configuration
type ClaudeConfig struct {
	APIKey string
	Model  string
}

// VocabularyConfig holds semantic vocabulary configuration. StockPath
// backs the stock-inventory report context; empty disables it.
type VocabularyConfig struct {
	Path      string
	StockPath string
	Watch     bool
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	SessionExpiry  time.Duration
	RateLimit      int
	AllowAnonymous bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	GinMode string
}

// QueryConfig holds chat query pipeline configuration
type QueryConfig struct {
	MaxResults      int
	FewShotCount    int
	Timeout         time.Duration
	CacheTTL        time.Duration
	MaxQueryLength  int
	AllowSubqueries bool
	AllowCTE        bool
	AllowedTables   []string
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. Kubernetes secrets (if available)
// 2. File-based secrets (if available)
// 3. Environment variables (fallback)
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewK8sProvider("", ""),          // Auto-detect K8s environment
		NewFileProvider("/var/secrets"), // Common secret mount path
		NewEnvProvider(),                // Always available fallback
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	// Load Database config
	cfg.Database = DatabaseConfig{
		Host:     l.getString(ctx, "DB_HOST", "localhost"),
		Port:     l.getString(ctx, "DB_PORT", "5432"),
		Database: l.getString(ctx, "DB_NAME", "sales_analytics"),
		Username: l.getString(ctx, "DB_USER", "analytics"),
		Password: l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
	}

	// Load Redis config
	cfg.Redis = RedisConfig{
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	// Load Claude config
	cfg.Claude = ClaudeConfig{
		APIKey: l.getString(ctx, "CLAUDE_API_KEY", ""),
		Model:  l.getString(ctx, "CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
	}

	// Load Vocabulary config
	cfg.Vocabulary = VocabularyConfig{
		Path:      l.getString(ctx, "VOCABULARY_PATH", "vocabulary/sales_analytics.json"),
		StockPath: l.getString(ctx, "STOCK_VOCABULARY_PATH", "vocabulary/stock_inventory.json"),
		Watch:     l.getBool(ctx, "VOCABULARY_WATCH", true),
	}

	// Load Auth config
	cfg.Auth = AuthConfig{
		JWTSecret:      l.getString(ctx, "JWT_SECRET", ""),
		JWTExpiry:      l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		SessionExpiry:  l.getDuration(ctx, "SESSION_EXPIRY", 7*24*time.Hour),
		RateLimit:      l.getInt(ctx, "RATE_LIMIT", 100),
		AllowAnonymous: l.getBool(ctx, "ALLOW_ANONYMOUS", false),
	}

	// Load Server config
	cfg.Server = ServerConfig{
		Port:    l.getString(ctx, "PORT", "8080"),
		GinMode: l.getString(ctx, "GIN_MODE", "debug"),
	}

	// Load Query config
	cfg.Query = QueryConfig{
		MaxResults:      l.getInt(ctx, "MAX_RESULTS", 100),
		FewShotCount:    l.getInt(ctx, "FEW_SHOT_COUNT", 5),
		Timeout:         l.getDuration(ctx, "QUERY_TIMEOUT", 30*time.Second),
		CacheTTL:        l.getDuration(ctx, "CACHE_TTL", 5*time.Minute),
		MaxQueryLength:  l.getInt(ctx, "MAX_QUERY_LENGTH", 10000),
		AllowSubqueries: l.getBool(ctx, "ALLOW_SUBQUERIES", true),
		AllowCTE:        l.getBool(ctx, "ALLOW_CTE", true),
		AllowedTables:   l.getSlice(ctx, "ALLOWED_TABLES", []string{"sales_analytics", "public.sales_analytics", "stock_gw", "public.stock_gw"}),
	}

	return cfg, nil
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func (l *Loader) getSlice(ctx context.Context, key string, defaultValue []string) []string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	// Split by comma and trim whitespace
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// MustLoad loads configuration and panics on error
// Useful for application startup
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
