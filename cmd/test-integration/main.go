package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/seanankenbruck/analytics-chat/internal/chat"
	"github.com/seanankenbruck/analytics-chat/internal/executor"
	"github.com/seanankenbruck/analytics-chat/internal/history"
	"github.com/seanankenbruck/analytics-chat/internal/llm"
	"github.com/seanankenbruck/analytics-chat/internal/semantic"
	"github.com/seanankenbruck/analytics-chat/internal/validator"
)

// Runs the full question/answer pipeline against live Postgres, Redis,
// and the Claude API. Intended for manual verification, not CI.
func main() {
	fmt.Println("=== Analytics Chat Integration Test ===")

	ctx := context.Background()

	if err := checkEnvironment(); err != nil {
		log.Fatal(err)
	}

	service, cleanup, err := initializeComponents(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize components: %v", err)
	}
	defer cleanup()

	questions := []string{
		"Top 5 customers by sales",
		"Total sales in Gujarat for Building Wires",
		"Margin percentage by product category",
		"What is the weather today?",
	}

	for i, question := range questions {
		fmt.Printf("\n%d. Asking: %q\n", i+1, question)
		start := time.Now()
		outcome := service.Ask(ctx, &chat.Request{Question: question, IncludeQuery: true})
		fmt.Printf("  Status: %s (%.1fs)\n", outcome.Status, time.Since(start).Seconds())
		if outcome.Query != "" {
			fmt.Printf("  SQL: %s\n", outcome.Query)
		}
		fmt.Printf("  Answer: %s\n", outcome.Answer)
		if outcome.Error != "" {
			fmt.Printf("  Error: %s\n", outcome.Error)
		}
	}

	// A repeated question should come back from the cache
	fmt.Println("\nRe-asking first question to exercise the cache...")
	outcome := service.Ask(ctx, &chat.Request{Question: questions[0]})
	fmt.Printf("  Cache hit: %v\n", outcome.CacheHit)

	stats := service.Stats()
	fmt.Printf("\nRun statistics: %+v\n", stats)

	fmt.Println("\n🎉 Integration test completed!")
}

func checkEnvironment() error {
	if os.Getenv("CLAUDE_API_KEY") == "" {
		return fmt.Errorf("CLAUDE_API_KEY must be set")
	}
	return nil
}

func initializeComponents(ctx context.Context) (*chat.Service, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("redis unavailable: %w", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"), getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "analytics"), getEnv("DB_PASSWORD", "changeme"),
		getEnv("DB_NAME", "sales_analytics"), getEnv("DB_SSLMODE", "disable"))
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database unavailable: %w", err)
	}

	resolver, err := semantic.NewResolver(getEnv("VOCABULARY_PATH", "vocabulary/sales_analytics.json"))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	claude, err := llm.NewClaudeClient(llm.Config{
		APIKey: os.Getenv("CLAUDE_API_KEY"),
		Model:  getEnv("CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create Claude client: %w", err)
	}
	var client llm.Client = llm.NewRetryClient(claude, llm.DefaultRetryConfig)
	client = llm.NewCircuitBreakerClient(client, "claude", llm.DefaultCircuitBreakerConfig)

	usage := llm.NewUsageTracker()
	generator := llm.NewGenerator(client, resolver, usage, claude.Model())
	formatter := llm.NewFormatter(client, usage)

	v := validator.New(validator.Config{
		AllowedTables:   []string{resolver.Table(), "public." + resolver.Table()},
		MaxQueryLength:  10000,
		AllowSubqueries: true,
		AllowCTE:        true,
	})

	service := chat.NewService(generator, v, executor.New(db), formatter, rdb,
		history.NewStoreWithDB(db), chat.Config{
			MaxResults:   100,
			FewShotCount: 5,
			CacheTTL:     5 * time.Minute,
		})

	cleanup := func() {
		db.Close()
		rdb.Close()
	}
	return service, cleanup, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
