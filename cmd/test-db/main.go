package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/seanankenbruck/analytics-chat/internal/database"
	"github.com/seanankenbruck/analytics-chat/internal/executor"
	"github.com/seanankenbruck/analytics-chat/internal/history"
	"github.com/seanankenbruck/analytics-chat/internal/llm"
	"github.com/seanankenbruck/analytics-chat/internal/validator"
)

func main() {
	ctx := context.Background()

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	dbname := getEnv("DB_NAME", "sales_analytics")
	username := getEnv("DB_USER", "analytics")
	password := getEnv("DB_PASSWORD", "changeme")
	sslMode := getEnv("DB_SSLMODE", "disable")

	fmt.Println("=== Analytics Chat Database Test ===")
	fmt.Printf("Connecting to database: %s@%s:%s/%s\n", username, host, port, dbname)

	// Test 1: Database connectivity and migration
	fmt.Println("\n1. Testing database connectivity and migration...")
	if err := testDatabaseSetup(host, port, dbname, username, password, sslMode); err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	fmt.Println("✓ Database setup successful")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, username, password, dbname, sslMode)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("Schema health check failed: %v", err)
	}
	fmt.Println("✓ Schema health check passed")

	// Test 2: Validate and run a sample analytical query
	fmt.Println("\n2. Testing validated query execution...")
	if err := testQueryExecution(ctx, db); err != nil {
		log.Fatalf("Query execution test failed: %v", err)
	}
	fmt.Println("✓ Query execution working")

	// Test 3: Record and list chat runs
	fmt.Println("\n3. Testing chat run history...")
	if err := testChatHistory(ctx, db); err != nil {
		log.Fatalf("Chat history test failed: %v", err)
	}
	fmt.Println("✓ Chat run history working")

	// Test 4: Question embeddings
	fmt.Println("\n4. Testing question embeddings...")
	if err := testQuestionEmbeddings(ctx, db); err != nil {
		log.Fatalf("Question embedding test failed: %v", err)
	}
	fmt.Println("✓ Question embeddings working")

	fmt.Println("\n🎉 All database tests passed successfully!")
}

func testDatabaseSetup(host, port, dbname, username, password, sslMode string) error {
	if err := database.VerifyDatabase(host, port, username, password, dbname); err != nil {
		return fmt.Errorf("failed to verify database connectivity: %w", err)
	}

	migrationConfig := database.MigrationConfig{
		DatabaseURL: fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			username, password, host, port, dbname, sslMode),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}

	if err := database.RunMigrations(migrationConfig); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func testQueryExecution(ctx context.Context, db *sql.DB) error {
	query := "SELECT status, COUNT(*) AS run_count FROM chat_runs GROUP BY status ORDER BY run_count DESC"

	v := validator.New(validator.Config{
		AllowedTables:   []string{"chat_runs"},
		MaxQueryLength:  10000,
		AllowSubqueries: true,
		AllowCTE:        true,
	})
	verdict := v.Validate(query)
	if !verdict.IsValid {
		return fmt.Errorf("sample query rejected: %s", verdict.Message)
	}
	fmt.Println("  Query passed validation")

	exec := executor.New(db)
	result, err := exec.Execute(ctx, query, 10)
	if err != nil {
		return fmt.Errorf("sample query failed: %w", err)
	}
	fmt.Printf("  Query returned %d rows\n", result.RowCount)

	return nil
}

func testChatHistory(ctx context.Context, db *sql.DB) error {
	store := history.NewStoreWithDB(db)

	id, err := store.RecordRun(ctx, history.Record{
		Question:   "Top 5 customers by sales",
		Query:      "SELECT customername, SUM(saleamt_ason) AS total_sales FROM sales_analytics GROUP BY customername ORDER BY total_sales DESC LIMIT 5",
		Status:     "success",
		RowCount:   5,
		TokensUsed: 420,
		LatencyMs:  1250,
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	fmt.Printf("  Recorded run: %s\n", id)

	runs, err := store.RecentRuns(ctx, 5)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	for _, run := range runs {
		fmt.Printf("  %s [%s] %s\n", run.CreatedAt.Format(time.RFC3339), run.Status, run.Question)
	}

	return nil
}

func testQuestionEmbeddings(ctx context.Context, db *sql.DB) error {
	store := history.NewStoreWithDB(db)

	question := "Top 5 customers by sales"
	embedding := llm.QuestionEmbedding(question)
	queryText := "SELECT customername, SUM(saleamt_ason) AS total_sales FROM sales_analytics GROUP BY customername ORDER BY total_sales DESC LIMIT 5"

	if err := store.StoreQuestionEmbedding(ctx, question, embedding, queryText); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	fmt.Println("  Stored question embedding")

	similar, err := store.FindSimilarQuestions(ctx, embedding)
	if err != nil {
		return fmt.Errorf("failed to search embeddings: %w", err)
	}
	for _, sq := range similar {
		fmt.Printf("  Similar question (%.2f): %s\n", sq.Similarity, sq.Question)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
