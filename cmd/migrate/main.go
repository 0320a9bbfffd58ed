package main

import (
	"fmt"
	"log"
	"os"

	"github.com/seanankenbruck/analytics-chat/internal/database"
)

func main() {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	dbname := getEnv("DB_NAME", "sales_analytics")
	username := getEnv("DB_USER", "analytics")
	password := getEnv("DB_PASSWORD", "changeme")
	sslMode := getEnv("DB_SSLMODE", "disable")

	fmt.Println("=== Running Database Migrations ===")
	fmt.Printf("Connecting to database: %s@%s:%s/%s\n", username, host, port, dbname)

	// Verify database connectivity
	if err := database.VerifyDatabase(host, port, username, password, dbname); err != nil {
		log.Fatalf("Database connectivity failed: %v", err)
	}
	fmt.Println("✓ Database connectivity verified")

	// Run migrations
	migrationConfig := database.MigrationConfig{
		DatabaseURL: fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			username, password, host, port, dbname, sslMode),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}

	if err := database.RunMigrations(migrationConfig); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	fmt.Println("✓ Database migrations completed successfully!")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
