package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/seanankenbruck/analytics-chat/internal/llm"
	"github.com/seanankenbruck/analytics-chat/internal/semantic"
	"github.com/seanankenbruck/analytics-chat/internal/validator"
)

func main() {
	fmt.Println("=== Claude Client Test ===")

	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		log.Fatal("Please set CLAUDE_API_KEY environment variable")
	}

	fmt.Println("Initializing Claude client...")
	client, err := llm.NewClaudeClient(llm.Config{
		APIKey: apiKey,
		Model:  getEnv("CLAUDE_MODEL", "claude-3-haiku-20240307"),
	})
	if err != nil {
		log.Fatalf("Failed to create Claude client: %v", err)
	}
	fmt.Println("✓ Claude client created successfully")

	fmt.Println("Loading vocabulary...")
	resolver, err := semantic.NewResolver(getEnv("VOCABULARY_PATH", "vocabulary/sales_analytics.json"))
	if err != nil {
		log.Fatalf("Failed to load vocabulary: %v", err)
	}
	fmt.Println("✓ Vocabulary loaded")

	ctx := context.Background()
	usage := llm.NewUsageTracker()
	generator := llm.NewGenerator(client, resolver, usage, client.Model())
	formatter := llm.NewFormatter(client, usage)
	v := validator.New(validator.Config{
		AllowedTables:   []string{resolver.Table(), "public." + resolver.Table()},
		MaxQueryLength:  10000,
		AllowSubqueries: true,
		AllowCTE:        true,
	})

	questions := []string{
		"Top 5 customers by sales",
		"Total sales in Gujarat for Building Wires",
		"Which product category has the best margin?",
		"Compare LT Cables and HT cables revenue",
		"Month wise sales trend for Maharashtra",
	}

	for i, question := range questions {
		fmt.Printf("\n%d. Generating SQL for: %q\n", i+1, question)
		gen := generator.Generate(ctx, llm.ReportSalesAnalytics, question, nil, 3)
		if !gen.Succeeded {
			fmt.Printf("  ✗ Generation failed (%s): %s\n", gen.FailureKind, gen.FailureMessage)
			continue
		}
		fmt.Printf("  SQL: %s\n", gen.QueryText)
		fmt.Printf("  Tokens: %d, estimated cost: $%.6f\n", gen.TokensUsed, gen.CostEstimateUSD)

		verdict := v.Validate(gen.QueryText)
		if !verdict.IsValid {
			fmt.Printf("  ✗ Validation rejected query: %s\n", verdict.Message)
			continue
		}
		fmt.Println("  ✓ Query passed validation")
	}

	// Formatting with canned rows exercises the answer path without a database
	fmt.Println("\nTesting answer formatting...")
	rows := []map[string]interface{}{
		{"customername": "ABC Electricals", "total_sales": 1250000.0},
		{"customername": "XYZ Traders", "total_sales": 980000.0},
	}
	answer, fallback := formatter.Format(ctx, llm.ReportSalesAnalytics, "Top 2 customers by sales",
		"SELECT customername, SUM(saleamt_ason) AS total_sales FROM sales_analytics GROUP BY customername ORDER BY total_sales DESC LIMIT 2", rows)
	fmt.Printf("  Answer: %s\n", answer)
	if fallback {
		fmt.Println("  (deterministic fallback used)")
	}

	snapshot := usage.Snapshot()
	fmt.Printf("\nUsage: %+v\n", snapshot)

	fmt.Println("\n🎉 All Claude client tests completed!")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
