package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/seanankenbruck/analytics-chat/internal/auth"
	"github.com/seanankenbruck/analytics-chat/internal/chat"
	"github.com/seanankenbruck/analytics-chat/internal/config"
	"github.com/seanankenbruck/analytics-chat/internal/executor"
	"github.com/seanankenbruck/analytics-chat/internal/history"
	"github.com/seanankenbruck/analytics-chat/internal/llm"
	"github.com/seanankenbruck/analytics-chat/internal/observability"
	"github.com/seanankenbruck/analytics-chat/internal/semantic"
	"github.com/seanankenbruck/analytics-chat/internal/session"
	"github.com/seanankenbruck/analytics-chat/internal/validator"
)

func main() {
	ctx := context.Background()
	logger := observability.NewLogger("main")

	cfg := config.NewDefaultLoader().MustLoad(ctx)
	if err := cfg.ValidateWithContext(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	gin.SetMode(cfg.Server.GinMode)

	// Redis backs both the outcome cache and auth sessions
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Analytics database; one pool shared by the executor and history store
	db, err := sql.Open("postgres", databaseDSN(cfg))
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	defer db.Close()

	// Semantic vocabulary, optionally hot-reloaded on file changes
	resolver, err := semantic.NewResolver(cfg.Vocabulary.Path)
	if err != nil {
		log.Fatal("Failed to load vocabulary:", err)
	}
	if cfg.Vocabulary.Watch {
		watcher, err := semantic.NewWatcher(resolver)
		if err != nil {
			logger.Error(ctx, "Vocabulary watcher unavailable", err, nil)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	// LLM transport with retries and a circuit breaker
	claude, err := llm.NewClaudeClient(llm.Config{
		APIKey: cfg.Claude.APIKey,
		Model:  cfg.Claude.Model,
	})
	if err != nil {
		log.Fatal("Failed to initialize LLM client:", err)
	}
	var client llm.Client = llm.NewRetryClient(claude, llm.DefaultRetryConfig)
	client = llm.NewCircuitBreakerClient(client, "claude", llm.DefaultCircuitBreakerConfig)

	usage := llm.NewUsageTracker()
	generator := llm.NewGenerator(client, resolver, usage, cfg.Claude.Model)
	if cfg.Vocabulary.StockPath != "" {
		stockResolver, err := semantic.NewResolver(cfg.Vocabulary.StockPath)
		if err != nil {
			log.Fatal("Failed to load stock vocabulary:", err)
		}
		generator.RegisterContext(llm.ReportStockInventory, stockResolver)
	}
	formatter := llm.NewFormatter(client, usage)

	queryValidator := validator.New(validator.Config{
		AllowedTables:   cfg.Query.AllowedTables,
		MaxQueryLength:  cfg.Query.MaxQueryLength,
		AllowSubqueries: cfg.Query.AllowSubqueries,
		AllowCTE:        cfg.Query.AllowCTE,
	})

	exec := executor.New(db)
	store := history.NewStoreWithDB(db)

	chatService := chat.NewService(generator, queryValidator, exec, formatter, rdb, store, chat.Config{
		MaxResults:   cfg.Query.MaxResults,
		FewShotCount: cfg.Query.FewShotCount,
		CacheTTL:     cfg.Query.CacheTTL,
		Timeout:      cfg.Query.Timeout,
	})
	chatService.SetEmbeddingRecorder(store)

	// Auth with Redis-backed sessions
	sessionManager := session.NewManager(rdb, cfg.Auth.SessionExpiry)
	authManager := auth.NewAuthManager(auth.AuthConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTExpiry:      cfg.Auth.JWTExpiry,
		SessionExpiry:  cfg.Auth.SessionExpiry,
		RateLimit:      cfg.Auth.RateLimit,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
	}, sessionManager)

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			authManager.CleanupExpired()
		}
	}()

	// Health checks
	healthChecker := observability.NewHealthChecker()
	healthChecker.Register("database", observability.DatabaseHealthCheck(func(ctx context.Context) error {
		return db.PingContext(ctx)
	}))
	healthChecker.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	healthChecker.Register("vocabulary", observability.VocabularyHealthCheck(func(ctx context.Context) error {
		if resolver.Vocabulary() == nil {
			return fmt.Errorf("vocabulary not loaded")
		}
		return nil
	}))
	healthChecker.Register("memory", observability.MemoryHealthCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))

	server := chat.NewServer(chatService, resolver, store, usage)
	server.SetHealthChecker(healthChecker)
	server.SetBudgetGuard(auth.NewCostBudgetManager())

	router := server.SetupRoutes(authManager)
	router.Use(observability.RecoveryMiddleware(logger))
	router.Use(observability.RequestLoggingMiddleware(logger))
	router.Use(observability.MetricsMiddleware())

	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"metrics":   observability.GetGlobalMetrics().GetAll(),
			"timestamp": time.Now(),
		})
	})

	authHandlers := auth.NewAuthHandlers(authManager)
	authHandlers.SetupRoutes(router.Group("/api/v1"))

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info(ctx, "Analytics chat starting", map[string]interface{}{
			"port":    cfg.Server.Port,
			"version": "1.0.0",
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Forced shutdown", err, nil)
	}
}

func databaseDSN(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Username,
		cfg.Database.Password, cfg.Database.Database, sslMode)
}
