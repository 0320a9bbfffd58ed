// Package history persists chat runs and their question embeddings so
// past question/SQL pairs can be surfaced as suggestions via vector
// similarity search.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	apperrors "github.com/seanankenbruck/analytics-chat/internal/errors"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// Record is one persisted chat run.
type Record struct {
	ID         string
	Question   string
	Query      string
	Status     string
	RowCount   int
	TokensUsed int
	LatencyMs  int64
	CreatedAt  time.Time
}

// SimilarQuestion is one nearest-neighbor hit for a question embedding.
type SimilarQuestion struct {
	ID         string
	Question   string
	Query      string
	Similarity float64
	CreatedAt  time.Time
}

// Store persists chat runs in PostgreSQL. Question embeddings are kept
// in a pgvector column for similarity search.
type Store struct {
	db *sql.DB
}

// NewStore opens a pooled connection and verifies it.
func NewStore(config Config) (*Store, error) {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	if err := db.Ping(); err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing database handle.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists one completed chat run.
func (s *Store) RecordRun(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	insertQuery := `
		INSERT INTO chat_runs (id, question, query_text, status, row_count, tokens_used, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, insertQuery,
		rec.ID, rec.Question, rec.Query, rec.Status, rec.RowCount, rec.TokensUsed, rec.LatencyMs, rec.CreatedAt)
	if err != nil {
		return "", apperrors.NewDatabaseQueryError(err, "record chat run")
	}
	return rec.ID, nil
}

// RecentRuns returns the most recent chat runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, question, query_text, status, row_count, tokens_used, latency_ms, created_at
		FROM chat_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError(err, "list chat runs")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Query, &rec.Status,
			&rec.RowCount, &rec.TokensUsed, &rec.LatencyMs, &rec.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseQueryError(err, "scan chat run row")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryError(err, "iterate chat run rows")
	}

	return records, nil
}

// StoreQuestionEmbedding stores a question embedding for future
// similarity search. An existing question gets its embedding and query
// refreshed in place.
func (s *Store) StoreQuestionEmbedding(ctx context.Context, question string, embedding []float32, queryText string) error {
	vector := pgvector.NewVector(embedding)

	insertQuery := `
		INSERT INTO question_embeddings (id, question, embedding, query_text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (question) DO UPDATE SET
			embedding = $3,
			query_text = $4,
			updated_at = $5
	`

	id := uuid.New().String()
	now := time.Now()

	if _, err := s.db.ExecContext(ctx, insertQuery, id, question, vector, queryText, now); err != nil {
		return apperrors.NewDatabaseQueryError(err, "store question embedding")
	}
	return nil
}

// FindSimilarQuestions finds previously answered questions close to the
// given embedding using cosine similarity.
func (s *Store) FindSimilarQuestions(ctx context.Context, embedding []float32) ([]SimilarQuestion, error) {
	vector := pgvector.NewVector(embedding)

	query := `
		SELECT id, question, query_text,
		       1 - (embedding <=> $1) AS similarity,
		       created_at
		FROM question_embeddings
		WHERE 1 - (embedding <=> $1) > 0.8
		ORDER BY similarity DESC
		LIMIT 5
	`

	rows, err := s.db.QueryContext(ctx, query, vector)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError(err, "find similar questions")
	}
	defer rows.Close()

	var similar []SimilarQuestion
	for rows.Next() {
		var sq SimilarQuestion
		if err := rows.Scan(&sq.ID, &sq.Question, &sq.Query, &sq.Similarity, &sq.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseQueryError(err, "scan similar question row")
		}
		similar = append(similar, sq)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryError(err, "iterate similar question rows")
	}

	return similar, nil
}
