// Package executor runs validator-approved SQL against the analytics
// database and marshals rows into a uniform column/value shape.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/seanankenbruck/analytics-chat/internal/errors"
	"github.com/seanankenbruck/analytics-chat/internal/observability"
)

// DefaultRowCap bounds result sets when the query has no LIMIT clause.
const DefaultRowCap = 100

// Result holds the rows returned by one statement. Cell values are
// normalized: primitives pass through, everything else is coerced to
// float64 when numeric-convertible, otherwise to its string form.
type Result struct {
	Rows     []map[string]interface{}
	RowCount int
}

// Executor runs exactly one read-only statement per call over a pooled
// connection. It never retries: an approved query that the backend
// rejects is a caller bug, not a transient condition.
type Executor struct {
	db     *sql.DB
	logger *observability.Logger
}

// New creates an executor over an open database handle.
func New(db *sql.DB) *Executor {
	return &Executor{
		db:     db,
		logger: observability.NewLogger("query-executor"),
	}
}

// Execute runs the query with a row cap. If the query has no LIMIT
// clause, one equal to rowCap is appended before dispatch.
func (e *Executor) Execute(ctx context.Context, query string, rowCap int) (*Result, error) {
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	query = ensureLimit(query, rowCap)

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		e.logger.Error(ctx, "Query execution failed", err, map[string]interface{}{
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, apperrors.NewSQLExecutionError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewSQLExecutionError(err)
	}

	result := &Result{Rows: []map[string]interface{}{}}
	values := make([]interface{}, len(columns))
	scanTargets := make([]interface{}, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, apperrors.NewSQLExecutionError(err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = coerceValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSQLExecutionError(err)
	}

	result.RowCount = len(result.Rows)
	e.logger.Debug(ctx, "Query executed", map[string]interface{}{
		"row_count":   result.RowCount,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

// ensureLimit appends a LIMIT clause when the query lacks one, so a
// runaway query can never flood the caller.
func ensureLimit(query string, rowCap int) string {
	if strings.Contains(strings.ToUpper(query), "LIMIT") {
		return query
	}
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(query), ";"), rowCap)
}

// coerceValue normalizes one cell. Numeric driver types (including
// NUMERIC/DECIMAL delivered as byte slices) become float64, timestamps
// become RFC 3339 strings, nulls stay nil, and anything else falls back
// to its string form.
func coerceValue(val interface{}) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return v
	case []byte:
		s := string(v)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		s := fmt.Sprintf("%v", v)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
}
