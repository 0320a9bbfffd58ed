// Package chat orchestrates one question/answer run: SQL generation,
// safety validation, execution, and answer formatting, with Redis
// caching of successful outcomes.
package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/seanankenbruck/analytics-chat/internal/errors"
	"github.com/seanankenbruck/analytics-chat/internal/executor"
	"github.com/seanankenbruck/analytics-chat/internal/history"
	"github.com/seanankenbruck/analytics-chat/internal/llm"
	"github.com/seanankenbruck/analytics-chat/internal/observability"
	"github.com/seanankenbruck/analytics-chat/internal/validator"
)

// Status is the terminal outcome of one chat run.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusGenerationFailed Status = "sql_generation_failed"
	StatusValidationFailed Status = "sql_validation_failed"
	StatusExecutionFailed  Status = "sql_execution_failed"
	StatusNoResults        Status = "no_results"
	StatusError            Status = "error"
)

// Fixed user-facing message templates. Raw error text is logged
// server-side only and never placed in Answer.
const (
	msgGenerationFailed = "I couldn't understand your question. Please try rephrasing."
	msgValidationFailed = "I generated a query but it didn't pass safety checks. Please try a different question."
	msgExecutionFailed  = "I couldn't retrieve the data. The query might be invalid or the data might not exist."
	msgNoResults        = "I didn't find any data matching your query. This could mean:\n" +
		"• No transactions exist for the specified criteria\n" +
		"• The filters might be too restrictive\n" +
		"Try broadening your search or changing the filters."
)

// Request is one incoming question. ReportID selects the report
// context; unrecognized or empty values fall back to sales analytics.
type Request struct {
	Question     string            `json:"question" binding:"required"`
	Filters      map[string]string `json:"filters,omitempty"`
	ReportID     string            `json:"report_id,omitempty"`
	IncludeQuery bool              `json:"include_query,omitempty"`
	IncludeData  bool              `json:"include_data,omitempty"`
}

// ReportContext resolves the request's report identifier.
func (r *Request) ReportContext() llm.ReportContext {
	return llm.ParseReportContext(r.ReportID)
}

// StageTiming records per-stage latencies in milliseconds. A stage that
// never ran keeps zero; accumulated values are never zeroed on failure.
type StageTiming struct {
	GenerationMs int64 `json:"generation_ms"`
	ExecutionMs  int64 `json:"execution_ms"`
	FormattingMs int64 `json:"formatting_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// Usage reports the token and cost spend of one run.
type Usage struct {
	TokensUsed      int     `json:"tokens_used"`
	CostEstimateUSD float64 `json:"cost_estimate_usd"`
}

// RunOutcome is the terminal record of one orchestrated run.
type RunOutcome struct {
	Status    Status                   `json:"status"`
	Answer    string                   `json:"answer"`
	Query     string                   `json:"query,omitempty"`
	Data      []map[string]interface{} `json:"data,omitempty"`
	RowCount  int                      `json:"row_count"`
	Error     string                   `json:"error,omitempty"`
	Timing    StageTiming              `json:"timing"`
	Usage     Usage                    `json:"usage"`
	CacheHit  bool                     `json:"cache_hit"`
	Timestamp time.Time                `json:"timestamp"`
}

// Statistics are process-wide run counters, reset only by operator
// action.
type Statistics struct {
	TotalRuns     int64 `json:"total_runs"`
	SucceededRuns int64 `json:"succeeded_runs"`
	FailedRuns    int64 `json:"failed_runs"`
}

// QueryGenerator produces a candidate SQL query for a question in the
// requested report context.
type QueryGenerator interface {
	Generate(ctx context.Context, report llm.ReportContext, question string, filters map[string]string, fewShotCount int) llm.GenerationResult
}

// QueryValidator decides whether a candidate query is safe to run.
type QueryValidator interface {
	Validate(sql string) validator.Verdict
}

// QueryExecutor runs one approved statement with a row cap.
type QueryExecutor interface {
	Execute(ctx context.Context, query string, rowCap int) (*executor.Result, error)
}

// AnswerFormatter renders result rows into prose phrased for the
// report context. The bool reports whether the deterministic local
// fallback was used.
type AnswerFormatter interface {
	Format(ctx context.Context, report llm.ReportContext, question, query string, rows []map[string]interface{}) (string, bool)
}

// HistoryRecorder persists finished runs.
type HistoryRecorder interface {
	RecordRun(ctx context.Context, rec history.Record) (string, error)
}

// EmbeddingRecorder persists question embeddings so past question/SQL
// pairs can be found by similarity search.
type EmbeddingRecorder interface {
	StoreQuestionEmbedding(ctx context.Context, question string, embedding []float32, queryText string) error
}

// Config holds orchestrator limits. Timeout bounds a whole run across
// all stages; zero disables the deadline.
type Config struct {
	MaxResults   int
	FewShotCount int
	CacheTTL     time.Duration
	Timeout      time.Duration
}

// Service sequences the pipeline stages for each run. Independent runs
// share only the statistics counters and the read-only configuration,
// so the service is safe for concurrent use.
type Service struct {
	generator  QueryGenerator
	validator  QueryValidator
	executor   QueryExecutor
	formatter  AnswerFormatter
	cache      *redis.Client
	history    HistoryRecorder
	embeddings EmbeddingRecorder
	config     Config
	logger     *observability.Logger

	totalRuns     atomic.Int64
	succeededRuns atomic.Int64
	failedRuns    atomic.Int64
}

// NewService creates the chat orchestrator. The cache and history
// recorder are optional; a nil cache disables outcome caching and a nil
// recorder disables run persistence.
func NewService(generator QueryGenerator, qv QueryValidator, exec QueryExecutor, formatter AnswerFormatter, cache *redis.Client, recorder HistoryRecorder, config Config) *Service {
	if config.MaxResults <= 0 {
		config.MaxResults = executor.DefaultRowCap
	}
	if config.FewShotCount <= 0 {
		config.FewShotCount = llm.DefaultFewShotCount
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}

	return &Service{
		generator: generator,
		validator: qv,
		executor:  exec,
		formatter: formatter,
		cache:     cache,
		history:   recorder,
		config:    config,
		logger:    observability.NewLogger("chat-service"),
	}
}

// SetEmbeddingRecorder enables persisting question embeddings for
// successful runs. Optional; a nil recorder disables it.
func (s *Service) SetEmbeddingRecorder(rec EmbeddingRecorder) {
	s.embeddings = rec
}

// Ask runs the full pipeline for one question. It always returns a
// terminal outcome; pipeline failures are encoded in the status, never
// surfaced as an error.
func (s *Service) Ask(ctx context.Context, req *Request) *RunOutcome {
	start := time.Now()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	report := req.ReportContext()
	s.logger.Info(ctx, "Processing question", map[string]interface{}{
		"question": truncate(req.Question, 100),
		"report":   string(report),
	})

	if cached, ok := s.getCachedOutcome(ctx, req); ok {
		cached.CacheHit = true
		cached.Timing.TotalMs = time.Since(start).Milliseconds()
		s.finish(ctx, req, cached, "", start)
		return cached
	}

	outcome := &RunOutcome{Timestamp: time.Now()}
	var executedQuery string

	// Stage 1: generate SQL
	genStart := time.Now()
	gen := s.generator.Generate(ctx, report, req.Question, req.Filters, s.config.FewShotCount)
	outcome.Timing.GenerationMs = time.Since(genStart).Milliseconds()
	outcome.Usage.TokensUsed += gen.TokensUsed
	outcome.Usage.CostEstimateUSD += gen.CostEstimateUSD

	if !gen.Succeeded {
		outcome.Status = StatusGenerationFailed
		outcome.Answer = msgGenerationFailed
		outcome.Error = gen.FailureMessage
		s.finish(ctx, req, outcome, executedQuery, start)
		return outcome
	}

	// Stage 2: validate
	verdict := s.validator.Validate(gen.QueryText)
	if !verdict.IsValid {
		rejection := apperrors.NewSQLValidationError(string(verdict.RejectionKind), verdict.Message)
		s.logger.Error(ctx, "Generated query rejected", rejection, map[string]interface{}{
			"rejection_kind": string(verdict.RejectionKind),
		})
		observability.GetGlobalMetrics().Inc(observability.MetricChatSafetyRejection, map[string]string{
			"rejection_kind": string(verdict.RejectionKind),
		})
		outcome.Status = StatusValidationFailed
		outcome.Answer = msgValidationFailed
		outcome.Error = verdict.Message
		if req.IncludeQuery {
			outcome.Query = gen.QueryText
		}
		s.finish(ctx, req, outcome, executedQuery, start)
		return outcome
	}

	query := verdict.SanitizedQuery
	executedQuery = query
	if req.IncludeQuery {
		outcome.Query = query
	}

	// Stage 3: execute
	execStart := time.Now()
	result, err := s.executor.Execute(ctx, query, s.config.MaxResults)
	outcome.Timing.ExecutionMs = time.Since(execStart).Milliseconds()

	if err != nil {
		s.logger.Error(ctx, "Query execution failed", err, map[string]interface{}{
			"question": truncate(req.Question, 100),
		})
		outcome.Status = StatusExecutionFailed
		outcome.Answer = msgExecutionFailed
		outcome.Error = "query execution failed"
		s.finish(ctx, req, outcome, executedQuery, start)
		return outcome
	}

	outcome.RowCount = result.RowCount
	if req.IncludeData {
		outcome.Data = result.Rows
	}

	// Stage 4: empty result sets are a distinct successful outcome
	if result.RowCount == 0 {
		outcome.Status = StatusNoResults
		outcome.Answer = msgNoResults
		s.finish(ctx, req, outcome, executedQuery, start)
		return outcome
	}

	// Stage 5: format. A remote failure degrades to the local fallback
	// inside the formatter; the run still succeeds.
	formatStart := time.Now()
	answer, fellBack := s.formatter.Format(ctx, report, req.Question, query, result.Rows)
	outcome.Timing.FormattingMs = time.Since(formatStart).Milliseconds()

	if fellBack {
		s.logger.Warn(ctx, "Answer formatting fell back to local rendering", nil)
	}

	outcome.Status = StatusSuccess
	outcome.Answer = answer
	s.finish(ctx, req, outcome, executedQuery, start)

	if !fellBack {
		s.cacheOutcome(ctx, req, outcome)
	}
	return outcome
}

// finish closes out a run: stamps total latency, increments the
// process-wide counters exactly once, records metrics, and persists the
// run if a history recorder is configured.
func (s *Service) finish(ctx context.Context, req *Request, outcome *RunOutcome, executedQuery string, start time.Time) {
	if outcome.Timing.TotalMs == 0 {
		outcome.Timing.TotalMs = time.Since(start).Milliseconds()
	}

	succeeded := outcome.Status == StatusSuccess || outcome.Status == StatusNoResults
	s.totalRuns.Add(1)
	if succeeded {
		s.succeededRuns.Add(1)
	} else {
		s.failedRuns.Add(1)
	}

	observability.RecordChatRunMetrics(
		time.Duration(outcome.Timing.TotalMs)*time.Millisecond,
		succeeded, outcome.CacheHit, string(outcome.Status))

	s.logger.Info(ctx, "Run finished", map[string]interface{}{
		"status":      string(outcome.Status),
		"row_count":   outcome.RowCount,
		"total_ms":    outcome.Timing.TotalMs,
		"tokens_used": outcome.Usage.TokensUsed,
		"cache_hit":   outcome.CacheHit,
	})

	if s.embeddings != nil && !outcome.CacheHit && outcome.Status == StatusSuccess && executedQuery != "" {
		if err := s.embeddings.StoreQuestionEmbedding(ctx, req.Question,
			llm.QuestionEmbedding(req.Question), executedQuery); err != nil {
			s.logger.Warn(ctx, "Failed to persist question embedding", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if s.history != nil && !outcome.CacheHit {
		if _, err := s.history.RecordRun(ctx, history.Record{
			Question:   req.Question,
			Query:      executedQuery,
			Status:     string(outcome.Status),
			RowCount:   outcome.RowCount,
			TokensUsed: outcome.Usage.TokensUsed,
			LatencyMs:  outcome.Timing.TotalMs,
		}); err != nil {
			s.logger.Warn(ctx, "Failed to persist chat run", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// Stats returns a snapshot of the process-wide counters.
func (s *Service) Stats() Statistics {
	return Statistics{
		TotalRuns:     s.totalRuns.Load(),
		SucceededRuns: s.succeededRuns.Load(),
		FailedRuns:    s.failedRuns.Load(),
	}
}

// ResetStats zeroes the counters. Operator action only.
func (s *Service) ResetStats() {
	s.totalRuns.Store(0)
	s.succeededRuns.Store(0)
	s.failedRuns.Store(0)
}

// cacheKey derives a stable key from the report context, question and
// filters, so the same question never crosses contexts.
func cacheKey(req *Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", req.ReportContext())
	h.Write([]byte(req.Question))

	keys := make([]string, 0, len(req.Filters))
	for k := range req.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, req.Filters[k])
	}
	return "chat:" + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) getCachedOutcome(ctx context.Context, req *Request) (*RunOutcome, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, cacheKey(req)).Result()
	if err != nil {
		return nil, false
	}

	var outcome RunOutcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		return nil, false
	}
	return &outcome, true
}

func (s *Service) cacheOutcome(ctx context.Context, req *Request, outcome *RunOutcome) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, cacheKey(req), data, s.config.CacheTTL).Err(); err != nil {
		s.logger.Warn(ctx, "Failed to cache run outcome", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
