package llm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/seanankenbruck/analytics-chat/internal/observability"
	"github.com/seanankenbruck/analytics-chat/internal/semantic"
)

const (
	// SQL output is short, so the ceiling stays small.
	sqlMaxTokens   = 500
	sqlTemperature = 0.1

	// DefaultFewShotCount is the number of example pairs embedded in
	// the generation prompt when the caller does not override it.
	DefaultFewShotCount = 5
)

var sqlExtractPattern = regexp.MustCompile(`(?is)(SELECT\s+.*?)(?:;|$)`)

// GenerationResult is the outcome of one SQL generation attempt.
// Token and cost fields are populated on failure too when the
// underlying call consumed tokens before erroring.
type GenerationResult struct {
	QueryText       string
	TokensUsed      int
	CostEstimateUSD float64
	Succeeded       bool
	FailureKind     FailureKind
	FailureMessage  string
}

// Generator converts natural language questions into candidate SQL
// queries using the configured completion client and the semantic
// vocabulary registered for the requested report context.
type Generator struct {
	client    Client
	resolvers map[ReportContext]*semantic.Resolver
	usage     *UsageTracker
	model     string
	logger    *observability.Logger
}

// NewGenerator creates a SQL generator with the given resolver serving
// the sales analytics context. The usage tracker may be shared with the
// answer formatter so token counters cover both call sites.
func NewGenerator(client Client, resolver *semantic.Resolver, usage *UsageTracker, model string) *Generator {
	if model == "" {
		model = defaultModel
	}
	return &Generator{
		client:    client,
		resolvers: map[ReportContext]*semantic.Resolver{ReportSalesAnalytics: resolver},
		usage:     usage,
		model:     model,
		logger:    observability.NewLogger("sql-generator"),
	}
}

// RegisterContext adds a vocabulary for an additional report context.
// Must be called before the generator serves requests.
func (g *Generator) RegisterContext(report ReportContext, resolver *semantic.Resolver) {
	g.resolvers[report] = resolver
}

// resolverFor returns the resolver for the requested context, falling
// back to sales analytics when the context has no vocabulary.
func (g *Generator) resolverFor(report ReportContext) *semantic.Resolver {
	if r, ok := g.resolvers[report]; ok {
		return r
	}
	return g.resolvers[ReportSalesAnalytics]
}

// Generate builds the prompt pair for the requested report context,
// issues one completion call and extracts a single cleaned SQL
// statement from the response.
func (g *Generator) Generate(ctx context.Context, report ReportContext, question string, filters map[string]string, fewShotCount int) GenerationResult {
	if fewShotCount <= 0 {
		fewShotCount = DefaultFewShotCount
	}

	start := time.Now()
	req := CompletionRequest{
		SystemPrompt: g.buildSystemPrompt(report, fewShotCount),
		UserPrompt:   buildUserPrompt(question, filters),
		MaxTokens:    sqlMaxTokens,
		Temperature:  sqlTemperature,
	}

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		kind := ClassifyError(err)
		g.usage.Record(0, 0)
		g.logger.Error(ctx, "SQL generation failed", err, map[string]interface{}{
			"failure_kind": string(kind),
			"duration_ms":  time.Since(start).Milliseconds(),
		})
		return GenerationResult{
			Succeeded:      false,
			FailureKind:    kind,
			FailureMessage: UserSafeMessage(err),
		}
	}

	tokens := resp.TotalTokens()
	cost := EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens)
	g.usage.Record(tokens, cost)

	query := CleanSQLResponse(resp.Text)
	g.logger.Info(ctx, "SQL generated", map[string]interface{}{
		"tokens_used": tokens,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return GenerationResult{
		QueryText:       query,
		TokensUsed:      tokens,
		CostEstimateUSD: cost,
		Succeeded:       true,
	}
}

func (g *Generator) buildSystemPrompt(report ReportContext, fewShotCount int) string {
	resolver := g.resolverFor(report)

	heading := "You are an expert SQL analyst for a sales analytics system. "
	if report == ReportStockInventory {
		heading = "You are an expert SQL analyst for a stock inventory system. "
	}

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("Convert natural language questions into accurate PostgreSQL queries.\n\n")
	b.WriteString(resolver.PromptContext())

	examples := resolver.FewShotExamples(fewShotCount)
	if len(examples) > 0 {
		b.WriteString("\n## EXAMPLE QUERIES\n")
		for i, ex := range examples {
			fmt.Fprintf(&b, "\n**Example %d:**\nQuestion: %s\nSQL:\n%s\n", i+1, ex.Question, ex.Query)
		}
	}

	b.WriteString("\n## RULES\n")
	b.WriteString("1. Generate exactly one SELECT statement, nothing else\n")
	b.WriteString("2. Always aggregate measures, never select raw measure columns\n")
	b.WriteString("3. Use ILIKE for text matching on dimension values\n")
	b.WriteString("4. Always include a LIMIT clause\n")
	b.WriteString("5. Return only SQL, no explanations\n")
	return b.String()
}

// buildUserPrompt renders the question with active filters. Filters
// carrying an empty or "ALL" sentinel value are dashboard defaults and
// are omitted rather than passed as literal conditions.
func buildUserPrompt(question string, filters map[string]string) string {
	lines := make([]string, 0, len(filters))
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := filters[k]
		if v == "" || strings.EqualFold(v, "ALL") {
			continue
		}
		lines = append(lines, fmt.Sprintf("  - %s: %s", k, v))
	}

	filterStr := "None"
	if len(lines) > 0 {
		filterStr = strings.Join(lines, "\n")
	}

	return fmt.Sprintf("CURRENT FILTERS APPLIED:\n%s\n\nUSER QUESTION:\n%s\n\nGenerate the SQL query:", filterStr, question)
}

// CleanSQLResponse strips markdown fences and surrounding commentary
// from a model response, keeping the first statement from the first
// SELECT through to the first terminator or end of string.
func CleanSQLResponse(content string) string {
	sql := strings.TrimSpace(content)

	if strings.HasPrefix(sql, "```sql") {
		sql = sql[6:]
	} else if strings.HasPrefix(sql, "```") {
		sql = sql[3:]
	}
	sql = strings.TrimSuffix(strings.TrimSpace(sql), "```")
	sql = strings.TrimSpace(sql)

	if match := sqlExtractPattern.FindStringSubmatch(sql); match != nil {
		sql = strings.TrimSpace(match[1])
	}
	return sql
}
