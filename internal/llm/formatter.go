package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seanankenbruck/analytics-chat/internal/observability"
)

const (
	answerMaxTokens = 500
	// Natural language benefits from slightly more variation than SQL.
	answerTemperature = 0.3

	// Rows beyond this are summarized, not embedded in the prompt.
	formatterPromptRowLimit = 20
	// Rows listed by the local fallback before eliding the rest.
	fallbackRowLimit = 10
)

const answerSystemPrompt = `You are a helpful sales analytics assistant.
Format query results into clear, conversational responses.
Use ₹ for currency, format large numbers with commas.
Round percentages to 2 decimal places.
Be concise but informative. Use bullet points for lists.
If results are empty, say "No data found for this query" and explain what that means.
Keep the response under 300 words.`

const stockAnswerSystemPrompt = `You are a helpful stock inventory assistant.
Format query results into clear, conversational responses.
Refer to stock/inventory data, not sales analytics.
Use ₹ for currency, format large numbers with commas.
Be concise but informative. Use bullet points for lists.
If results are empty, say "No data found for this query" and explain what that means.
Keep the response under 300 words.`

// Formatter turns query results into a natural-language answer. A
// remote failure degrades to a deterministic local rendering instead
// of failing the run.
type Formatter struct {
	client Client
	usage  *UsageTracker
	logger *observability.Logger
}

// NewFormatter creates an answer formatter sharing the generator's
// usage tracker.
func NewFormatter(client Client, usage *UsageTracker) *Formatter {
	return &Formatter{
		client: client,
		usage:  usage,
		logger: observability.NewLogger("answer-formatter"),
	}
}

// Format produces a natural-language answer for the given question and
// result rows, phrased for the requested report context. The second
// return value reports whether the local fallback was used. Format
// itself never fails.
func (f *Formatter) Format(ctx context.Context, report ReportContext, question, query string, rows []map[string]interface{}) (string, bool) {
	systemPrompt := answerSystemPrompt
	if report == ReportStockInventory {
		systemPrompt = stockAnswerSystemPrompt
	}

	start := time.Now()
	req := CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildAnswerPrompt(question, query, rows),
		MaxTokens:    answerMaxTokens,
		Temperature:  answerTemperature,
	}

	resp, err := f.client.Complete(ctx, req)
	if err != nil {
		f.usage.Record(0, 0)
		f.logger.Warn(ctx, "Answer formatting failed, using local fallback", map[string]interface{}{
			"failure_kind": string(ClassifyError(err)),
			"duration_ms":  time.Since(start).Milliseconds(),
		})
		return FallbackFormat(rows), true
	}

	f.usage.Record(resp.TotalTokens(), EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens))

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return FallbackFormat(rows), true
	}
	return answer, false
}

func buildAnswerPrompt(question, query string, rows []map[string]interface{}) string {
	var results string
	switch {
	case len(rows) == 0:
		results = "No results"
	case len(rows) <= formatterPromptRowLimit:
		results = renderRows(rows)
	default:
		results = fmt.Sprintf("%s\n... and %d more rows",
			renderRows(rows[:formatterPromptRowLimit]), len(rows)-formatterPromptRowLimit)
	}

	return fmt.Sprintf("ORIGINAL QUESTION:\n%s\n\nSQL EXECUTED:\n%s\n\nQUERY RESULTS:\n%s\n\nProvide a natural language response:",
		question, query, results)
}

func renderRows(rows []map[string]interface{}) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Row %d: %s", i+1, renderRow(row))
	}
	return b.String()
}

func renderRow(row map[string]interface{}) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, row[k]))
	}
	return strings.Join(parts, ", ")
}

// FallbackFormat deterministically renders result rows without any
// external call. It lists up to ten rows as field/value pairs and
// notes how many were elided.
func FallbackFormat(rows []map[string]interface{}) string {
	if len(rows) == 0 {
		return "No data found for this query. Try broadening your filters or asking about a different time period."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(rows))

	shown := rows
	if len(shown) > fallbackRowLimit {
		shown = shown[:fallbackRowLimit]
	}
	for _, row := range shown {
		fmt.Fprintf(&b, "• %s\n", renderRow(row))
	}
	if len(rows) > fallbackRowLimit {
		fmt.Fprintf(&b, "...and %d more", len(rows)-fallbackRowLimit)
	}
	return strings.TrimSpace(b.String())
}
