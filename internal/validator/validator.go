// Package validator enforces the safety rules every candidate SQL query
// must pass before execution: single statement, read-only, no denylisted
// keywords, no injection signatures, allowlisted tables only.
package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/seanankenbruck/analytics-chat/internal/observability"
)

// RejectionKind classifies why a candidate query was rejected.
type RejectionKind string

const (
	RejectionEmptyInput         RejectionKind = "empty_input"
	RejectionTooLong            RejectionKind = "too_long"
	RejectionMultipleStatements RejectionKind = "multiple_statements"
	RejectionNotASelect         RejectionKind = "not_a_select"
	RejectionDeniedKeyword      RejectionKind = "denied_keyword"
	RejectionInjectionPattern   RejectionKind = "injection_pattern"
	RejectionDisallowedTable    RejectionKind = "disallowed_table"
)

// Verdict is the outcome of validating one candidate query. On success
// SanitizedQuery carries the trimmed query with a single trailing
// terminator stripped; the text is never rewritten beyond that.
type Verdict struct {
	IsValid        bool
	SanitizedQuery string
	RejectionKind  RejectionKind
	Message        string
	Warnings       []string
}

// Config controls validation limits and the table allowlist.
type Config struct {
	AllowedTables   []string
	MaxQueryLength  int
	AllowSubqueries bool
	AllowCTE        bool
}

// DefaultConfig allows the two analytical tables with standard limits.
func DefaultConfig() Config {
	return Config{
		AllowedTables: []string{
			"sales_analytics",
			"public.sales_analytics",
			"stock_gw",
			"public.stock_gw",
		},
		MaxQueryLength:  10000,
		AllowSubqueries: true,
		AllowCTE:        true,
	}
}

// deniedKeywords are statement verbs that can modify data or state.
// Kept in a fixed order so the same query always fails on the same
// keyword.
var deniedKeywords = []string{
	// Data modification
	"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT",
	// Schema modification
	"DROP", "CREATE", "ALTER", "TRUNCATE", "RENAME",
	// Permissions
	"GRANT", "REVOKE", "DENY",
	// Execution
	"EXEC", "EXECUTE", "CALL",
	// Transaction control
	"COMMIT", "ROLLBACK", "SAVEPOINT",
	// PostgreSQL maintenance and messaging
	"COPY", "VACUUM", "ANALYZE", "CLUSTER", "REINDEX",
	"LOCK", "LISTEN", "NOTIFY", "UNLISTEN", "LOAD",
	// File operations
	"INTO OUTFILE", "INTO DUMPFILE", "LOAD_FILE",
}

// injectionPatterns are substring signatures of common attack shapes.
// Matching is done on the uppercased query.
var injectionPatterns = []string{
	// Comment delimiters
	"--", "/*", "*/", "#",
	// Union-based extraction
	"UNION ALL SELECT", "UNION SELECT",
	// Stacked statements
	";--", "; --", ";/*",
	// Time-based blind injection
	"SLEEP(", "WAITFOR", "BENCHMARK(", "PG_SLEEP(",
	// Tautologies
	"' OR '1'='1", "' OR 1=1", "\" OR \"1\"=\"1", "OR 1=1--", "' AND '1'='1",
	// Error-based extraction
	"EXTRACTVALUE(", "UPDATEXML(", "EXP(",
	// System probing
	"@@VERSION", "VERSION()", "DATABASE()", "USER()",
	"CURRENT_USER", "SYSTEM_USER",
	// File access
	"LOAD_FILE", "INTO OUTFILE", "INTO DUMPFILE",
	"PG_READ_FILE", "PG_WRITE_FILE", "LO_IMPORT", "LO_EXPORT",
}

var (
	keywordPatterns  []*regexp.Regexp
	fromTablePattern = regexp.MustCompile(`\bFROM\s+(["']?[\w.]+["']?)`)
	joinTablePattern = regexp.MustCompile(`\bJOIN\s+(["']?[\w.]+["']?)`)
)

func init() {
	keywordPatterns = make([]*regexp.Regexp, len(deniedKeywords))
	for i, kw := range deniedKeywords {
		// Word boundaries so identifiers like updated_at never match UPDATE.
		keywordPatterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
}

// Validator validates candidate SQL queries. It holds only immutable
// configuration, so a single instance is safe for concurrent use.
type Validator struct {
	config        Config
	allowedLookup map[string]bool
	logger        *observability.Logger
}

// New creates a validator with the given configuration.
func New(config Config) *Validator {
	lookup := make(map[string]bool, len(config.AllowedTables))
	for _, t := range config.AllowedTables {
		lookup[strings.ToLower(t)] = true
	}
	return &Validator{
		config:        config,
		allowedLookup: lookup,
		logger:        observability.NewLogger("sql-validator"),
	}
}

// Validate runs all safety checks in a fixed order and returns on the
// first failure, so the same malformed input always fails for the same
// reason. It is a pure function of the input text and configuration.
func (v *Validator) Validate(sql string) Verdict {
	trimmed := strings.TrimSpace(sql)

	// Check 1: empty input
	if trimmed == "" {
		return reject(RejectionEmptyInput, "The query is empty.")
	}

	// Check 2: length limit
	if len(trimmed) > v.config.MaxQueryLength {
		return reject(RejectionTooLong,
			fmt.Sprintf("The query exceeds the maximum length of %d characters.", v.config.MaxQueryLength))
	}

	upper := strings.ToUpper(trimmed)

	// Check 3: stacked statements
	if verdict, ok := checkMultipleStatements(trimmed); !ok {
		return verdict
	}

	// Check 4: must be SELECT (or WITH when CTEs are allowed)
	if verdict, ok := v.checkIsSelect(upper); !ok {
		return verdict
	}

	// Check 5: denylisted keywords
	if verdict, ok := checkDeniedKeywords(upper); !ok {
		return verdict
	}

	// Check 6: injection signatures
	if verdict, ok := checkInjectionPatterns(upper, trimmed); !ok {
		return verdict
	}

	// Check 7: table allowlist
	verdict, ok := v.checkTableNames(upper)
	if !ok {
		return verdict
	}

	return Verdict{
		IsValid:        true,
		SanitizedQuery: sanitize(trimmed),
		Warnings:       verdict.Warnings,
	}
}

func reject(kind RejectionKind, message string) Verdict {
	return Verdict{IsValid: false, RejectionKind: kind, Message: message}
}

// sanitize trims the query and strips a single trailing terminator.
// The text is never reconstructed or rewritten.
func sanitize(sql string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
}

// checkMultipleStatements rejects a separator anywhere except as a
// single trailing terminator.
func checkMultipleStatements(sql string) (Verdict, bool) {
	body := strings.TrimSpace(strings.TrimRight(sql, ";"))
	if strings.Contains(body, ";") {
		return reject(RejectionMultipleStatements,
			"Multiple SQL statements detected. Only a single SELECT query is allowed."), false
	}
	return Verdict{}, true
}

func (v *Validator) checkIsSelect(upper string) (Verdict, bool) {
	if strings.HasPrefix(upper, "SELECT") {
		return Verdict{}, true
	}

	if strings.HasPrefix(upper, "WITH") {
		if !v.config.AllowCTE {
			return reject(RejectionNotASelect,
				"Common table expressions (WITH clause) are not allowed."), false
		}
		if strings.Contains(upper, "SELECT") {
			return Verdict{}, true
		}
		return reject(RejectionNotASelect,
			"A WITH clause must contain a SELECT statement."), false
	}

	firstKeyword := "UNKNOWN"
	if fields := strings.Fields(upper); len(fields) > 0 {
		firstKeyword = fields[0]
	}
	return reject(RejectionNotASelect,
		fmt.Sprintf("Only SELECT queries are allowed. Found: %s", firstKeyword)), false
}

// checkDeniedKeywords scans for statement verbs using word-boundary
// matching. The rejection message names only the category, never the
// matched keyword.
func checkDeniedKeywords(upper string) (Verdict, bool) {
	for _, pattern := range keywordPatterns {
		if pattern.MatchString(upper) {
			return reject(RejectionDeniedKeyword,
				"The query contains an operation that is not permitted. Only read-only SELECT queries are allowed."), false
		}
	}
	return Verdict{}, true
}

// checkInjectionPatterns scans for attack signatures. A trailing
// comment is tolerated, and a UNION is tolerated unless it repeats more
// than twice. The rejection message never echoes the matched text.
func checkInjectionPatterns(upper, original string) (Verdict, bool) {
	for _, pattern := range injectionPatterns {
		patternUpper := strings.ToUpper(pattern)
		if !strings.Contains(upper, patternUpper) {
			continue
		}

		// A comment marker at the very end is a legitimate terminator.
		if pattern == "--" && strings.HasSuffix(strings.TrimSpace(original), "--") {
			continue
		}

		if strings.Contains(patternUpper, "UNION") {
			if strings.Count(upper, "UNION") > 2 {
				return reject(RejectionInjectionPattern,
					"The query matches a pattern that is not permitted."), false
			}
			continue
		}

		return reject(RejectionInjectionPattern,
			"The query matches a pattern that is not permitted."), false
	}
	return Verdict{}, true
}

// checkTableNames extracts names following FROM/JOIN tokens and checks
// them against the allowlist. A token scan cannot distinguish a real
// table from a derived-table alias, so unresolved names are only warned
// about when subqueries are permitted.
func (v *Validator) checkTableNames(upper string) (Verdict, bool) {
	references := map[string]bool{}
	for _, match := range fromTablePattern.FindAllStringSubmatch(upper, -1) {
		references[cleanTableName(match[1])] = true
	}
	for _, match := range joinTablePattern.FindAllStringSubmatch(upper, -1) {
		references[cleanTableName(match[1])] = true
	}

	var warnings []string
	for table := range references {
		if v.allowedLookup[table] {
			continue
		}
		if !v.config.AllowSubqueries {
			return reject(RejectionDisallowedTable,
				fmt.Sprintf("The query references a table that is not available. Allowed tables: %s",
					strings.Join(v.config.AllowedTables, ", "))), false
		}
		warnings = append(warnings, fmt.Sprintf("unresolved table reference %q (could be a subquery alias)", table))
		v.logger.Warn(context.Background(), "Unresolved table reference", map[string]interface{}{
			"table": table,
		})
	}

	return Verdict{Warnings: warnings}, true
}

func cleanTableName(raw string) string {
	return strings.ToLower(strings.Trim(raw, `"'`))
}
