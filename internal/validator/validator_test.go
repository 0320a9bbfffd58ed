package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_EmptyInput(t *testing.T) {
	v := New(DefaultConfig())

	for _, input := range []string{"", "   ", "\n\t  "} {
		verdict := v.Validate(input)
		assert.False(t, verdict.IsValid)
		assert.Equal(t, RejectionEmptyInput, verdict.RejectionKind)
	}
}

func TestValidate_TooLong(t *testing.T) {
	config := DefaultConfig()
	config.MaxQueryLength = 50
	v := New(config)

	long := "SELECT " + strings.Repeat("saleamt_ason, ", 20) + "customername FROM sales_analytics"
	verdict := v.Validate(long)
	assert.False(t, verdict.IsValid)
	assert.Equal(t, RejectionTooLong, verdict.RejectionKind)
}

func TestValidate_MultipleStatements(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name  string
		query string
		valid bool
	}{
		{
			name:  "stacked drop is rejected before keyword scan",
			query: "SELECT 1; DROP TABLE x",
			valid: false,
		},
		{
			name:  "two selects rejected",
			query: "SELECT 1; SELECT 2",
			valid: false,
		},
		{
			name:  "single trailing terminator allowed",
			query: "SELECT customername FROM sales_analytics;",
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.query)
			assert.Equal(t, tt.valid, verdict.IsValid)
			if !tt.valid {
				assert.Equal(t, RejectionMultipleStatements, verdict.RejectionKind)
			}
		})
	}
}

func TestValidate_NotASelect(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name    string
		query   string
		keyword string
	}{
		{"drop statement", "DROP TABLE sales_analytics", "DROP"},
		{"insert statement", "INSERT INTO sales_analytics VALUES (1)", "INSERT"},
		{"explain statement", "EXPLAIN SELECT 1", "EXPLAIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.query)
			require.False(t, verdict.IsValid)
			assert.Equal(t, RejectionNotASelect, verdict.RejectionKind)
			assert.Contains(t, verdict.Message, tt.keyword)
		})
	}
}

func TestValidate_CTE(t *testing.T) {
	cte := "WITH top AS (SELECT customername, SUM(saleamt_ason) AS s FROM sales_analytics GROUP BY customername) SELECT * FROM top LIMIT 5"

	t.Run("allowed by default", func(t *testing.T) {
		verdict := New(DefaultConfig()).Validate(cte)
		assert.True(t, verdict.IsValid)
	})

	t.Run("rejected when disabled", func(t *testing.T) {
		config := DefaultConfig()
		config.AllowCTE = false
		verdict := New(config).Validate(cte)
		require.False(t, verdict.IsValid)
		assert.Equal(t, RejectionNotASelect, verdict.RejectionKind)
	})

	t.Run("with clause without select rejected", func(t *testing.T) {
		verdict := New(DefaultConfig()).Validate("WITH x AS (VALUES (1)) TABLE x")
		require.False(t, verdict.IsValid)
		assert.Equal(t, RejectionNotASelect, verdict.RejectionKind)
	})
}

func TestValidate_DeniedKeywords(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"delete inside select", "SELECT * FROM sales_analytics WHERE 1 = (DELETE FROM sales_analytics)"},
		{"update subexpression", "SELECT * FROM sales_analytics WHERE UPDATE IS NOT NULL"},
		{"truncate", "SELECT TRUNCATE FROM sales_analytics"},
		{"grant", "SELECT * FROM sales_analytics WHERE GRANT = 1"},
		{"copy", "SELECT * FROM sales_analytics WHERE COPY = 1"},
		{"lowercase delete", "select * from sales_analytics where 1 = (delete from sales_analytics)"},
		{"mixed case drop", "SELECT * FROM sales_analytics WHERE DrOp = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.query)
			require.False(t, verdict.IsValid)
			assert.Equal(t, RejectionDeniedKeyword, verdict.RejectionKind)
		})
	}
}

// Word-boundary matching: a denylisted verb appearing only inside a
// longer identifier must not trip the keyword scan.
func TestValidate_KeywordWordBoundaries(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"updated_at column", "SELECT updated_at FROM sales_analytics LIMIT 10"},
		{"created_on column", "SELECT created_on FROM sales_analytics LIMIT 10"},
		{"deleted_flag column", "SELECT deleted_flag FROM sales_analytics LIMIT 10"},
		{"callsign column", "SELECT callsign FROM sales_analytics LIMIT 10"},
		{"grants_total column", "SELECT grants_total FROM sales_analytics LIMIT 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.query)
			assert.True(t, verdict.IsValid, "message: %s", verdict.Message)
		})
	}
}

func TestValidate_InjectionPatterns(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name  string
		query string
		valid bool
	}{
		{
			name:  "inline comment",
			query: "SELECT * FROM sales_analytics -- WHERE customer_state = 'X'\nLIMIT 5",
			valid: false,
		},
		{
			name:  "trailing comment tolerated",
			query: "SELECT * FROM sales_analytics LIMIT 5 --",
			valid: true,
		},
		{
			name:  "block comment",
			query: "SELECT /* hidden */ * FROM sales_analytics",
			valid: false,
		},
		{
			name:  "tautology with quotes",
			query: "SELECT * FROM sales_analytics WHERE name = '' OR '1'='1'",
			valid: false,
		},
		{
			name:  "pg_sleep timing attack",
			query: "SELECT PG_SLEEP(10) FROM sales_analytics",
			valid: false,
		},
		{
			name:  "single union tolerated",
			query: "SELECT customername FROM sales_analytics UNION SELECT customername FROM sales_analytics",
			valid: true,
		},
		{
			name: "repeated unions rejected",
			query: "SELECT 1 FROM sales_analytics UNION SELECT 2 FROM sales_analytics " +
				"UNION SELECT 3 FROM sales_analytics UNION SELECT 4 FROM sales_analytics",
			valid: false,
		},
		{
			name:  "server version lookup",
			query: "SELECT @@VERSION FROM sales_analytics",
			valid: false,
		},
		{
			name:  "file read",
			query: "SELECT PG_READ_FILE('/etc/passwd') FROM sales_analytics",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.query)
			assert.Equal(t, tt.valid, verdict.IsValid, "message: %s", verdict.Message)
			if !tt.valid {
				assert.Equal(t, RejectionInjectionPattern, verdict.RejectionKind)
			}
		})
	}
}

// Rejection messages must describe the category without echoing the
// matched keyword or pattern back to the caller.
func TestValidate_MessagesNeverEchoMatchedText(t *testing.T) {
	v := New(DefaultConfig())

	verdict := v.Validate("SELECT * FROM sales_analytics WHERE 1 = (DELETE FROM sales_analytics)")
	require.False(t, verdict.IsValid)
	assert.NotContains(t, strings.ToUpper(verdict.Message), "DELETE")

	verdict = v.Validate("SELECT PG_SLEEP(10) FROM sales_analytics")
	require.False(t, verdict.IsValid)
	assert.NotContains(t, strings.ToUpper(verdict.Message), "PG_SLEEP")
}

func TestValidate_TableAllowlist(t *testing.T) {
	t.Run("allowed table passes", func(t *testing.T) {
		verdict := New(DefaultConfig()).Validate("SELECT * FROM sales_analytics LIMIT 5")
		assert.True(t, verdict.IsValid)
		assert.Empty(t, verdict.Warnings)
	})

	t.Run("schema-qualified table passes", func(t *testing.T) {
		verdict := New(DefaultConfig()).Validate("SELECT * FROM public.sales_analytics LIMIT 5")
		assert.True(t, verdict.IsValid)
	})

	t.Run("unknown table rejected when subqueries disabled", func(t *testing.T) {
		config := DefaultConfig()
		config.AllowSubqueries = false
		verdict := New(config).Validate("SELECT * FROM pg_catalog.pg_tables LIMIT 5")
		require.False(t, verdict.IsValid)
		assert.Equal(t, RejectionDisallowedTable, verdict.RejectionKind)
	})

	t.Run("unknown name warned when subqueries allowed", func(t *testing.T) {
		verdict := New(DefaultConfig()).Validate(
			"SELECT t.customername FROM (SELECT customername FROM sales_analytics) t LIMIT 5")
		assert.True(t, verdict.IsValid)
	})

	t.Run("join against unknown table rejected when subqueries disabled", func(t *testing.T) {
		config := DefaultConfig()
		config.AllowSubqueries = false
		verdict := New(config).Validate(
			"SELECT * FROM sales_analytics s JOIN secrets x ON s.id = x.id")
		require.False(t, verdict.IsValid)
		assert.Equal(t, RejectionDisallowedTable, verdict.RejectionKind)
	})
}

func TestValidate_SanitizedQuery(t *testing.T) {
	v := New(DefaultConfig())

	t.Run("tautology-free where clause passes unchanged", func(t *testing.T) {
		query := "SELECT * FROM sales_analytics WHERE 1=1"
		verdict := v.Validate("  " + query + "  ")
		require.True(t, verdict.IsValid)
		assert.Equal(t, query, verdict.SanitizedQuery)
	})

	t.Run("trailing terminator stripped", func(t *testing.T) {
		verdict := v.Validate("SELECT customername FROM sales_analytics;")
		require.True(t, verdict.IsValid)
		assert.Equal(t, "SELECT customername FROM sales_analytics", verdict.SanitizedQuery)
	})
}

// Validation is a pure function: the same input always yields the same
// verdict.
func TestValidate_Idempotent(t *testing.T) {
	v := New(DefaultConfig())

	inputs := []string{
		"",
		"SELECT * FROM sales_analytics LIMIT 5",
		"SELECT 1; DROP TABLE x",
		"DELETE FROM sales_analytics",
		"SELECT PG_SLEEP(10) FROM sales_analytics",
	}
	for _, input := range inputs {
		first := v.Validate(input)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, v.Validate(input))
		}
	}
}

func TestValidate_CheckOrdering(t *testing.T) {
	v := New(DefaultConfig())

	// Stacked statements are detected before the keyword scan runs.
	verdict := v.Validate("SELECT 1; DROP TABLE sales_analytics")
	assert.Equal(t, RejectionMultipleStatements, verdict.RejectionKind)

	// A non-SELECT leading keyword is reported before the denylist scan.
	verdict = v.Validate("TRUNCATE sales_analytics")
	assert.Equal(t, RejectionNotASelect, verdict.RejectionKind)
}
