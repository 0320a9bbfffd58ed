// Package semantic provides the vocabulary document and resolver that map
// business terms to concrete column and SQL expressions.
package semantic

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	apperrors "github.com/seanankenbruck/analytics-chat/internal/errors"
)

// Column roles
const (
	RoleMeasure   = "measure"
	RoleDimension = "dimension"
)

// Column describes one physical column of the analytical table
type Column struct {
	Name        string   `json:"-"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases,omitempty"`
	Role        string   `json:"role"` // measure or dimension
	Aggregation string   `json:"aggregation,omitempty"`
}

// Expression returns the SQL expression for the column: aggregated for
// measures, the bare column for dimensions.
func (c Column) Expression() string {
	if c.Role == RoleMeasure && c.Aggregation != "" {
		return fmt.Sprintf("%s(%s)", c.Aggregation, c.Name)
	}
	return c.Name
}

// DerivedMetric is a calculated field with a full SQL expression
type DerivedMetric struct {
	Name        string   `json:"-"`
	Description string   `json:"description,omitempty"`
	Expression  string   `json:"expression"`
	Aliases     []string `json:"aliases,omitempty"`
}

// BusinessTerm maps a natural-language phrase to a literal filter expression
type BusinessTerm struct {
	Term        string   `json:"-"`
	Description string   `json:"description,omitempty"`
	Expression  string   `json:"expression"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Example is a question/query pair embedded in the generation prompt
type Example struct {
	Question string `json:"question"`
	Query    string `json:"query"`
}

// Vocabulary is the immutable semantic document loaded from JSON.
// All lookup indexes are built at load time; after Load returns, the
// document is never mutated.
type Vocabulary struct {
	Table          string                   `json:"table"`
	Columns        map[string]Column        `json:"columns"`
	DerivedMetrics map[string]DerivedMetric `json:"derived_metrics"`
	BusinessTerms  map[string]BusinessTerm  `json:"business_terms"`
	Examples       []Example                `json:"examples"`

	columnIndex   map[string]string // alias -> canonical column name
	metricIndex   map[string]string // alias -> derived metric name
	termIndex     map[string]string // alias -> business term key
	promptContext string            // rendered once at load
}

// LoadVocabulary reads and indexes a vocabulary document from a JSON file.
// It fails if the document cannot be parsed or any alias collides across
// two canonical entries.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewVocabularyLoadError(err, path)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary builds a Vocabulary from raw JSON
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary document: %w", err)
	}

	if v.Table == "" {
		return nil, fmt.Errorf("vocabulary document has no table name")
	}

	// Backfill names from map keys
	for name, col := range v.Columns {
		col.Name = name
		v.Columns[name] = col
	}
	for name, dm := range v.DerivedMetrics {
		dm.Name = name
		v.DerivedMetrics[name] = dm
	}
	for term, bt := range v.BusinessTerms {
		bt.Term = term
		v.BusinessTerms[term] = bt
	}

	if err := v.buildIndexes(); err != nil {
		return nil, err
	}
	v.promptContext = v.renderPromptContext()

	return &v, nil
}

// buildIndexes builds case-insensitive alias lookups. An alias registered
// for two different canonical entries is a construction error.
func (v *Vocabulary) buildIndexes() error {
	v.columnIndex = make(map[string]string)
	v.metricIndex = make(map[string]string)
	v.termIndex = make(map[string]string)

	register := func(index map[string]string, alias, canonical string) error {
		key := normalizeTerm(alias)
		if key == "" {
			return nil
		}
		if existing, ok := index[key]; ok && existing != canonical {
			return apperrors.NewAliasCollisionError(alias, existing, canonical)
		}
		index[key] = canonical
		return nil
	}

	for name, col := range v.Columns {
		if err := register(v.columnIndex, name, name); err != nil {
			return err
		}
		for _, alias := range col.Aliases {
			if err := register(v.columnIndex, alias, name); err != nil {
				return err
			}
		}
	}

	for name, dm := range v.DerivedMetrics {
		if err := register(v.metricIndex, name, name); err != nil {
			return err
		}
		for _, alias := range dm.Aliases {
			if err := register(v.metricIndex, alias, name); err != nil {
				return err
			}
		}
	}

	for term, bt := range v.BusinessTerms {
		if err := register(v.termIndex, term, term); err != nil {
			return err
		}
		for _, alias := range bt.Aliases {
			if err := register(v.termIndex, alias, term); err != nil {
				return err
			}
		}
	}

	return nil
}

// normalizeTerm lowercases and trims a lookup term
func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// FewShot returns up to n example pairs in document order
func (v *Vocabulary) FewShot(n int) []Example {
	if n <= 0 || len(v.Examples) == 0 {
		return nil
	}
	if n > len(v.Examples) {
		n = len(v.Examples)
	}
	out := make([]Example, n)
	copy(out, v.Examples[:n])
	return out
}

// PromptContext returns the rendered schema context for generation prompts.
// The rendering is deterministic for a given document, so prompts are
// reproducible across processes for the same vocabulary version.
func (v *Vocabulary) PromptContext() string {
	return v.promptContext
}

func (v *Vocabulary) renderPromptContext() string {
	var b strings.Builder

	measures := make([]string, 0, len(v.Columns))
	dimensions := make([]string, 0, len(v.Columns))
	for name, col := range v.Columns {
		if col.Role == RoleMeasure {
			measures = append(measures, name)
		} else {
			dimensions = append(dimensions, name)
		}
	}
	sort.Strings(measures)
	sort.Strings(dimensions)

	b.WriteString("MEASURES (always use aggregation functions):\n")
	for _, name := range measures {
		col := v.Columns[name]
		fmt.Fprintf(&b, "  - %s: %s\n    SQL: %s\n", col.Name, col.Description, col.Expression())
		if len(col.Aliases) > 0 {
			fmt.Fprintf(&b, "    Aliases: %s\n", strings.Join(firstN(col.Aliases, 5), ", "))
		}
	}

	metricNames := sortedKeys(v.DerivedMetrics)
	if len(metricNames) > 0 {
		b.WriteString("\nDERIVED METRICS (calculated fields):\n")
		for _, name := range metricNames {
			dm := v.DerivedMetrics[name]
			fmt.Fprintf(&b, "  - %s: %s\n    SQL: %s\n", dm.Name, dm.Description, dm.Expression)
			if len(dm.Aliases) > 0 {
				fmt.Fprintf(&b, "    Aliases: %s\n", strings.Join(firstN(dm.Aliases, 3), ", "))
			}
		}
	}

	b.WriteString("\nDIMENSIONS (grouping/filtering columns):\n")
	for _, name := range dimensions {
		col := v.Columns[name]
		fmt.Fprintf(&b, "  - %s: %s\n", col.Name, col.Description)
		if len(col.Aliases) > 0 {
			fmt.Fprintf(&b, "    Aliases: %s\n", strings.Join(firstN(col.Aliases, 4), ", "))
		}
	}

	termKeys := make([]string, 0, len(v.BusinessTerms))
	for term := range v.BusinessTerms {
		termKeys = append(termKeys, term)
	}
	sort.Strings(termKeys)
	if len(termKeys) > 0 {
		b.WriteString("\nBUSINESS TERM MAPPINGS (use the exact SQL expression):\n")
		for _, term := range termKeys {
			bt := v.BusinessTerms[term]
			fmt.Fprintf(&b, "  - %q\n    SQL: %s\n", bt.Term, bt.Expression)
			if len(bt.Aliases) > 0 {
				fmt.Fprintf(&b, "    Aliases: %s\n", strings.Join(firstN(bt.Aliases, 5), ", "))
			}
		}
	}

	return b.String()
}

func sortedKeys(m map[string]DerivedMetric) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
