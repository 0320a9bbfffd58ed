package semantic

import (
	"context"
	"sync/atomic"

	"github.com/seanankenbruck/analytics-chat/internal/observability"
)

// Resolver answers vocabulary lookups against the currently loaded document.
// The document is swapped whole on reload, so concurrent lookups never
// observe a half-updated vocabulary.
type Resolver struct {
	path   string
	vocab  atomic.Pointer[Vocabulary]
	logger *observability.Logger
}

// NewResolver loads the vocabulary document at path and returns a resolver.
// Loading fails fast on parse errors or alias collisions.
func NewResolver(path string) (*Resolver, error) {
	vocab, err := LoadVocabulary(path)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		path:   path,
		logger: observability.NewLogger("semantic-resolver"),
	}
	r.vocab.Store(vocab)
	return r, nil
}

// NewResolverFromVocabulary wraps an already parsed document. Used by tests
// and by callers that manage loading themselves.
func NewResolverFromVocabulary(vocab *Vocabulary) *Resolver {
	r := &Resolver{logger: observability.NewLogger("semantic-resolver")}
	r.vocab.Store(vocab)
	return r
}

// Vocabulary returns the current document
func (r *Resolver) Vocabulary() *Vocabulary {
	return r.vocab.Load()
}

// Reload re-reads the vocabulary file and swaps the document atomically.
// On failure the previous document stays active.
func (r *Resolver) Reload(ctx context.Context) error {
	if r.path == "" {
		return nil
	}

	vocab, err := LoadVocabulary(r.path)
	if err != nil {
		r.logger.Error(ctx, "Vocabulary reload failed, keeping previous document", err, map[string]interface{}{
			"path": r.path,
		})
		return err
	}

	r.vocab.Store(vocab)
	r.logger.Info(ctx, "Vocabulary reloaded", map[string]interface{}{
		"path":            r.path,
		"columns":         len(vocab.Columns),
		"derived_metrics": len(vocab.DerivedMetrics),
		"business_terms":  len(vocab.BusinessTerms),
		"examples":        len(vocab.Examples),
	})
	return nil
}

// ResolveColumn maps a column name or alias to its canonical column.
// Lookups are case-insensitive exact matches; unknown terms return ok=false
// rather than a guess.
func (r *Resolver) ResolveColumn(term string) (Column, bool) {
	vocab := r.vocab.Load()
	name, ok := vocab.columnIndex[normalizeTerm(term)]
	if !ok {
		return Column{}, false
	}
	return vocab.Columns[name], true
}

// ResolveBusinessTerm maps a business phrase to its literal filter expression
func (r *Resolver) ResolveBusinessTerm(phrase string) (string, bool) {
	vocab := r.vocab.Load()
	term, ok := vocab.termIndex[normalizeTerm(phrase)]
	if !ok {
		return "", false
	}
	return vocab.BusinessTerms[term].Expression, true
}

// ResolveDerivedMetric maps a derived metric name or alias to its SQL expression
func (r *Resolver) ResolveDerivedMetric(name string) (string, bool) {
	vocab := r.vocab.Load()
	key, ok := vocab.metricIndex[normalizeTerm(name)]
	if !ok {
		return "", false
	}
	return vocab.DerivedMetrics[key].Expression, true
}

// Table returns the analytical table the vocabulary describes
func (r *Resolver) Table() string {
	return r.vocab.Load().Table
}

// PromptContext returns the rendered schema context of the current document
func (r *Resolver) PromptContext() string {
	return r.vocab.Load().PromptContext()
}

// FewShotExamples returns up to n example question/query pairs
func (r *Resolver) FewShotExamples(n int) []Example {
	return r.vocab.Load().FewShot(n)
}
