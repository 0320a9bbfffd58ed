package llm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionEmbedding_Dimension(t *testing.T) {
	embedding := QuestionEmbedding("What are the total sales in Gujarat?")
	assert.Len(t, embedding, EmbeddingDim)
}

func TestQuestionEmbedding_Deterministic(t *testing.T) {
	a := QuestionEmbedding("Top 5 customers by revenue")
	b := QuestionEmbedding("Top 5 customers by revenue")
	assert.Equal(t, a, b)
}

func TestQuestionEmbedding_Normalized(t *testing.T) {
	embedding := QuestionEmbedding("Compare margin for LT cables versus flexibles")

	var magnitude float64
	for _, val := range embedding {
		magnitude += float64(val) * float64(val)
	}
	assert.InDelta(t, 1.0, math.Sqrt(magnitude), 1e-5)
}

func TestQuestionEmbedding_KeywordSlots(t *testing.T) {
	with := QuestionEmbedding("total sales by customer")
	without := QuestionEmbedding("xyz qq zz")

	// "sales" owns slot 50, "customer" a later one; both must differ
	// from a question that mentions neither.
	assert.NotZero(t, with[50])
	assert.Zero(t, without[50])
}

func TestQuestionEmbedding_EmptyInput(t *testing.T) {
	embedding := QuestionEmbedding("   ")
	require.Len(t, embedding, EmbeddingDim)
	for _, val := range embedding {
		assert.Zero(t, val)
	}
}

func TestQuestionEmbedding_SimilarQuestionsCloser(t *testing.T) {
	base := QuestionEmbedding("What were total sales last month?")
	similar := QuestionEmbedding("What was the total sales for last month?")
	unrelated := QuestionEmbedding("List negative margin items by brand")

	assert.Greater(t, cosine(base, similar), cosine(base, unrelated))
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
