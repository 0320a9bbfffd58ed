package llm

import (
	"math"
	"strings"
)

// EmbeddingDim is the dimensionality of question embeddings.
const EmbeddingDim = 384

// Keywords that carry most of the signal in analytical questions. Order
// is fixed; each keyword owns one embedding slot.
var embeddingKeywords = []string{
	"sales", "revenue", "turnover", "profit", "loss", "margin", "cost",
	"quantity", "units", "volume", "weight", "receivable", "outstanding",
	"customer", "client", "distributor", "dealer", "account", "buyer",
	"state", "region", "territory", "branch", "company", "industry",
	"product", "item", "category", "group", "brand", "material",
	"cable", "wire", "copper", "aluminium", "flexible", "tension",
	"month", "year", "period", "quarter", "trend", "date",
	"top", "bottom", "best", "worst", "highest", "lowest",
	"total", "average", "sum", "count", "maximum", "minimum",
	"compare", "versus", "growth", "decline", "share", "ratio",
	"target", "achievement", "negative", "positive",
}

// QuestionEmbedding converts a question into a normalized feature vector
// for similarity search. The text-generation service provides no
// embedding endpoint, so this is a local, deterministic representation:
// character frequencies, domain keyword hits, and structure features.
func QuestionEmbedding(text string) []float32 {
	embedding := make([]float32, EmbeddingDim)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return embedding
	}

	// Slots 0-36: character frequencies
	charCounts := make(map[rune]int)
	for _, char := range text {
		charCounts[char]++
	}
	chars := "abcdefghijklmnopqrstuvwxyz0123456789 "
	for i, char := range chars {
		if count, exists := charCounts[char]; exists {
			embedding[i] = float32(count) / float32(len(text))
		}
	}

	// Slots 50+: domain keyword hits
	for i, keyword := range embeddingKeywords {
		if i+50 >= EmbeddingDim {
			break
		}
		if strings.Contains(text, keyword) {
			embedding[i+50] = 1.0
		}
	}

	// Structure features
	embedding[150] = float32(len(text)) / 1000.0
	embedding[151] = float32(strings.Count(text, " ")) / float32(len(text))
	embedding[152] = float32(strings.Count(text, "?"))
	embedding[153] = float32(strings.Count(text, "%"))

	// Normalize so the <=> cosine distance is well-behaved
	var magnitude float32
	for _, val := range embedding {
		magnitude += val * val
	}
	if magnitude > 0 {
		norm := float32(math.Sqrt(float64(magnitude)))
		for i := range embedding {
			embedding[i] /= norm
		}
	}

	return embedding
}
