package llm

// modelPricing holds USD cost per one million tokens.
type modelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Published per-model pricing. Unknown models fall back to the
// default model's rates so cost accounting never silently reports zero.
var pricingTable = map[string]modelPricing{
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-3-haiku-20240307":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"claude-3-opus-20240229":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
}

// EstimateCost returns the estimated USD cost of a completion given
// its model and token counts.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := pricingTable[model]
	if !ok {
		pricing = pricingTable[defaultModel]
	}
	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPerMillion
	return inputCost + outputCost
}
