// Package cost estimates model API spend from token usage.
package cost

// ModelRate holds per-model token pricing in dollars per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds per-provider pricing keyed by model name.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
}

// DefaultRates returns list pricing for the models the engine targets.
// Prices drift; override via config when they do.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		},
		OpenAI: map[string]ModelRate{
			"gpt-5":      {Input: 1.25, Output: 10.00},
			"gpt-5-mini": {Input: 0.25, Output: 2.00},
		},
	}
}

// Calculator computes dollar cost for recorded token usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a calculator over the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// MessageCost returns the dollar cost of a call given input and output token
// counts. The second return is false when no rate is known for the
// provider/model pair.
func (c *Calculator) MessageCost(provider, model string, inputTokens, outputTokens int64) (float64, bool) {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "openai":
		table = c.rates.OpenAI
	default:
		return 0, false
	}

	rate, ok := table[model]
	if !ok {
		return 0, false
	}

	const mtok = 1_000_000
	cost := float64(inputTokens)/mtok*rate.Input + float64(outputTokens)/mtok*rate.Output
	return cost, true
}
