package llm

// Usage is the token accounting for one or more completions.
type Usage struct {
	Model            string  `json:"model,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	USDEstimate      float64 `json:"usd_estimate,omitempty"`
}

// price is USD per 1K tokens.
type price struct {
	in  float64
	out float64
}

var pricing = map[string]price{
	"gpt-4o-mini": {in: 0.00015, out: 0.0006},
	"gpt-4.1":     {in: 0.002, out: 0.008},
	"o4-mini":     {in: 0.0011, out: 0.0044},
}

// EstimateUSD prices a completion; unknown models cost zero.
func EstimateUSD(model string, promptTokens int, completionTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return (float64(promptTokens)*p.in + float64(completionTokens)*p.out) / 1000
}

// Add sums two usages, keeping the first non-empty model and provider.
func (u Usage) Add(other Usage) Usage {
	out := Usage{
		Model:            u.Model,
		Provider:         u.Provider,
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		USDEstimate:      u.USDEstimate + other.USDEstimate,
	}
	if out.Model == "" {
		out.Model = other.Model
	}
	if out.Provider == "" {
		out.Provider = other.Provider
	}
	return out
}

func (u Usage) IsZero() bool {
	return u == Usage{}
}
