package runner

import (
	"PhonePilot/internal/config"
	"math"
)

// TokenCost estimates the cost in USD for the given token counts.
// Prices are configured per 1K tokens so the formula survives pricing changes.
func TokenCost(inputTokens, outputTokens int, pricing config.PricingConfig) float64 {
	inputCost := float64(inputTokens) / 1000 * pricing.InputPer1K
	outputCost := float64(outputTokens) / 1000 * pricing.OutputPer1K
	return math.Round((inputCost+outputCost)*1e6) / 1e6
}
