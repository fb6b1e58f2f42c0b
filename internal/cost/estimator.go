// Package cost turns token usage into estimated spend and keeps a ledger of
// completed requests.
package cost

import (
	"unicode/utf8"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
)

// Estimate returns the spend for a call when both prices are known for model
// in the descriptor's tables. The second result is false when the price is
// unknown; callers must leave the cost absent rather than report zero.
func Estimate(promptTokens, completionTokens int, model string, d *descriptor.Descriptor) (float64, bool) {
	if d == nil {
		return 0, false
	}

	pricing, ok := d.PricingFor(model)
	if !ok {
		return 0, false
	}

	inputCost := float64(promptTokens) / 1000 * pricing.InputPer1K
	outputCost := float64(completionTokens) / 1000 * pricing.OutputPer1K

	return inputCost + outputCost, true
}

// EstimateTokens is the length/4 heuristic, minimum 1. It is only used when
// the vendor does not report usage.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// EstimatePromptTokens applies EstimateTokens to every message and the
// system prompt of a request.
func EstimatePromptTokens(req domain.UnifiedRequest) int {
	total := 0
	if req.SystemPrompt != "" {
		total += EstimateTokens(req.SystemPrompt)
	}
	for _, m := range req.Messages {
		total += EstimateTokens(m.Content)
	}
	if total < 1 {
		return 1
	}
	return total
}

// Annotate sets usage.EstimatedCost when pricing is known and leaves it nil
// otherwise.
func Annotate(usage *domain.TokenUsage, model string, d *descriptor.Descriptor) {
	if usage == nil {
		return
	}
	if c, ok := Estimate(usage.PromptTokens, usage.CompletionTokens, model, d); ok {
		usage.EstimatedCost = &c
	} else {
		usage.EstimatedCost = nil
	}
}

// HeuristicUsage builds usage for a response whose vendor omitted it.
func HeuristicUsage(req domain.UnifiedRequest, completion string) *domain.TokenUsage {
	completionTokens := 0
	if completion != "" {
		completionTokens = EstimateTokens(completion)
	}
	u := domain.NewTokenUsage(EstimatePromptTokens(req), completionTokens)
	u.Estimated = true
	return u
}
