package engine

import "github.com/scrypster/recall/pkg/types"

// TokenEstimate approximates the token cost of one content string. The
// divisor is a policy constant; four characters per token is the parity
// default.
func TokenEstimate(content string, divisor int) int {
	if divisor <= 0 {
		divisor = DefaultTokenDivisor
	}
	return len(content)/divisor + 1
}

// EnforceTokenBudget truncates an episode list, assumed sorted by relevance
// descending, to a token ceiling. Accumulation starts from the
// highest-relevance end and the lowest-relevance tail is dropped until the
// running total fits.
//
// Episodes are whole units: a single top episode that alone exceeds the
// budget is kept by itself rather than split. That is an accepted budget
// violation, not a bug.
func EnforceTokenBudget(items []types.EpisodeResult, budget, divisor int) (kept []types.EpisodeResult, dropped, total int) {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	for i, item := range items {
		cost := TokenEstimate(item.Content, divisor)
		if total+cost > budget {
			if i == 0 {
				// Oversized single top episode: returned alone.
				return items[:1], len(items) - 1, cost
			}
			return items[:i], len(items) - i, total
		}
		total += cost
	}
	return items, 0, total
}
