// Package metrics derives per-request latency and throughput figures.
package metrics

import (
	"time"

	"sglang-chat/internal/sglang"
	"sglang-chat/internal/tokens"
)

// RequestMetrics describes one request/response round trip. It is derived
// fresh for every turn and never stored.
type RequestMetrics struct {
	Elapsed time.Duration

	// TokenCount is the number of generated tokens used for throughput.
	TokenCount int

	// TotalTokens is prompt plus completion when the server reports it,
	// otherwise equal to TokenCount.
	TotalTokens int

	// Estimated is set when TokenCount was counted locally because the
	// server did not report usage.
	Estimated bool
}

// TokensPerSecond returns TokenCount / Elapsed, or 0 for a zero duration.
func (m RequestMetrics) TokensPerSecond() float64 {
	secs := m.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.TokenCount) / secs
}

// Compute builds metrics for a completed request. Reported completion tokens
// win, then reported total tokens; otherwise the reply is counted locally.
func Compute(elapsed time.Duration, c *sglang.Completion, counter tokens.Counter) RequestMetrics {
	m := RequestMetrics{Elapsed: elapsed}

	var usage sglang.Usage
	if c.Usage != nil {
		usage = *c.Usage
	}

	switch {
	case usage.CompletionTokens > 0:
		m.TokenCount = usage.CompletionTokens
	case usage.TotalTokens > 0:
		m.TokenCount = usage.TotalTokens
	default:
		m.TokenCount = counter.Count(c.Content)
		m.Estimated = true
	}

	m.TotalTokens = usage.TotalTokens
	if m.TotalTokens == 0 {
		m.TotalTokens = m.TokenCount
	}

	return m
}
