package services

import (
	"strings"
	"unicode/utf8"

	"aspire/internal/feature"
)

// Usage is an estimate of the model tokens a generation consumed.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Total        int64
	Defaulted    bool
}

// UsageMeter estimates model usage from the prompt and the generated text. With word
// rules enabled each whitespace-separated word costs max(1, ceil(len/3)); otherwise the
// whole text costs ceil(chars/4).
type UsageMeter struct {
	wordRules bool
}

func NewUsageMeter(wordRules bool) *UsageMeter {
	return &UsageMeter{wordRules: wordRules}
}

func (m *UsageMeter) Count(text string) int64 {
	if text == "" {
		return 0
	}
	if !m.wordRules {
		return ceilDiv(int64(utf8.RuneCountInString(text)), 4)
	}
	var count int64
	for _, word := range strings.Fields(text) {
		count += max(1, ceilDiv(int64(utf8.RuneCountInString(word)), 3))
	}
	return count
}

// Estimate falls back to feature.DefaultCharge when either side is empty or the count
// comes out non-positive.
func (m *UsageMeter) Estimate(input, output string) Usage {
	if strings.TrimSpace(input) == "" || strings.TrimSpace(output) == "" {
		return Usage{Total: feature.DefaultCharge, Defaulted: true}
	}
	in := m.Count(input)
	out := m.Count(output)
	if in+out <= 0 {
		return Usage{Total: feature.DefaultCharge, Defaulted: true}
	}
	return Usage{InputTokens: in, OutputTokens: out, Total: in + out}
}

func ceilDiv(n, d int64) int64 {
	return (n + d - 1) / d
}
