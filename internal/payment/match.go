package payment

import (
	"math"
	"strings"

	"github.com/cleared-dev/payrecon/internal/model"
)

// NormalizeClientName lowercases name and keeps only [a-z0-9].
func NormalizeClientName(name string) string {
	lower := strings.ToLower(name)
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, lower))
}

// CalculateMatchConfidence scores two normalized names from 0 to 100.
// Equal names score 100; when one contains the other the score is the length
// ratio of shorter to longer; anything else scores 0.
func CalculateMatchConfidence(normalizedSender, normalizedClient string) int {
	if normalizedSender == "" || normalizedClient == "" {
		return 0
	}
	if normalizedSender == normalizedClient {
		return model.MaxConfidence
	}

	shorter, longer := normalizedSender, normalizedClient
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	return int(math.Round(float64(len(shorter)) / float64(len(longer)) * 100))
}
