package core

import "strings"

// TriggerKeywords force structured context collection before the model is
// queried.  Matching is a literal, case-insensitive substring scan: no
// stemming, no negation handling, no multi-language matching.  This is a
// policy list, not an NLP component; keep it in sync with the classifier
// tests when tweaking.
var TriggerKeywords = []string{
	"symptom", "constipation", "pain", "fever", "headache",
	"cold", "flu", "cough", "hurt", "ache", "stomach", "skin",
}

// NeedsContext reports whether rawInput mentions any trigger keyword and the
// context form must therefore be shown before calling the model.  Empty or
// whitespace-only input never needs context.
func NeedsContext(rawInput string) bool {
	in := strings.ToLower(strings.TrimSpace(rawInput))
	if in == "" {
		return false
	}
	for _, kw := range TriggerKeywords {
		if strings.Contains(in, kw) {
			return true
		}
	}
	return false
}
