package analytics

import "github.com/aura-pulse/backend/internal/models"

// FallbackDNA is the label used when no rule matches.
const FallbackDNA = "Curious Mix"

// Rule maps averaged scores to a DNA label. Rules are evaluated in slice order; the first match wins.
type Rule struct {
	Label string
	Match func(models.PreferenceScores) bool
}

// DefaultRules is the ordered rule list. Order matters: a profile high on both innovation
// and sustainability is a Visionary, never an Early Adopter.
var DefaultRules = []Rule{
	{Label: "Visionary Changemakers", Match: func(s models.PreferenceScores) bool {
		return s.Innovation >= 70 && s.Sustainability >= 70
	}},
	{Label: "Early Adopters", Match: func(s models.PreferenceScores) bool { return s.Innovation >= 70 }},
	{Label: "Conscious Consumers", Match: func(s models.PreferenceScores) bool { return s.Sustainability >= 70 }},
	{Label: "Community Builders", Match: func(s models.PreferenceScores) bool { return s.Community >= 70 }},
	{Label: "Pragmatic Optimizers", Match: func(s models.PreferenceScores) bool { return s.Convenience >= 70 }},
	{Label: "Balanced Explorers", Match: func(s models.PreferenceScores) bool {
		for _, d := range models.Dimensions {
			if v := s.Get(d); v < 40 || v > 60 {
				return false
			}
		}
		return true
	}},
}

// Classify returns the label of the first matching rule, or FallbackDNA.
func Classify(rules []Rule, avg models.PreferenceScores) string {
	for _, r := range rules {
		if r.Match != nil && r.Match(avg) {
			return r.Label
		}
	}
	return FallbackDNA
}
