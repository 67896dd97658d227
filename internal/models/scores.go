package models

import "math"

// ScoreMax is the upper bound of every preference dimension. Scores use a 0-100 scale throughout.
const ScoreMax = 100

// Dimension names, in the order used for question mapping and rule evaluation.
const (
	DimInnovation     = "innovation"
	DimSustainability = "sustainability"
	DimCommunity      = "community"
	DimConvenience    = "convenience"
)

// Dimensions lists the dimension names in canonical order.
var Dimensions = []string{DimInnovation, DimSustainability, DimCommunity, DimConvenience}

// PreferenceScores is the derived per-dimension profile of a completed participant.
type PreferenceScores struct {
	Innovation     int `json:"innovation"`
	Sustainability int `json:"sustainability"`
	Community      int `json:"community"`
	Convenience    int `json:"convenience"`
}

// Get returns the value of the named dimension, or 0 for an unknown name.
func (s PreferenceScores) Get(dim string) int {
	switch dim {
	case DimInnovation:
		return s.Innovation
	case DimSustainability:
		return s.Sustainability
	case DimCommunity:
		return s.Community
	case DimConvenience:
		return s.Convenience
	}
	return 0
}

// Set assigns the named dimension. Unknown names are ignored.
func (s *PreferenceScores) Set(dim string, v int) {
	switch dim {
	case DimInnovation:
		s.Innovation = v
	case DimSustainability:
		s.Sustainability = v
	case DimCommunity:
		s.Community = v
	case DimConvenience:
		s.Convenience = v
	}
}

// Clamp bounds every dimension to [0, ScoreMax].
func (s PreferenceScores) Clamp() PreferenceScores {
	for _, d := range Dimensions {
		s.Set(d, clampScore(s.Get(d)))
	}
	return s
}

// FromTenScale converts scores given on a 0-10 scale to the canonical 0-100 scale.
func FromTenScale(s PreferenceScores) PreferenceScores {
	var out PreferenceScores
	for _, d := range Dimensions {
		out.Set(d, clampScore(s.Get(d)*10))
	}
	return out
}

func clampScore(v int) int {
	return int(math.Max(0, math.Min(ScoreMax, float64(v))))
}
