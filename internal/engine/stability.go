package engine

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

// Violation describes one component below its OSR threshold.
type Violation struct {
	Component string  `json:"component"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// StabilityClassifier assigns sustainability levels and operating stable region membership.
type StabilityClassifier struct {
	weights []float64
	osr     models.Vector
	high    float64
	medium  float64
}

// NewStabilityClassifier builds a classifier from the vector weights/OSR and the decision level ladder.
func NewStabilityClassifier(vec config.VectorConfig, dec config.DecisionConfig) *StabilityClassifier {
	w := vec.Weights.Array()
	return &StabilityClassifier{
		weights: w.Slice(),
		osr:     vec.OSR.Array(),
		high:    dec.SustainabilityHigh,
		medium:  dec.SustainabilityMedium,
	}
}

// Thresholds returns the OSR thresholds in vector order.
func (s *StabilityClassifier) Thresholds() models.Vector {
	return s.osr
}

// Index returns the weighted sustainability index of v.
func (s *StabilityClassifier) Index(v models.Vector) float64 {
	return clamp01(floats.Dot(s.weights, v[:]))
}

// Level classifies a sustainability index.
func (s *StabilityClassifier) Level(index float64) models.Level {
	switch {
	case index > s.high:
		return models.LevelHigh
	case index >= s.medium:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// LevelOf classifies the sustainability of a vector.
func (s *StabilityClassifier) LevelOf(v models.Vector) (models.Level, float64) {
	index := s.Index(v)
	return s.Level(index), index
}

// InOSR reports whether every component meets its threshold.
func (s *StabilityClassifier) InOSR(v models.Vector) bool {
	for i := range v {
		if v[i] < s.osr[i] {
			return false
		}
	}
	return true
}

// Violations lists components below their thresholds with values.
func (s *StabilityClassifier) Violations(v models.Vector) []Violation {
	var out []Violation
	for i := range v {
		if v[i] < s.osr[i] {
			out = append(out, Violation{Component: models.ComponentNames[i], Value: v[i], Threshold: s.osr[i]})
		}
	}
	return out
}

// ViolatedComponents lists the names of components below their thresholds.
func (s *StabilityClassifier) ViolatedComponents(v models.Vector) []string {
	return violatedComponents(v, s.osr)
}

// Margin returns the signed distance to the nearest OSR boundary. Negative means outside.
func (s *StabilityClassifier) Margin(v models.Vector) float64 {
	margin := math.Inf(1)
	for i := range v {
		margin = math.Min(margin, v[i]-s.osr[i])
	}
	return margin
}

// WorstComponent returns the lowest-valued component.
func (s *StabilityClassifier) WorstComponent(v models.Vector) (string, float64) {
	idx := floats.MinIdx(v[:])
	return models.ComponentNames[idx], v[idx]
}

// WillExitOSR reports whether a forecast vector falls outside the region, and which components cause it.
func (s *StabilityClassifier) WillExitOSR(forecast models.Vector) (bool, []string) {
	violated := violatedComponents(forecast, s.osr)
	return len(violated) > 0, violated
}

func violatedComponents(v, thresholds models.Vector) []string {
	violated := make([]string, 0, models.Dimension)
	for i := range v {
		if v[i] < thresholds[i] {
			violated = append(violated, models.ComponentNames[i])
		}
	}
	return violated
}
