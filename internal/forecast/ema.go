package forecast

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

const (
	emaVersion    = "fallback_ema"
	emaConfidence = 0.5
)

// EMA predicts an exponentially weighted average of the sequence, newest weighted highest.
type EMA struct{}

// NewEMA returns the local weighted-average forecaster.
func NewEMA() EMA { return EMA{} }

func (EMA) Name() string    { return config.ForecasterEMA }
func (EMA) Version() string { return emaVersion }
func (EMA) Available() bool { return true }

// Train is a no-op; the weights are fixed.
func (EMA) Train(context.Context, []models.Vector) error { return nil }

// Predict weights step i of n by exp(-1 + i/(n-1)).
func (EMA) Predict(_ context.Context, sequence []models.Vector) (Prediction, error) {
	n := len(sequence)
	if n == 0 {
		return Prediction{}, fmt.Errorf("ema: empty sequence")
	}
	weights := make([]float64, n)
	if n == 1 {
		weights[0] = 1
	} else {
		floats.Span(weights, -1, 0)
		for i, w := range weights {
			weights[i] = math.Exp(w)
		}
	}
	total := floats.Sum(weights)

	var out models.Vector
	for i, vec := range sequence {
		w := weights[i] / total
		for c := range out {
			out[c] += w * vec[c]
		}
	}
	return Prediction{Vector: clampVector(out), Confidence: emaConfidence, ModelVersion: emaVersion}, nil
}
