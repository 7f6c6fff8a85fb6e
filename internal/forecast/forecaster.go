// Package forecast defines the optional secondary forecaster used next to the Kalman filter.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

// ErrUnavailable reports that no secondary forecaster is configured or ready.
var ErrUnavailable = errors.New("forecaster unavailable")

// Prediction is a single-step forecast of the next resilience vector.
type Prediction struct {
	Vector       models.Vector `json:"vector"`
	Confidence   float64       `json:"confidence"`
	ModelVersion string        `json:"model_version"`
}

// Forecaster predicts the next vector from a sequence of recent vectors.
type Forecaster interface {
	Name() string
	Version() string
	Available() bool
	Train(ctx context.Context, data []models.Vector) error
	Predict(ctx context.Context, sequence []models.Vector) (Prediction, error)
}

// New selects the forecaster configured in cfg.
func New(cfg config.ForecasterConfig, logger *slog.Logger) (Forecaster, error) {
	switch cfg.Kind {
	case "", config.ForecasterNone:
		return Noop{}, nil
	case config.ForecasterEMA:
		return NewEMA(), nil
	case config.ForecasterRemote:
		return NewRemote(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown forecaster kind %q", cfg.Kind)
	}
}

// Noop is the absent capability.
type Noop struct{}

func (Noop) Name() string    { return config.ForecasterNone }
func (Noop) Version() string { return "none" }
func (Noop) Available() bool { return false }

func (Noop) Train(context.Context, []models.Vector) error { return nil }

func (Noop) Predict(context.Context, []models.Vector) (Prediction, error) {
	return Prediction{}, ErrUnavailable
}

func clampVector(v models.Vector) models.Vector {
	for i, x := range v {
		v[i] = math.Min(1, math.Max(0, x))
	}
	return v
}

func finite(v models.Vector) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
