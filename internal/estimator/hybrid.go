package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/miradorstack/mirador-resilience/internal/forecast"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

// Prediction is the blended output of one Hybrid step.
type Prediction struct {
	Forecast       models.Vector   `json:"forecast"`
	Kalman         models.Vector   `json:"kalman_estimate"`
	Secondary      *models.Vector  `json:"secondary,omitempty"`
	Confidence     float64         `json:"confidence"`
	MultiStep      []models.Vector `json:"multi_step"`
	Uncertainty    models.Vector   `json:"uncertainty"`
	Innovation     float64         `json:"innovation"`
	Fallback       bool            `json:"fallback"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
	ModelVersion   string          `json:"model_version,omitempty"`
}

// Hybrid mixes the Kalman posterior with an optional secondary forecaster.
// Secondary failures never propagate; the Kalman estimate is used instead.
type Hybrid struct {
	kalman     *Kalman
	forecaster forecast.Forecaster
	blend      float64
	horizon    int
	logger     *slog.Logger
}

// NewHybrid wires a filter and forecaster. blend is the weight of the secondary forecast in [0,1].
func NewHybrid(kalman *Kalman, forecaster forecast.Forecaster, blend float64, horizon int, logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	if forecaster == nil {
		forecaster = forecast.Noop{}
	}
	if blend < 0 {
		blend = 0
	}
	if blend > 1 {
		blend = 1
	}
	return &Hybrid{kalman: kalman, forecaster: forecaster, blend: blend, horizon: horizon, logger: logger}
}

// Kalman exposes the underlying filter.
func (h *Hybrid) Kalman() *Kalman { return h.kalman }

// Forecaster exposes the secondary forecaster.
func (h *Hybrid) Forecaster() forecast.Forecaster { return h.forecaster }

// UpdateAndPredict updates the filter with observed and produces the next forecast.
func (h *Hybrid) UpdateAndPredict(ctx context.Context, observed models.Vector, sequence []models.Vector, ts time.Time) Prediction {
	state := h.kalman.Update(observed, ts)
	out := Prediction{
		Forecast:    state.Estimate,
		Kalman:      state.Estimate,
		Confidence:  1,
		MultiStep:   slices.Collect(h.kalman.Forecast(h.horizon)),
		Uncertainty: h.kalman.Uncertainty(),
		Innovation:  state.Innovation,
	}

	if !h.forecaster.Available() || len(sequence) == 0 {
		return out
	}

	pred, err := h.predictSecondary(ctx, sequence)
	if err != nil {
		h.logger.Debug("secondary forecaster failed, using kalman estimate",
			slog.String("forecaster", h.forecaster.Name()), slog.Any("error", err))
		out.Fallback = true
		out.FallbackReason = err.Error()
		return out
	}

	secondary := pred.Vector
	out.Secondary = &secondary
	out.Confidence = pred.Confidence
	out.ModelVersion = pred.ModelVersion
	for i := range out.Forecast {
		out.Forecast[i] = h.blend*secondary[i] + (1-h.blend)*state.Estimate[i]
	}
	out.Forecast = clampVector(out.Forecast)
	return out
}

// predictSecondary turns a forecaster panic into an error.
func (h *Hybrid) predictSecondary(ctx context.Context, sequence []models.Vector) (pred forecast.Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("secondary forecaster panicked",
				slog.String("forecaster", h.forecaster.Name()), slog.Any("panic", r))
			pred, err = forecast.Prediction{}, fmt.Errorf("forecaster %s panicked: %v", h.forecaster.Name(), r)
		}
	}()
	return h.forecaster.Predict(ctx, sequence)
}

// Fit refits the Kalman transition matrix from data.
func (h *Hybrid) Fit(data []models.Vector) bool {
	return h.kalman.LearnTransition(data)
}

// TrainSecondary retrains the secondary forecaster. It is a no-op when none is available.
func (h *Hybrid) TrainSecondary(ctx context.Context, data []models.Vector) error {
	if !h.forecaster.Available() {
		return nil
	}
	if len(data) == 0 {
		return fmt.Errorf("empty training set")
	}
	return h.forecaster.Train(ctx, data)
}

// Reset restores the filter's initial state.
func (h *Hybrid) Reset() {
	h.kalman.Reset()
}
