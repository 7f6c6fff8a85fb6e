package engine

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

const degenerateNorm = 1e-10

// CosineSimilarity returns dot(a,b)/(|a||b|) clamped to [-1,1], or 0 when either norm is degenerate.
func CosineSimilarity(a, b models.Vector) float64 {
	na := floats.Norm(a[:], 2)
	nb := floats.Norm(b[:], 2)
	if na < degenerateNorm || nb < degenerateNorm {
		return 0
	}
	sim := floats.Dot(a[:], b[:]) / (na * nb)
	switch {
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	case math.IsNaN(sim):
		return 0
	}
	return sim
}

// DriftDetector compares forecasts with observations and raises a retrain request once the
// moving average of similarity has stayed low for long enough.
// It is not safe for concurrent use.
type DriftDetector struct {
	cfg     config.DecisionConfig
	clock   utils.Clock
	history *utils.Ring[float64]

	lowSince time.Time
	fired    bool
}

// NewDriftDetector constructs a detector. A nil clock uses the system clock.
func NewDriftDetector(cfg config.DecisionConfig, clock utils.Clock) *DriftDetector {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	capacity := cfg.HistoryCapacity
	if capacity < cfg.WindowSize {
		capacity = cfg.WindowSize
	}
	return &DriftDetector{
		cfg:     cfg,
		clock:   clock,
		history: utils.NewRing[float64](capacity),
	}
}

// Evaluate records the similarity of (forecast, observed) and returns the classified result.
func (d *DriftDetector) Evaluate(forecast, observed models.Vector) models.SimilarityResult {
	now := d.clock.Now()
	sim := CosineSimilarity(forecast, observed)
	d.history.Push(sim)

	ma := d.MovingAverage()
	return models.SimilarityResult{
		Timestamp:       now,
		Similarity:      sim,
		Level:           d.Level(sim),
		MovingAverage:   ma,
		NeedsRetraining: d.checkRetrain(ma, now),
		Alert:           sim < d.cfg.AlertThreshold,
	}
}

// Level classifies a similarity value.
func (d *DriftDetector) Level(sim float64) models.Level {
	switch {
	case sim > d.cfg.SimilarityHigh:
		return models.LevelHigh
	case sim >= d.cfg.SimilarityMedium:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// MovingAverage is the mean of the last WindowSize similarities, 1.0 when nothing is recorded.
func (d *DriftDetector) MovingAverage() float64 {
	window := d.history.Tail(d.cfg.WindowSize)
	if len(window) == 0 {
		return 1.0
	}
	return floats.Sum(window) / float64(len(window))
}

// checkRetrain fires once per contiguous episode of the moving average below the threshold.
func (d *DriftDetector) checkRetrain(ma float64, now time.Time) bool {
	if ma >= d.cfg.RetrainThreshold {
		d.lowSince = time.Time{}
		d.fired = false
		return false
	}
	if d.lowSince.IsZero() {
		d.lowSince = now
	}
	if d.fired || now.Sub(d.lowSince) < d.cfg.RetrainDuration {
		return false
	}
	d.fired = true
	return true
}

// InLowEpisode reports whether the moving average is currently below the retrain threshold.
func (d *DriftDetector) InLowEpisode() bool {
	return !d.lowSince.IsZero()
}

// History returns up to n recorded similarities, oldest first.
func (d *DriftDetector) History(n int) []float64 {
	return d.history.Tail(n)
}

// Reset clears recorded similarities and the retrain timer.
func (d *DriftDetector) Reset() {
	d.history.Clear()
	d.lowSince = time.Time{}
	d.fired = false
}
