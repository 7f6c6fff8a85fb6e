package engine

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

// Index thresholds used to derive a SystemStatus.
const (
	healthyIndexAbove = 0.8
	degradedIndexMin  = 0.5
)

// Normalizer maps raw metric samples onto resilience vectors.
type Normalizer struct {
	cfg     config.VectorConfig
	weights []float64
	osr     models.Vector
}

// NewNormalizer constructs a Normalizer. The config is copied and never mutated.
func NewNormalizer(cfg config.VectorConfig) *Normalizer {
	w := cfg.Weights.Array()
	return &Normalizer{cfg: cfg, weights: w.Slice(), osr: cfg.OSR.Array()}
}

// Normalize computes the five components for one sample. Every component is clamped to [0,1].
func (n *Normalizer) Normalize(sample models.MetricSample) models.ResilienceVector {
	resource := math.Max(sample.CPU, sample.RAM)
	anomalous := float64(sample.AnomalousRequests)
	total := anomalous + float64(sample.BackgroundRequests)
	share := 0.0
	if total > 0 {
		share = anomalous / total
	}

	return models.ResilienceVector{
		Timestamp: sample.Timestamp,
		C:         n.capacity(sample.Latency),
		L:         n.load(sample.Utilization),
		Q:         n.quality(sample.BlockingProbability),
		R:         n.resources(resource),
		A:         n.anomaly(anomalous, total),
		Raw: models.RawInputs{
			Latency:      sample.Latency,
			Utilization:  sample.Utilization,
			Blocking:     sample.BlockingProbability,
			Resource:     resource,
			AnomalyShare: share,
		},
	}
}

func (n *Normalizer) capacity(latency float64) float64 {
	if latency <= n.cfg.LatencyBase {
		return 1.0
	}
	return clamp01(1 - (latency-n.cfg.LatencyBase)/(n.cfg.LatencyCritical-n.cfg.LatencyBase))
}

func (n *Normalizer) load(rho float64) float64 {
	if rho <= 0 {
		return 1.0
	}
	ratio := rho / n.cfg.UtilizationThreshold
	return clamp01(1 - ratio*ratio)
}

func (n *Normalizer) quality(blocking float64) float64 {
	if blocking <= 0 {
		return 1.0
	}
	return clamp01(1 - blocking/n.cfg.BlockingThreshold)
}

func (n *Normalizer) resources(peak float64) float64 {
	if peak <= 0 {
		return 1.0
	}
	return clamp01(1 - peak/n.cfg.ResourceCritical)
}

// counts are summed in float64 so huge totals cannot wrap negative
func (n *Normalizer) anomaly(anomalous, total float64) float64 {
	if total <= 0 {
		return 1.0
	}
	return clamp01(1 - anomalous/total)
}

// Index returns the weighted sustainability index of v, clamped to [0,1].
func (n *Normalizer) Index(v models.Vector) float64 {
	return clamp01(floats.Dot(n.weights, v[:]))
}

// Sustainability builds the SustainabilityResult for a normalised vector.
func (n *Normalizer) Sustainability(rv models.ResilienceVector) models.SustainabilityResult {
	vec := rv.Array()
	index := n.Index(vec)
	violated := violatedComponents(vec, n.osr)
	return models.SustainabilityResult{
		Timestamp: rv.Timestamp,
		Index:     index,
		Status:    StatusFor(index),
		InOSR:     len(violated) == 0,
		Violated:  violated,
		Vector:    rv,
	}
}

// StatusFor maps an index onto the three-tier system status.
func StatusFor(index float64) models.SystemStatus {
	switch {
	case index > healthyIndexAbove:
		return models.StatusHealthy
	case index >= degradedIndexMin:
		return models.StatusDegraded
	default:
		return models.StatusCritical
	}
}

// clamp01 bounds value to [0,1]; NaN collapses to 0.
func clamp01(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func clampVector(v models.Vector) models.Vector {
	for i := range v {
		v[i] = clamp01(v[i])
	}
	return v
}
