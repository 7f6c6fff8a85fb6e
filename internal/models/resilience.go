package models

import "time"

// Dimension is the number of components in a resilience vector.
const Dimension = 5

// Component indexes into a Vector.
const (
	ComponentCapacity = iota
	ComponentLoad
	ComponentQuality
	ComponentResources
	ComponentAnomaly
)

// ComponentNames lists the short component names in vector order.
var ComponentNames = [Dimension]string{"C", "L", "Q", "R", "A"}

// Vector is an ordered (C, L, Q, R, A) tuple.
type Vector [Dimension]float64

// Uniform returns a vector with every component set to v.
func Uniform(v float64) Vector {
	var out Vector
	for i := range out {
		out[i] = v
	}
	return out
}

// Slice returns a copy of the vector as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Dimension)
	copy(out, v[:])
	return out
}

// VectorFromSlice copies up to Dimension values into a Vector. The bool is false when
// the slice length does not match.
func VectorFromSlice(values []float64) (Vector, bool) {
	var out Vector
	if len(values) != Dimension {
		return out, false
	}
	copy(out[:], values)
	return out, true
}

// MetricSample is a raw operational reading produced by a collector.
type MetricSample struct {
	Latency             float64   `json:"latency_ms"`
	Utilization         float64   `json:"utilization"`
	BlockingProbability float64   `json:"blocking_probability"`
	CPU                 float64   `json:"cpu"`
	RAM                 float64   `json:"ram"`
	AnomalousRequests   int       `json:"anomalous_requests"`
	BackgroundRequests  int       `json:"background_requests"`
	Timestamp           time.Time `json:"timestamp"`
}

// RawInputs keeps the raw values a ResilienceVector was derived from.
type RawInputs struct {
	Latency      float64 `json:"latency_ms"`
	Utilization  float64 `json:"utilization"`
	Blocking     float64 `json:"blocking_probability"`
	Resource     float64 `json:"resource_utilization"`
	AnomalyShare float64 `json:"anomaly_share"`
}

// ResilienceVector is the normalised view of one MetricSample.
type ResilienceVector struct {
	Timestamp time.Time `json:"timestamp"`
	C         float64   `json:"c"`
	L         float64   `json:"l"`
	Q         float64   `json:"q"`
	R         float64   `json:"r"`
	A         float64   `json:"a"`
	Raw       RawInputs `json:"raw"`
}

// Array returns the components in (C, L, Q, R, A) order.
func (v ResilienceVector) Array() Vector {
	return Vector{v.C, v.L, v.Q, v.R, v.A}
}

// SystemStatus is the three-tier health classification of a sustainability index.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// SustainabilityResult pairs a vector with its scalar index and OSR membership.
type SustainabilityResult struct {
	Timestamp time.Time        `json:"timestamp"`
	Index     float64          `json:"index"`
	Status    SystemStatus     `json:"status"`
	InOSR     bool             `json:"in_osr"`
	Violated  []string         `json:"violated_components"`
	Vector    ResilienceVector `json:"vector"`
}
