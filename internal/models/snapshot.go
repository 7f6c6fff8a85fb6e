package models

import "time"

// Phase is the orchestrator lifecycle state.
type Phase string

const (
	PhaseEmpty     Phase = "empty"
	PhaseWarmingUp Phase = "warming_up"
	PhaseSteady    Phase = "steady"
)

// MonitoringSnapshot aggregates everything the monitor derived from one sample.
type MonitoringSnapshot struct {
	ID             string               `json:"id"`
	Timestamp      time.Time            `json:"timestamp"`
	Phase          Phase                `json:"phase"`
	Vector         ResilienceVector     `json:"vector"`
	Sustainability SustainabilityResult `json:"sustainability"`
	Forecast       Vector               `json:"forecast"`
	MultiStep      []Vector             `json:"multi_step,omitempty"`
	Innovation     float64              `json:"innovation"`
	Similarity     SimilarityResult     `json:"similarity"`
	Decision       DecisionResult       `json:"decision"`
	InOSR          bool                 `json:"in_osr"`
	OSRViolations  []string             `json:"osr_violations"`
	OSRMargin      float64              `json:"osr_margin"`
	ModelVersion   string               `json:"model_version"`
	Fallback       bool                 `json:"forecaster_fallback"`
	Retrained      bool                 `json:"retrained"`
}

// HistoryEntry is the condensed projection of a snapshot returned by history queries.
type HistoryEntry struct {
	Timestamp      time.Time    `json:"timestamp"`
	Vector         Vector       `json:"vector"`
	Sustainability float64      `json:"sust_index"`
	Similarity     float64      `json:"similarity"`
	Mode           ResponseMode `json:"mode"`
	InOSR          bool         `json:"in_osr"`
}

// ComponentStats holds per-component aggregates in vector order.
type ComponentStats struct {
	Mean Vector `json:"mean"`
	Std  Vector `json:"std"`
	Min  Vector `json:"min"`
	Max  Vector `json:"max"`
}

// ScalarStats summarises a scalar series.
type ScalarStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Statistics aggregates the retained snapshot window.
type Statistics struct {
	TotalSnapshots   int            `json:"total_snapshots"`
	Components       ComponentStats `json:"vrps_stats"`
	Sustainability   ScalarStats    `json:"sustainability"`
	Similarity       ScalarStats    `json:"similarity"`
	ModeDistribution map[string]int `json:"mode_distribution"`
	OSRViolations    int            `json:"osr_violations_count"`
}

// Dashboard is the trajectory projection consumed by dashboards.
type Dashboard struct {
	Timestamps     []time.Time          `json:"timestamps"`
	Trajectories   map[string][]float64 `json:"vrps_trajectory"`
	Sustainability []float64            `json:"sustainability_index"`
	Similarity     []float64            `json:"similarity"`
	Modes          []ResponseMode       `json:"modes"`
	Current        map[string]any       `json:"current"`
	Statistics     Statistics           `json:"statistics"`
}
