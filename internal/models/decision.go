package models

import (
	"fmt"
	"time"
)

// Level is a three-tier classification shared by sustainability and similarity.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Rank orders levels from high (0) to low (2).
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 0
	case LevelMedium:
		return 1
	default:
		return 2
	}
}

// ResponseMode is one of nine mitigation postures, ordered by severity.
type ResponseMode int

const (
	ModePassiveMonitoring ResponseMode = iota + 1
	ModeEnhancedMonitoring
	ModeModelAnalysis
	ModeTargetedMitigation
	ModeGeneralProtection
	ModePreventiveAlert
	ModeAggressiveMitigation
	ModeComprehensiveDefense
	ModeCriticalLockdown
)

// AllModes lists every response mode in severity order.
var AllModes = []ResponseMode{
	ModePassiveMonitoring,
	ModeEnhancedMonitoring,
	ModeModelAnalysis,
	ModeTargetedMitigation,
	ModeGeneralProtection,
	ModePreventiveAlert,
	ModeAggressiveMitigation,
	ModeComprehensiveDefense,
	ModeCriticalLockdown,
}

var modeNames = map[ResponseMode]string{
	ModePassiveMonitoring:    "passive_monitoring",
	ModeEnhancedMonitoring:   "enhanced_monitoring",
	ModeModelAnalysis:        "model_analysis",
	ModeTargetedMitigation:   "targeted_mitigation",
	ModeGeneralProtection:    "general_protection",
	ModePreventiveAlert:      "preventive_alert",
	ModeAggressiveMitigation: "aggressive_mitigation",
	ModeComprehensiveDefense: "comprehensive_defense",
	ModeCriticalLockdown:     "critical_lockdown",
}

var modeActions = map[ResponseMode]string{
	ModePassiveMonitoring:    "pass",
	ModeEnhancedMonitoring:   "log_enhanced",
	ModeModelAnalysis:        "alert_model_drift",
	ModeTargetedMitigation:   "target_mitigation",
	ModeGeneralProtection:    "general_protection",
	ModePreventiveAlert:      "preventive_alert",
	ModeAggressiveMitigation: "aggressive_mitigation",
	ModeComprehensiveDefense: "comprehensive_defense",
	ModeCriticalLockdown:     "critical_lockdown",
}

func (m ResponseMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode_%d", int(m))
}

// Action returns the fixed action label for the mode.
func (m ResponseMode) Action() string {
	return modeActions[m]
}

// Valid reports whether m is one of the nine enumerated modes.
func (m ResponseMode) Valid() bool {
	return m >= ModePassiveMonitoring && m <= ModeCriticalLockdown
}

// SimilarityResult describes how closely a forecast matched the observation.
type SimilarityResult struct {
	Timestamp       time.Time `json:"timestamp"`
	Similarity      float64   `json:"similarity"`
	Level           Level     `json:"level"`
	MovingAverage   float64   `json:"moving_average"`
	NeedsRetraining bool      `json:"needs_retraining"`
	Alert           bool      `json:"alert"`
}

// DecisionResult is the chosen response mode and the inputs that produced it.
type DecisionResult struct {
	Timestamp           time.Time        `json:"timestamp"`
	Mode                ResponseMode     `json:"mode"`
	Action              string           `json:"action"`
	SustainabilityLevel Level            `json:"sustainability_level"`
	SimilarityLevel     Level            `json:"similarity_level"`
	SustainabilityValue float64          `json:"sustainability_value"`
	SimilarityValue     float64          `json:"similarity_value"`
	Reason              string           `json:"reason"`
	Violated            []string         `json:"violated_components"`
	Similarity          SimilarityResult `json:"similarity"`
	Recommendations     []string         `json:"recommendations,omitempty"`
}
