package engine

import (
	"strings"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

// decisionMatrix is indexed by [sustainability rank][similarity rank].
var decisionMatrix = [3][3]models.ResponseMode{
	{models.ModePassiveMonitoring, models.ModeEnhancedMonitoring, models.ModeModelAnalysis},
	{models.ModeTargetedMitigation, models.ModeGeneralProtection, models.ModePreventiveAlert},
	{models.ModeAggressiveMitigation, models.ModeComprehensiveDefense, models.ModeCriticalLockdown},
}

// ModeFor looks up the response mode for a (sustainability, similarity) level pair.
func ModeFor(sustainability, similarity models.Level) models.ResponseMode {
	return decisionMatrix[sustainability.Rank()][similarity.Rank()]
}

// DecisionEngine fuses drift and sustainability into a response mode and keeps a decision log.
// It is not safe for concurrent use; Monitor serialises access.
type DecisionEngine struct {
	drift      *DriftDetector
	classifier *StabilityClassifier
	clock      utils.Clock
	log        *utils.Ring[models.DecisionResult]
}

// NewDecisionEngine constructs an engine owning the drift detector used for every decision.
func NewDecisionEngine(vec config.VectorConfig, dec config.DecisionConfig, clock utils.Clock) *DecisionEngine {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	capacity := dec.DecisionLogCapacity
	if capacity <= 0 {
		capacity = config.DefaultDecision().DecisionLogCapacity
	}
	return &DecisionEngine{
		drift:      NewDriftDetector(dec, clock),
		classifier: NewStabilityClassifier(vec, dec),
		clock:      clock,
		log:        utils.NewRing[models.DecisionResult](capacity),
	}
}

// Drift exposes the engine's drift detector.
func (e *DecisionEngine) Drift() *DriftDetector { return e.drift }

// Classifier exposes the engine's stability classifier.
func (e *DecisionEngine) Classifier() *StabilityClassifier { return e.classifier }

// Decide selects a response mode. Sustainability is taken from the forecast vector while
// OSR violations come from the observed vector.
func (e *DecisionEngine) Decide(forecast, observed, osr models.Vector) models.DecisionResult {
	sim := e.drift.Evaluate(forecast, observed)
	sustLevel, sustValue := e.classifier.LevelOf(forecast)
	mode := ModeFor(sustLevel, sim.Level)
	violated := violatedComponents(observed, osr)

	result := models.DecisionResult{
		Timestamp:           e.clock.Now(),
		Mode:                mode,
		Action:              mode.Action(),
		SustainabilityLevel: sustLevel,
		SimilarityLevel:     sim.Level,
		SustainabilityValue: sustValue,
		SimilarityValue:     sim.Similarity,
		Reason:              composeReason(sustLevel, sim.Level, violated),
		Violated:            violated,
		Similarity:          sim,
	}
	e.log.Push(result)
	return result
}

func composeReason(sust, sim models.Level, violated []string) string {
	var clauses []string
	switch sust {
	case models.LevelLow:
		clauses = append(clauses, "critically low sustainability index")
	case models.LevelMedium:
		clauses = append(clauses, "moderate system degradation")
	}
	switch sim {
	case models.LevelLow:
		clauses = append(clauses, "low forecast quality (possible model drift)")
	case models.LevelMedium:
		clauses = append(clauses, "forecast requires attention")
	}
	if len(violated) > 0 {
		clauses = append(clauses, "OSR components violated: "+strings.Join(violated, ", "))
	}
	if len(clauses) == 0 {
		return "system nominal"
	}
	return strings.Join(clauses, "; ")
}

// Log returns up to n most recent decisions, oldest first. n <= 0 returns the whole log.
func (e *DecisionEngine) Log(n int) []models.DecisionResult {
	return e.log.Tail(n)
}

// ModeHistogram counts decisions per mode; every mode is present.
func (e *DecisionEngine) ModeHistogram() map[models.ResponseMode]int {
	hist := make(map[models.ResponseMode]int, len(models.AllModes))
	for _, mode := range models.AllModes {
		hist[mode] = 0
	}
	for i := 0; i < e.log.Len(); i++ {
		hist[e.log.At(i).Mode]++
	}
	return hist
}

// TrimLog drops all but the newest keep decisions.
func (e *DecisionEngine) TrimLog(keep int) {
	e.log.Truncate(keep)
}

// Reset clears the decision log and the drift detector state.
func (e *DecisionEngine) Reset() {
	e.log.Clear()
	e.drift.Reset()
}
