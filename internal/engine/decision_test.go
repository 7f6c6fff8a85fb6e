package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

func newDecisionEngine() *DecisionEngine {
	return NewDecisionEngine(config.DefaultVector(), config.DefaultDecision(), utils.NewManualClock(time.Unix(1_700_000_000, 0)))
}

func TestModeForTable(t *testing.T) {
	levels := []models.Level{models.LevelHigh, models.LevelMedium, models.LevelLow}
	want := models.ModePassiveMonitoring
	for _, sust := range levels {
		for _, sim := range levels {
			if got := ModeFor(sust, sim); got != want {
				t.Fatalf("(%s,%s): want %s got %s", sust, sim, want, got)
			}
			if again := ModeFor(sust, sim); again != want {
				t.Fatalf("lookup must be deterministic")
			}
			want++
		}
	}
}

func TestDecideNominalAndCritical(t *testing.T) {
	e := newDecisionEngine()
	osr := config.DefaultVector().OSR.Array()

	nominal := e.Decide(models.Uniform(1), models.Uniform(1), osr)
	if nominal.Mode != models.ModePassiveMonitoring || nominal.Action != "pass" {
		t.Fatalf("unexpected nominal decision: %+v", nominal)
	}
	if nominal.Reason != "system nominal" {
		t.Fatalf("unexpected reason %q", nominal.Reason)
	}

	critical := e.Decide(models.Uniform(0), models.Uniform(0), osr)
	if critical.Mode != models.ModeCriticalLockdown || critical.Action != "critical_lockdown" {
		t.Fatalf("unexpected critical decision: %+v", critical)
	}
	for _, clause := range []string{"critically low sustainability index", "low forecast quality", "OSR components violated: C, L, Q, R, A"} {
		if !strings.Contains(critical.Reason, clause) {
			t.Fatalf("reason %q missing %q", critical.Reason, clause)
		}
	}
}

func TestDecideUsesForecastSustainabilityAndObservedViolations(t *testing.T) {
	e := newDecisionEngine()
	osr := config.DefaultVector().OSR.Array()

	// forecast is healthy, observed sits just outside the region on A
	forecast := models.Uniform(1)
	observed := models.Vector{1, 1, 1, 1, 0.85}
	res := e.Decide(forecast, observed, osr)

	if res.SustainabilityLevel != models.LevelHigh {
		t.Fatalf("sustainability must come from forecast, got %s", res.SustainabilityLevel)
	}
	if len(res.Violated) != 1 || res.Violated[0] != "A" {
		t.Fatalf("violations must come from observed, got %v", res.Violated)
	}
	if res.Mode != models.ModePassiveMonitoring {
		t.Fatalf("expected mode 1, got %s", res.Mode)
	}
	if res.Reason != "OSR components violated: A" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestDecisionLogAndHistogram(t *testing.T) {
	e := newDecisionEngine()
	osr := config.DefaultVector().OSR.Array()
	for i := 0; i < 3; i++ {
		e.Decide(models.Uniform(1), models.Uniform(1), osr)
	}
	e.Decide(models.Uniform(0), models.Uniform(0), osr)

	hist := e.ModeHistogram()
	if len(hist) != len(models.AllModes) {
		t.Fatalf("histogram must include every mode, got %d", len(hist))
	}
	if hist[models.ModePassiveMonitoring] != 3 || hist[models.ModeCriticalLockdown] != 1 {
		t.Fatalf("unexpected histogram %v", hist)
	}
	if log := e.Log(2); len(log) != 2 || log[1].Mode != models.ModeCriticalLockdown {
		t.Fatalf("unexpected log tail %+v", log)
	}

	e.TrimLog(1)
	if log := e.Log(0); len(log) != 1 || log[0].Mode != models.ModeCriticalLockdown {
		t.Fatalf("trim must keep the newest decision, got %+v", log)
	}
	e.Reset()
	if len(e.Log(0)) != 0 {
		t.Fatalf("reset must clear the log")
	}
}

func TestDecisionLogBounded(t *testing.T) {
	dec := config.DefaultDecision()
	dec.DecisionLogCapacity = 5
	e := NewDecisionEngine(config.DefaultVector(), dec, nil)
	for i := 0; i < 12; i++ {
		e.Decide(models.Uniform(1), models.Uniform(1), models.Vector{})
	}
	if got := len(e.Log(0)); got != 5 {
		t.Fatalf("decision log must be capped at 5, got %d", got)
	}
}
