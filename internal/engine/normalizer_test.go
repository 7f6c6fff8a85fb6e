package engine

import (
	"math"
	"testing"
	"time"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

func nominalSample() models.MetricSample {
	return models.MetricSample{
		Latency:            5,
		BackgroundRequests: 100,
		Timestamp:          time.Unix(1_700_000_000, 0),
	}
}

func saturatedSample() models.MetricSample {
	return models.MetricSample{
		Latency:             1000,
		Utilization:         2,
		BlockingProbability: 1,
		CPU:                 1,
		RAM:                 1,
		AnomalousRequests:   100,
		Timestamp:           time.Unix(1_700_000_000, 0),
	}
}

func TestNormalizeNominal(t *testing.T) {
	n := NewNormalizer(config.DefaultVector())
	rv := n.Normalize(nominalSample())
	if rv.Array() != models.Uniform(1) {
		t.Fatalf("expected all components 1, got %+v", rv.Array())
	}
	sust := n.Sustainability(rv)
	if math.Abs(sust.Index-1) > 1e-12 || sust.Status != models.StatusHealthy || !sust.InOSR {
		t.Fatalf("unexpected sustainability: %+v", sust)
	}
	if len(sust.Violated) != 0 {
		t.Fatalf("expected no violations, got %v", sust.Violated)
	}
}

func TestNormalizeSaturated(t *testing.T) {
	n := NewNormalizer(config.DefaultVector())
	rv := n.Normalize(saturatedSample())
	if rv.Array() != models.Uniform(0) {
		t.Fatalf("expected all components 0, got %+v", rv.Array())
	}
	sust := n.Sustainability(rv)
	if sust.Index != 0 || sust.Status != models.StatusCritical || sust.InOSR {
		t.Fatalf("unexpected sustainability: %+v", sust)
	}
	if len(sust.Violated) != models.Dimension {
		t.Fatalf("expected five violations, got %v", sust.Violated)
	}
	if rv.Raw.AnomalyShare != 1 || rv.Raw.Resource != 1 {
		t.Fatalf("unexpected raw inputs %+v", rv.Raw)
	}
}

func TestNormalizeComponentFormulas(t *testing.T) {
	cfg := config.DefaultVector()
	n := NewNormalizer(cfg)
	rv := n.Normalize(models.MetricSample{
		Latency:             255,
		Utilization:         0.425,
		BlockingProbability: 0.025,
		CPU:                 0.2,
		RAM:                 0.475,
		AnomalousRequests:   1,
		BackgroundRequests:  3,
	})
	want := models.Vector{0.5, 0.75, 0.5, 0.5, 0.75}
	for i := range want {
		if math.Abs(rv.Array()[i]-want[i]) > 1e-9 {
			t.Fatalf("component %s: want %f got %f", models.ComponentNames[i], want[i], rv.Array()[i])
		}
	}
}

func TestNormalizeHugeRequestCounts(t *testing.T) {
	n := NewNormalizer(config.DefaultVector())
	rv := n.Normalize(models.MetricSample{AnomalousRequests: math.MaxInt, BackgroundRequests: math.MaxInt})
	if math.Abs(rv.A-0.5) > 1e-12 || math.Abs(rv.Raw.AnomalyShare-0.5) > 1e-12 {
		t.Fatalf("expected an even anomaly split, got A=%f share=%f", rv.A, rv.Raw.AnomalyShare)
	}
}

func TestNormalizeBoundsAcrossInputs(t *testing.T) {
	n := NewNormalizer(config.DefaultVector())
	latencies := []float64{-5, 0, 10, 11, 250, 500, 10_000, math.NaN()}
	utils := []float64{-1, 0, 0.5, 0.85, 3}
	blocking := []float64{-0.1, 0, 0.01, 0.05, 1}
	resources := []float64{-1, 0, 0.5, 0.95, 2}
	counts := [][2]int{{0, 0}, {-3, 1}, {5, 0}, {1, 1}, {0, 7}}

	for _, lat := range latencies {
		for _, rho := range utils {
			for _, pb := range blocking {
				for _, res := range resources {
					for _, c := range counts {
						s := models.MetricSample{Latency: lat, Utilization: rho, BlockingProbability: pb, CPU: res, RAM: res / 2, AnomalousRequests: c[0], BackgroundRequests: c[1]}
						rv := n.Normalize(s)
						for i, v := range rv.Array() {
							if v < 0 || v > 1 || math.IsNaN(v) {
								t.Fatalf("component %d out of range (%f) for %+v", i, v, s)
							}
						}
						if idx := n.Sustainability(rv).Index; idx < 0 || idx > 1 {
							t.Fatalf("index out of range %f", idx)
						}
						if lat <= 10 && rv.C != 1 {
							t.Fatalf("latency %f within base must give C=1, got %f", lat, rv.C)
						}
					}
				}
			}
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[float64]models.SystemStatus{
		0.81: models.StatusHealthy,
		0.8:  models.StatusDegraded,
		0.5:  models.StatusDegraded,
		0.49: models.StatusCritical,
	}
	for index, want := range cases {
		if got := StatusFor(index); got != want {
			t.Fatalf("index %f: want %s got %s", index, want, got)
		}
	}
}

func TestStabilityClassifierDiagnostics(t *testing.T) {
	c := NewStabilityClassifier(config.DefaultVector(), config.DefaultDecision())
	v := models.Vector{0.9, 0.65, 0.85, 0.6, 0.95}

	if c.InOSR(v) {
		t.Fatalf("L below threshold must leave OSR")
	}
	violations := c.Violations(v)
	if len(violations) != 1 || violations[0].Component != "L" || violations[0].Threshold != 0.7 {
		t.Fatalf("unexpected violations %+v", violations)
	}
	if margin := c.Margin(v); math.Abs(margin-(-0.05)) > 1e-9 {
		t.Fatalf("expected margin -0.05, got %f", margin)
	}
	if name, value := c.WorstComponent(v); name != "R" || value != 0.6 {
		t.Fatalf("unexpected worst component %s=%f", name, value)
	}
	exit, names := c.WillExitOSR(models.Uniform(1))
	if exit || len(names) != 0 {
		t.Fatalf("all-ones forecast stays in OSR")
	}
	if c.Level(0.81) != models.LevelHigh || c.Level(0.5) != models.LevelMedium || c.Level(0.1) != models.LevelLow {
		t.Fatalf("unexpected level ladder")
	}
}
