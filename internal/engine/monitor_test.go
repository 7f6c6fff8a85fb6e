package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/forecast"
	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

type failingForecaster struct{}

func (failingForecaster) Name() string    { return "failing" }
func (failingForecaster) Version() string { return "failing-v1" }
func (failingForecaster) Available() bool { return true }

func (failingForecaster) Train(context.Context, []models.Vector) error { return nil }

func (failingForecaster) Predict(context.Context, []models.Vector) (forecast.Prediction, error) {
	return forecast.Prediction{}, errors.New("boom")
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Monitor.SequenceLength = 3
	cfg.Monitor.HistorySize = 5
	cfg.Monitor.DashboardWindow = 4
	return cfg
}

func newTestMonitor(t *testing.T, cfg config.Config, f forecast.Forecaster) (*Monitor, *utils.ManualClock) {
	t.Helper()
	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	return NewMonitor(nil, cfg, f, clock), clock
}

func TestMonitorNominalScenario(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil)
	if m.Phase() != models.PhaseEmpty {
		t.Fatalf("expected empty phase")
	}
	snap := m.ProcessMetrics(context.Background(), nominalSample())

	if snap.Phase != models.PhaseWarmingUp {
		t.Fatalf("expected warming up, got %s", snap.Phase)
	}
	if snap.Forecast != snap.Vector.Array() {
		t.Fatalf("warm-up forecast must equal the observation")
	}
	if snap.Decision.Mode != models.ModePassiveMonitoring || snap.Sustainability.Status != models.StatusHealthy {
		t.Fatalf("unexpected nominal snapshot: %+v", snap.Decision)
	}
	if !snap.InOSR || snap.ModelVersion != "kalman-v0" {
		t.Fatalf("unexpected osr/model: %v %s", snap.InOSR, snap.ModelVersion)
	}
}

func TestMonitorSaturatedScenario(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil)
	snap := m.ProcessMetrics(context.Background(), saturatedSample())

	if snap.Decision.Mode != models.ModeCriticalLockdown {
		t.Fatalf("expected critical lockdown, got %s", snap.Decision.Mode)
	}
	if snap.Sustainability.Index != 0 || snap.Sustainability.Status != models.StatusCritical {
		t.Fatalf("unexpected sustainability %+v", snap.Sustainability)
	}
	if len(snap.OSRViolations) != models.Dimension || snap.InOSR {
		t.Fatalf("expected every component violated, got %v", snap.OSRViolations)
	}
}

func TestMonitorSteadyStateAndHistoryBound(t *testing.T) {
	m, clock := newTestMonitor(t, testConfig(), nil)
	ctx := context.Background()

	var last models.MonitoringSnapshot
	for i := 0; i < 9; i++ {
		clock.Advance(time.Second)
		s := nominalSample()
		s.Timestamp = clock.Now()
		last = m.ProcessMetrics(ctx, s)
	}
	if last.Phase != models.PhaseSteady || m.Phase() != models.PhaseSteady {
		t.Fatalf("expected steady phase after warm-up")
	}
	if len(last.MultiStep) != config.DefaultEstimator().ForecastHorizon {
		t.Fatalf("expected multi-step forecast, got %d", len(last.MultiStep))
	}

	history := m.RecentHistory(0)
	if len(history) != 5 {
		t.Fatalf("history must be capped at 5, got %d", len(history))
	}
	if !history[0].Timestamp.Equal(time.Unix(1_700_000_005, 0)) {
		t.Fatalf("oldest snapshots must be evicted first, got %v", history[0].Timestamp)
	}
	if tail := m.RecentHistory(2); len(tail) != 2 || !tail[1].Timestamp.Equal(last.Timestamp) {
		t.Fatalf("unexpected tail %+v", tail)
	}
}

func TestMonitorStatistics(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil)
	if _, ok := m.Statistics(); ok {
		t.Fatalf("statistics must be empty without data")
	}
	if status := m.CurrentStatus(); status["status"] != "no_data" {
		t.Fatalf("expected no_data status, got %v", status)
	}

	ctx := context.Background()
	m.ProcessMetrics(ctx, nominalSample())
	m.ProcessMetrics(ctx, saturatedSample())

	stats, ok := m.Statistics()
	if !ok || stats.TotalSnapshots != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for i := 0; i < models.Dimension; i++ {
		if math.Abs(stats.Components.Mean[i]-0.5) > 1e-12 || math.Abs(stats.Components.Std[i]-0.5) > 1e-12 {
			t.Fatalf("component %d: mean %f std %f", i, stats.Components.Mean[i], stats.Components.Std[i])
		}
		if stats.Components.Min[i] != 0 || stats.Components.Max[i] != 1 {
			t.Fatalf("component %d: unexpected min/max", i)
		}
	}
	if stats.OSRViolations != 1 {
		t.Fatalf("expected one snapshot outside OSR, got %d", stats.OSRViolations)
	}
	if stats.ModeDistribution["passive_monitoring"] != 1 || stats.ModeDistribution["critical_lockdown"] != 1 {
		t.Fatalf("unexpected mode distribution %v", stats.ModeDistribution)
	}
	if len(stats.ModeDistribution) != len(models.AllModes) {
		t.Fatalf("mode distribution must list every mode")
	}

	status := m.CurrentStatus()
	if status["mode"] != int(models.ModeCriticalLockdown) || status["osr_violations"] != "C,L,Q,R,A" {
		t.Fatalf("unexpected status %v", status)
	}

	dash, ok := m.Dashboard(0)
	if !ok || len(dash.Timestamps) != 2 || len(dash.Trajectories["Q"]) != 2 || dash.Statistics.TotalSnapshots != 2 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
}

func TestMonitorForecasterFailureFallsBack(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), failingForecaster{})
	ctx := context.Background()
	var snap models.MonitoringSnapshot
	for i := 0; i < 4; i++ {
		snap = m.ProcessMetrics(ctx, nominalSample())
	}
	if !snap.Fallback {
		t.Fatalf("expected fallback flag in steady state")
	}
	if snap.Decision.Mode != models.ModePassiveMonitoring {
		t.Fatalf("fallback must still produce a decision, got %s", snap.Decision.Mode)
	}
}

func TestMonitorAutoRetrain(t *testing.T) {
	cfg := testConfig()
	cfg.Monitor.HistorySize = 40
	cfg.Decision.WindowSize = 1
	cfg.Decision.RetrainDuration = 0
	cfg.Estimator.MinTrainingSamples = 10
	m, _ := newTestMonitor(t, cfg, nil)
	ctx := context.Background()

	// one component down per sample keeps the window full rank
	profiles := []models.MetricSample{
		{Latency: 500, BackgroundRequests: 1},
		{Utilization: 0.85, BackgroundRequests: 1},
		{BlockingProbability: 0.05, BackgroundRequests: 1},
		{CPU: 0.95, BackgroundRequests: 1},
		{AnomalousRequests: 1},
	}
	for i := 0; i < 12; i++ {
		if snap := m.ProcessMetrics(ctx, profiles[i%len(profiles)]); snap.Retrained {
			t.Fatalf("unexpected refit at sample %d (similarity %f)", i, snap.Similarity.Similarity)
		}
	}

	// a zero observation has no direction, so similarity collapses to 0
	snap := m.ProcessMetrics(ctx, saturatedSample())
	if !snap.Similarity.NeedsRetraining || !snap.Retrained {
		t.Fatalf("expected automatic refit, got %+v", snap.Similarity)
	}
	if snap.ModelVersion != "kalman-v1" {
		t.Fatalf("expected version bump, got %s", snap.ModelVersion)
	}
}

func TestMonitorTrainTransitionAndReset(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil)

	data := make([]models.Vector, 20)
	data[0] = models.Vector{1, 0.8, 0.6, 0.4, 0.2}
	for step := 1; step < len(data); step++ {
		for i := range data[step] {
			data[step][i] = data[step-1][(i+1)%models.Dimension]
		}
	}
	res := m.TrainTransition(data)
	if !res.Fitted || res.ModelVersion != "kalman-v1" || res.Samples != 20 {
		t.Fatalf("unexpected train result %+v", res)
	}

	empty := m.TrainTransition(nil)
	if empty.Fitted || empty.Samples != 0 {
		t.Fatalf("empty window cannot be fitted: %+v", empty)
	}

	m.ProcessMetrics(context.Background(), nominalSample())
	m.Reset()
	if m.Phase() != models.PhaseEmpty || len(m.RecentHistory(0)) != 0 || len(m.DecisionLog(0)) != 0 {
		t.Fatalf("reset must clear history")
	}
	if est := m.Estimator(); est.Estimate != models.Uniform(0.8) {
		t.Fatalf("reset must reinitialise the estimator, got %v", est.Estimate)
	}
}

func TestMonitorConcurrentReaders(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m.CurrentStatus()
				m.RecentHistory(3)
				m.Statistics()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		m.ProcessMetrics(ctx, nominalSample())
	}
	wg.Wait()
	if got := len(m.RecentHistory(0)); got != 5 {
		t.Fatalf("expected capped history, got %d", got)
	}
}

func TestMonitorPlaybookRecommendations(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil)
	m.UsePlaybook(NewPlaybook([]PlaybookRule{
		{ID: "lockdown", Match: PlaybookMatch{MinMode: 9, Status: "critical"}, Recommendations: []string{"page on-call"}},
		{ID: "blocking", Match: PlaybookMatch{Violated: []string{"Q"}}, Recommendations: []string{"raise queue capacity"}},
	}, nil))

	nominal := m.ProcessMetrics(context.Background(), nominalSample())
	if len(nominal.Decision.Recommendations) != 0 {
		t.Fatalf("nominal sample should not match any rule: %v", nominal.Decision.Recommendations)
	}

	snap := m.ProcessMetrics(context.Background(), saturatedSample())
	if got := snap.Decision.Recommendations; len(got) != 2 || got[0] != "page on-call" {
		t.Fatalf("unexpected recommendations %v", got)
	}
	if m.CurrentStatus()["recommendations"] != "page on-call; raise queue capacity" {
		t.Fatalf("status must carry recommendations: %v", m.CurrentStatus()["recommendations"])
	}
}
