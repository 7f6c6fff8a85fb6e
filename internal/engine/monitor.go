package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/estimator"
	"github.com/miradorstack/mirador-resilience/internal/forecast"
	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

// TrainResult reports the outcome of a transition-matrix fit.
type TrainResult struct {
	Fitted       bool             `json:"fitted"`
	Samples      int              `json:"samples"`
	ModelVersion string           `json:"model_version"`
	Transition   estimator.Matrix `json:"transition_matrix"`
}

// Monitor threads metric samples through normalisation, estimation, drift detection and the
// decision matrix, keeping a bounded history of snapshots. ProcessMetrics, TrainTransition and
// Reset take the write lock; every read accessor takes the read lock.
type Monitor struct {
	mu sync.RWMutex

	id     string
	cfg    config.MonitorConfig
	logger *slog.Logger
	clock  utils.Clock

	normalizer *Normalizer
	decisions  *DecisionEngine
	hybrid     *estimator.Hybrid
	playbook   *Playbook

	vectors   *utils.Ring[models.Vector]
	snapshots *utils.Ring[models.MonitoringSnapshot]
	revision  int
}

// NewMonitor constructs a monitor. A nil forecaster behaves as no secondary forecaster, a nil
// clock uses the system clock.
func NewMonitor(logger *slog.Logger, cfg config.Config, forecaster forecast.Forecaster, clock utils.Clock) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	history := cfg.Monitor.HistorySize
	if history < cfg.Monitor.SequenceLength {
		history = cfg.Monitor.SequenceLength
	}

	id := uuid.NewString()
	return &Monitor{
		id:         id,
		cfg:        cfg.Monitor,
		logger:     logger.With(slog.String("monitor_id", id)),
		clock:      clock,
		normalizer: NewNormalizer(cfg.Vector),
		decisions:  NewDecisionEngine(cfg.Vector, cfg.Decision, clock),
		hybrid: estimator.NewHybrid(
			estimator.NewKalman(cfg.Estimator),
			forecaster,
			cfg.Forecaster.BlendWeight,
			cfg.Estimator.ForecastHorizon,
			logger,
		),
		vectors:   utils.NewRing[models.Vector](history),
		snapshots: utils.NewRing[models.MonitoringSnapshot](history),
	}
}

// UsePlaybook attaches operator recommendations to subsequent decisions. nil disables them.
func (m *Monitor) UsePlaybook(p *Playbook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbook = p
}

// ID returns the monitor instance id.
func (m *Monitor) ID() string { return m.id }

// Forecaster returns the secondary forecaster in use.
func (m *Monitor) Forecaster() forecast.Forecaster { return m.hybrid.Forecaster() }

// ProcessMetrics ingests one sample and returns the resulting snapshot. It never fails.
func (m *Monitor) ProcessMetrics(ctx context.Context, sample models.MetricSample) models.MonitoringSnapshot {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.clock.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rv := m.normalizer.Normalize(sample)
	sust := m.normalizer.Sustainability(rv)
	observed := rv.Array()
	m.vectors.Push(observed)

	snapshot := models.MonitoringSnapshot{
		ID:             uuid.NewString(),
		Timestamp:      sample.Timestamp,
		Phase:          models.PhaseWarmingUp,
		Vector:         rv,
		Sustainability: sust,
		Forecast:       observed,
		ModelVersion:   m.kalmanVersion(),
	}

	if m.vectors.Len() >= m.cfg.SequenceLength {
		snapshot.Phase = models.PhaseSteady
		pred := m.hybrid.UpdateAndPredict(ctx, observed, m.vectors.Tail(m.cfg.SequenceLength), sample.Timestamp)
		snapshot.Forecast = pred.Forecast
		snapshot.MultiStep = pred.MultiStep
		snapshot.Innovation = pred.Innovation
		snapshot.Fallback = pred.Fallback
		if pred.ModelVersion != "" {
			snapshot.ModelVersion = pred.ModelVersion
		}
	}

	classifier := m.decisions.Classifier()
	decision := m.decisions.Decide(snapshot.Forecast, observed, classifier.Thresholds())
	decision.Recommendations = m.playbook.Recommend(decision, sust.Status)
	snapshot.Decision = decision
	snapshot.Similarity = decision.Similarity
	snapshot.InOSR = classifier.InOSR(observed)
	snapshot.OSRViolations = classifier.ViolatedComponents(observed)
	snapshot.OSRMargin = classifier.Margin(observed)

	if decision.Similarity.NeedsRetraining {
		m.logger.Info("retrain triggered",
			slog.Float64("similarity_ma", decision.Similarity.MovingAverage),
			slog.Bool("auto_retrain", m.cfg.AutoRetrain))
		if m.cfg.AutoRetrain && m.fitLocked(m.vectors.Slice()) {
			snapshot.Retrained = true
			snapshot.ModelVersion = m.kalmanVersion()
		}
	}

	m.snapshots.Push(snapshot)
	m.logger.Debug("sample processed",
		slog.String("phase", string(snapshot.Phase)),
		slog.Float64("sust_index", sust.Index),
		slog.Float64("similarity", decision.SimilarityValue),
		slog.Int("mode", int(decision.Mode)))
	return snapshot
}

func (m *Monitor) kalmanVersion() string {
	return fmt.Sprintf("kalman-v%d", m.revision)
}

func (m *Monitor) fitLocked(data []models.Vector) bool {
	if !m.hybrid.Fit(data) {
		m.logger.Debug("transition fit skipped", slog.Int("samples", len(data)))
		return false
	}
	m.revision++
	m.logger.Info("transition matrix refit", slog.Int("samples", len(data)), slog.String("model_version", m.kalmanVersion()))
	return true
}

// TrainTransition fits the transition matrix from data, or from the retained window when data is empty.
func (m *Monitor) TrainTransition(data []models.Vector) TrainResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(data) == 0 {
		data = m.vectors.Slice()
	}
	fitted := m.fitLocked(data)
	return TrainResult{
		Fitted:       fitted,
		Samples:      len(data),
		ModelVersion: m.kalmanVersion(),
		Transition:   m.hybrid.Kalman().Transition(),
	}
}

// TrainForecaster retrains the secondary forecaster on data. It does not take the monitor lock.
func (m *Monitor) TrainForecaster(ctx context.Context, data []models.Vector) error {
	return m.hybrid.TrainSecondary(ctx, data)
}

// Window returns the retained vectors, oldest first.
func (m *Monitor) Window() []models.Vector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vectors.Slice()
}

// Phase reports the lifecycle state.
func (m *Monitor) Phase() models.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phaseLocked()
}

func (m *Monitor) phaseLocked() models.Phase {
	switch n := m.vectors.Len(); {
	case n == 0:
		return models.PhaseEmpty
	case n < m.cfg.SequenceLength:
		return models.PhaseWarmingUp
	default:
		return models.PhaseSteady
	}
}

// Latest returns the newest snapshot.
func (m *Monitor) Latest() (models.MonitoringSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots.Last()
}

// CurrentStatus flattens the newest snapshot. With no data it returns {"status": "no_data"}.
func (m *Monitor) CurrentStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() map[string]any {
	latest, ok := m.snapshots.Last()
	if !ok {
		return map[string]any{"status": "no_data", "monitor_id": m.id, "phase": string(models.PhaseEmpty)}
	}
	return m.statusOf(latest, m.phaseLocked())
}

// SnapshotStatus flattens snapshot the way CurrentStatus flattens the newest one, using the
// phase recorded on the snapshot.
func (m *Monitor) SnapshotStatus(snapshot models.MonitoringSnapshot) map[string]any {
	return m.statusOf(snapshot, snapshot.Phase)
}

func (m *Monitor) statusOf(latest models.MonitoringSnapshot, phase models.Phase) map[string]any {
	classifier := m.decisions.Classifier()
	worst, worstValue := classifier.WorstComponent(latest.Vector.Array())
	willExit, exiting := classifier.WillExitOSR(latest.Forecast)

	predicted := make([]any, 0, models.Dimension)
	for _, v := range latest.Forecast {
		predicted = append(predicted, v)
	}

	return map[string]any{
		"status":           string(latest.Sustainability.Status),
		"monitor_id":       m.id,
		"snapshot_id":      latest.ID,
		"timestamp":        latest.Timestamp.UTC().Format(time.RFC3339Nano),
		"phase":            string(phase),
		"C":                latest.Vector.C,
		"L":                latest.Vector.L,
		"Q":                latest.Vector.Q,
		"R":                latest.Vector.R,
		"A":                latest.Vector.A,
		"sust_index":       latest.Sustainability.Index,
		"forecast":         predicted,
		"similarity":       latest.Similarity.Similarity,
		"similarity_ma":    latest.Similarity.MovingAverage,
		"similarity_level": string(latest.Similarity.Level),
		"alert":            latest.Similarity.Alert,
		"needs_retraining": latest.Similarity.NeedsRetraining,
		"mode":             int(latest.Decision.Mode),
		"mode_name":        latest.Decision.Mode.String(),
		"action":           latest.Decision.Action,
		"reason":           latest.Decision.Reason,
		"recommendations":  strings.Join(latest.Decision.Recommendations, "; "),
		"in_osr":           latest.InOSR,
		"osr_violations":   strings.Join(latest.OSRViolations, ","),
		"osr_margin":       latest.OSRMargin,
		"worst_component":  worst,
		"worst_value":      worstValue,
		"will_exit_osr":    willExit,
		"exiting":          strings.Join(exiting, ","),
		"innovation":       latest.Innovation,
		"model_version":    latest.ModelVersion,
	}
}

// RecentHistory returns up to n condensed snapshots, oldest first. n <= 0 returns the whole window.
func (m *Monitor) RecentHistory(n int) []models.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots.Tail(n)
	out := make([]models.HistoryEntry, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, models.HistoryEntry{
			Timestamp:      s.Timestamp,
			Vector:         s.Vector.Array(),
			Sustainability: s.Sustainability.Index,
			Similarity:     s.Similarity.Similarity,
			Mode:           s.Decision.Mode,
			InOSR:          s.InOSR,
		})
	}
	return out
}

// Statistics aggregates the retained window. The bool is false when no snapshot is retained.
func (m *Monitor) Statistics() (models.Statistics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statisticsLocked()
}

func (m *Monitor) statisticsLocked() (models.Statistics, bool) {
	snaps := m.snapshots.Slice()
	if len(snaps) == 0 {
		return models.Statistics{}, false
	}

	stats := models.Statistics{
		TotalSnapshots:   len(snaps),
		ModeDistribution: make(map[string]int, len(models.AllModes)),
	}
	for _, mode := range models.AllModes {
		stats.ModeDistribution[mode.String()] = 0
	}

	columns := make([][]float64, models.Dimension)
	sust := make([]float64, 0, len(snaps))
	sims := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		for i, v := range s.Vector.Array() {
			columns[i] = append(columns[i], v)
		}
		sust = append(sust, s.Sustainability.Index)
		sims = append(sims, s.Similarity.Similarity)
		stats.ModeDistribution[s.Decision.Mode.String()]++
		if !s.InOSR {
			stats.OSRViolations++
		}
	}

	for i, col := range columns {
		mean, std := stat.PopMeanStdDev(col, nil)
		stats.Components.Mean[i] = mean
		stats.Components.Std[i] = std
		stats.Components.Min[i] = floats.Min(col)
		stats.Components.Max[i] = floats.Max(col)
	}
	stats.Sustainability = scalarStats(sust)
	stats.Similarity = scalarStats(sims)
	return stats, true
}

func scalarStats(values []float64) models.ScalarStats {
	return models.ScalarStats{
		Mean: stat.Mean(values, nil),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}

// Dashboard projects the newest n snapshots into trajectories. The bool is false with no data.
func (m *Monitor) Dashboard(n int) (models.Dashboard, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 {
		n = m.cfg.DashboardWindow
	}
	recent := m.snapshots.Tail(n)
	if len(recent) == 0 {
		return models.Dashboard{}, false
	}

	dash := models.Dashboard{
		Timestamps:     make([]time.Time, 0, len(recent)),
		Trajectories:   make(map[string][]float64, models.Dimension),
		Sustainability: make([]float64, 0, len(recent)),
		Similarity:     make([]float64, 0, len(recent)),
		Modes:          make([]models.ResponseMode, 0, len(recent)),
		Current:        m.statusLocked(),
	}
	for _, s := range recent {
		dash.Timestamps = append(dash.Timestamps, s.Timestamp)
		for i, v := range s.Vector.Array() {
			name := models.ComponentNames[i]
			dash.Trajectories[name] = append(dash.Trajectories[name], v)
		}
		dash.Sustainability = append(dash.Sustainability, s.Sustainability.Index)
		dash.Similarity = append(dash.Similarity, s.Similarity.Similarity)
		dash.Modes = append(dash.Modes, s.Decision.Mode)
	}
	dash.Statistics, _ = m.statisticsLocked()
	return dash, true
}

// DecisionLog returns up to n recent decisions from the engine's log.
func (m *Monitor) DecisionLog(n int) []models.DecisionResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decisions.Log(n)
}

// ModeHistogram counts every decision in the engine's log per mode.
func (m *Monitor) ModeHistogram() map[models.ResponseMode]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decisions.ModeHistogram()
}

// Estimator returns a copy of the filter state.
func (m *Monitor) Estimator() estimator.State {
	return m.hybrid.Kalman().State()
}

// Reset clears retained history, the decision log and drift state, and re-initialises the
// estimator. The learned transition matrix is kept.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vectors.Clear()
	m.snapshots.Clear()
	m.decisions.Reset()
	m.hybrid.Reset()
	m.logger.Info("monitor reset")
}
