package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-resilience/internal/cache"
	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/engine"
	"github.com/miradorstack/mirador-resilience/internal/extractors"
	"github.com/miradorstack/mirador-resilience/internal/metrics"
	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/scenario"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

// ErrNotConfigured is returned when the service was built without a monitor.
var ErrNotConfigured = errors.New("monitor not configured")

// syntheticStepsPerScenario sizes the synthetic training set used by FitTransition.
const syntheticStepsPerScenario = 250

// MonitorService is the transport-facing facade over a Monitor. It records metrics, publishes
// the flat status to the cache and coordinates secondary forecaster retraining.
type MonitorService struct {
	logger    *slog.Logger
	monitor   *engine.Monitor
	collector *extractors.SampleCollector
	cache     cache.Provider
	cacheCfg  config.CacheConfig
	latencies *utils.LatencyTracker

	publishMu sync.Mutex
	wg        sync.WaitGroup
}

// NewMonitorService constructs the service. A nil collector or cache provider is replaced by a
// fresh collector and the noop cache.
func NewMonitorService(logger *slog.Logger, monitor *engine.Monitor, collector *extractors.SampleCollector, provider cache.Provider, cacheCfg config.CacheConfig) *MonitorService {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = extractors.NewSampleCollector()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &MonitorService{
		logger:    logger,
		monitor:   monitor,
		collector: collector,
		cache:     provider,
		cacheCfg:  cacheCfg,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Monitor exposes the wrapped monitor.
func (s *MonitorService) Monitor() *engine.Monitor { return s.monitor }

// Collector exposes the sample collector fed by RecordTransactions.
func (s *MonitorService) Collector() *extractors.SampleCollector { return s.collector }

// ProcessMetrics validates and ingests one sample.
func (s *MonitorService) ProcessMetrics(ctx context.Context, sample models.MetricSample) (models.MonitoringSnapshot, error) {
	if s.monitor == nil {
		return models.MonitoringSnapshot{}, ErrNotConfigured
	}
	if err := sample.Validate(); err != nil {
		return models.MonitoringSnapshot{}, utils.NewAppError("ProcessMetrics", err.Error(), utils.ErrInvalidRequest)
	}

	start := time.Now()
	snapshot := s.monitor.ProcessMetrics(ctx, sample)
	duration := time.Since(start)

	s.latencies.Observe(duration)
	metrics.ObserveSnapshot(snapshot, duration)
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		s.logger.Info("processing latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	if snapshot.Fallback {
		s.logger.Debug("secondary forecaster fallback", slog.String("snapshot_id", snapshot.ID))
	}

	s.publishStatus(ctx, snapshot)
	if snapshot.Retrained {
		s.retrainForecaster(s.monitor.Window())
	}
	return snapshot, nil
}

// Status returns the flat status map. When the monitor holds no data the last status published
// under the same monitor id is returned instead, tagged with "source": "cache".
func (s *MonitorService) Status(ctx context.Context) (map[string]any, error) {
	if s.monitor == nil {
		return nil, ErrNotConfigured
	}
	status := s.monitor.CurrentStatus()
	if status["status"] != "no_data" {
		return status, nil
	}

	payload, err := s.cache.Get(ctx, s.statusKey())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("status cache read failed", slog.Any("error", err))
		}
		return status, nil
	}
	var cached map[string]any
	if err := json.Unmarshal(payload, &cached); err != nil {
		s.logger.Warn("cached status is malformed", slog.Any("error", err))
		return status, nil
	}
	cached["source"] = "cache"
	return cached, nil
}

// History returns up to n condensed snapshots, oldest first.
func (s *MonitorService) History(n int) ([]models.HistoryEntry, error) {
	if s.monitor == nil {
		return nil, ErrNotConfigured
	}
	return s.monitor.RecentHistory(n), nil
}

// Statistics aggregates the retained window. The bool is false when there is no data.
func (s *MonitorService) Statistics() (models.Statistics, bool, error) {
	if s.monitor == nil {
		return models.Statistics{}, false, ErrNotConfigured
	}
	stats, ok := s.monitor.Statistics()
	return stats, ok, nil
}

// Dashboard projects the newest n snapshots.
func (s *MonitorService) Dashboard(n int) (models.Dashboard, bool, error) {
	if s.monitor == nil {
		return models.Dashboard{}, false, ErrNotConfigured
	}
	dash, ok := s.monitor.Dashboard(n)
	return dash, ok, nil
}

// Reset clears the monitor and collector and drops the published status.
func (s *MonitorService) Reset(ctx context.Context) error {
	if s.monitor == nil {
		return ErrNotConfigured
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.monitor.Reset()
	s.collector.ResetWindow()
	if err := s.cache.Del(ctx, s.statusKey()); err != nil {
		s.logger.Warn("status cache delete failed", slog.Any("error", err))
	}
	return nil
}

// FitTransition fits the transition matrix from the request. A successful fit also retrains
// the secondary forecaster in the background.
func (s *MonitorService) FitTransition(ctx context.Context, req models.FitRequest) (engine.TrainResult, error) {
	if s.monitor == nil {
		return engine.TrainResult{}, ErrNotConfigured
	}
	if err := req.Validate(); err != nil {
		return engine.TrainResult{}, utils.NewAppError("FitTransition", err.Error(), utils.ErrInvalidRequest)
	}

	data := req.Vectors
	if req.Synthetic {
		seed := req.Seed
		if seed == 0 {
			seed = 42
		}
		data = scenario.New(seed).Mixed(syntheticStepsPerScenario)
	}

	result := s.monitor.TrainTransition(data)
	s.logger.Info("transition fit requested",
		slog.Bool("fitted", result.Fitted),
		slog.Int("samples", result.Samples),
		slog.Bool("synthetic", req.Synthetic),
		slog.String("model_version", result.ModelVersion))
	if result.Fitted {
		if len(data) == 0 {
			data = s.monitor.Window()
		}
		s.retrainForecaster(data)
	}
	return result, nil
}

// RecordTransactions feeds a batch into the sample collector.
func (s *MonitorService) RecordTransactions(batch models.TransactionBatch) (extractors.CollectorStats, error) {
	if err := batch.Validate(); err != nil {
		return extractors.CollectorStats{}, utils.NewAppError("RecordTransactions", err.Error(), utils.ErrInvalidRequest)
	}
	for _, tx := range batch.Transactions {
		s.collector.RecordTransaction(tx.ProcessingMs, tx.Blocked, tx.Anomalous)
	}
	switch {
	case batch.Utilization != nil:
		s.collector.SetUtilization(*batch.Utilization)
	case batch.HasRates():
		s.collector.SetUtilization(extractors.UtilizationFromRates(*batch.ArrivalRate, *batch.Servers, *batch.ServiceRate))
	}
	if batch.CPU != nil || batch.RAM != nil {
		cpu, ram := s.collector.Resources()
		if batch.CPU != nil {
			cpu = *batch.CPU
		}
		if batch.RAM != nil {
			ram = *batch.RAM
		}
		s.collector.SetResources(cpu, ram)
	}
	return s.collector.Stats(), nil
}

// LatencyP95 returns the current p95 per-sample processing latency.
func (s *MonitorService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// Wait blocks until background forecaster retraining has finished.
func (s *MonitorService) Wait() {
	s.wg.Wait()
}

func (s *MonitorService) statusKey() string {
	id := ""
	if s.monitor != nil {
		id = s.monitor.ID()
	}
	return cache.StatusKey(s.cacheCfg.KeyPrefix, id)
}

// publishStatus writes the status of snapshot to the cache unless a newer snapshot has been
// produced since, so concurrent writers never publish out of order.
func (s *MonitorService) publishStatus(ctx context.Context, snapshot models.MonitoringSnapshot) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if latest, ok := s.monitor.Latest(); !ok || latest.ID != snapshot.ID {
		s.logger.Debug("skipping stale status publish", slog.String("snapshot_id", snapshot.ID))
		return
	}
	payload, err := json.Marshal(s.monitor.SnapshotStatus(snapshot))
	if err != nil {
		s.logger.Warn("status encode failed", slog.Any("error", err))
		return
	}
	if err := s.cache.Set(ctx, s.statusKey(), payload, s.cacheCfg.StatusTTL); err != nil {
		s.logger.Warn("status publish failed", slog.Any("error", err))
	}
}

// retrainForecaster trains the secondary forecaster asynchronously. The cache lock keeps
// replicas sharing a forecaster from training it concurrently.
func (s *MonitorService) retrainForecaster(data []models.Vector) {
	forecaster := s.monitor.Forecaster()
	if forecaster == nil || !forecaster.Available() || len(data) == 0 {
		return
	}

	ttl := s.cacheCfg.RetrainLockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	key := cache.RetrainLockKey(s.cacheCfg.KeyPrefix, s.monitor.ID())
	lockCtx, cancelLock := context.WithTimeout(context.Background(), 2*time.Second)
	acquired, err := s.cache.SetNX(lockCtx, key, []byte(s.monitor.ID()), ttl)
	cancelLock()
	if err != nil {
		s.logger.Warn("retrain lock unavailable", slog.Any("error", err))
		return
	}
	if !acquired {
		s.logger.Debug("forecaster retrain already running", slog.String("forecaster", forecaster.Name()))
		return
	}

	data = append([]models.Vector(nil), data...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ttl)
		defer cancel()
		defer func() {
			if err := s.cache.Del(context.Background(), key); err != nil {
				s.logger.Warn("retrain lock release failed", slog.Any("error", err))
			}
		}()

		if err := s.monitor.TrainForecaster(ctx, data); err != nil {
			s.logger.Warn("forecaster retrain failed", slog.String("forecaster", forecaster.Name()), slog.Any("error", err))
			return
		}
		s.logger.Info("forecaster retrained",
			slog.String("forecaster", forecaster.Name()),
			slog.String("version", forecaster.Version()),
			slog.Int("samples", len(data)))
	}()
}
