package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-resilience/internal/utils"
)

// Sampler periodically drains the service's collector into the monitor.
type Sampler struct {
	logger   *slog.Logger
	service  *MonitorService
	interval time.Duration
	clock    utils.Clock
}

// NewSampler builds a sampler ticking every interval.
func NewSampler(logger *slog.Logger, service *MonitorService, interval time.Duration, clock utils.Clock) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sampler{logger: logger, service: service, interval: interval, clock: clock}
}

// Run ticks until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sampler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick drains the collector once. It reports whether a sample was processed; an empty window
// is skipped.
func (s *Sampler) Tick(ctx context.Context) bool {
	sample, ok := s.service.Collector().Drain(s.clock.Now())
	if !ok {
		return false
	}
	if _, err := s.service.ProcessMetrics(ctx, sample); err != nil {
		s.logger.Warn("sampled metrics rejected", slog.Any("error", err))
		return false
	}
	return true
}
