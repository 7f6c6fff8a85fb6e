package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-resilience/internal/models"
)

const namespace = "mirador_resilience"

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total number of metric samples processed, partitioned by monitor phase.",
		},
		[]string{"phase"},
	)

	processingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Per-sample processing latency in seconds.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	sustainabilityIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sustainability_index",
		Help:      "Sustainability index of the latest forecast.",
	})

	similarity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "similarity",
		Help:      "Cosine similarity between the latest forecast and observation.",
	})

	similarityMovingAverage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "similarity_moving_average",
		Help:      "Moving average of recent similarities.",
	})

	responseMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "response_mode",
		Help:      "Latest response mode (1-9).",
	})

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of decisions, partitioned by response mode.",
		},
		[]string{"mode"},
	)

	componentValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_value",
			Help:      "Latest normalised value per resilience component.",
		},
		[]string{"component"},
	)

	osrViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "osr_violations_total",
			Help:      "Total number of samples with a component below its OSR threshold.",
		},
		[]string{"component"},
	)

	retrainTriggersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrain_triggers_total",
		Help:      "Total number of retrain triggers raised by drift detection.",
	})

	forecasterFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forecaster_fallbacks_total",
		Help:      "Total number of samples where the secondary forecaster failed and the Kalman estimate was used.",
	})

	innovation = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "innovation",
		Help:      "Norm of the latest Kalman measurement residual.",
	})
)

// Register attaches mirador-resilience collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		samplesTotal,
		processingSeconds,
		sustainabilityIndex,
		similarity,
		similarityMovingAverage,
		responseMode,
		decisionsTotal,
		componentValue,
		osrViolationsTotal,
		retrainTriggersTotal,
		forecasterFallbacksTotal,
		innovation,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSnapshot records the gauges and counters derived from one processed sample.
func ObserveSnapshot(snapshot models.MonitoringSnapshot, duration time.Duration) {
	phase := string(snapshot.Phase)
	if phase == "" {
		phase = string(models.PhaseWarmingUp)
	}
	samplesTotal.WithLabelValues(phase).Inc()
	if duration < 0 {
		duration = 0
	}
	processingSeconds.Observe(duration.Seconds())

	sustainabilityIndex.Set(snapshot.Sustainability.Index)
	similarity.Set(snapshot.Similarity.Similarity)
	similarityMovingAverage.Set(snapshot.Similarity.MovingAverage)
	innovation.Set(snapshot.Innovation)

	if snapshot.Decision.Mode.Valid() {
		responseMode.Set(float64(snapshot.Decision.Mode))
		decisionsTotal.WithLabelValues(snapshot.Decision.Mode.String()).Inc()
	}

	for i, v := range snapshot.Vector.Array() {
		componentValue.WithLabelValues(models.ComponentNames[i]).Set(v)
	}
	for _, name := range snapshot.OSRViolations {
		osrViolationsTotal.WithLabelValues(name).Inc()
	}
	if snapshot.Similarity.NeedsRetraining {
		retrainTriggersTotal.Inc()
	}
	if snapshot.Fallback {
		forecasterFallbacksTotal.Inc()
	}
}
