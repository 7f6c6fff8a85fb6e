package extractors

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

// latencyWindow is how many recent processing times feed the mean latency.
const latencyWindow = 100

// CollectorStats summarises the current collection window.
type CollectorStats struct {
	Transactions int           `json:"transactions"`
	Blocked      int           `json:"blocked"`
	Anomalous    int           `json:"anomalous"`
	MeanLatency  float64       `json:"mean_latency_ms"`
	P95Latency   time.Duration `json:"p95_latency"`
}

// SampleCollector aggregates per-transaction observations into MetricSamples.
type SampleCollector struct {
	mu          sync.Mutex
	processing  *utils.Ring[float64]
	tracker     *utils.LatencyTracker
	total       int
	blocked     int
	anomalous   int
	utilization float64
	cpu         float64
	ram         float64
}

// NewSampleCollector creates an empty collector.
func NewSampleCollector() *SampleCollector {
	return &SampleCollector{
		processing: utils.NewRing[float64](latencyWindow),
		tracker:    utils.NewLatencyTracker(latencyWindow),
	}
}

// RecordTransaction adds one processed (or blocked) transaction to the window.
func (c *SampleCollector) RecordTransaction(processingMs float64, blocked, anomalous bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if blocked {
		c.blocked++
	}
	if anomalous {
		c.anomalous++
	}
	if processingMs > 0 {
		c.processing.Push(processingMs)
		c.tracker.Observe(time.Duration(processingMs * float64(time.Millisecond)))
	}
}

// SetUtilization records the latest server utilisation.
func (c *SampleCollector) SetUtilization(rho float64) {
	c.mu.Lock()
	c.utilization = rho
	c.mu.Unlock()
}

// SetResources records the latest CPU and RAM utilisation in [0,1].
func (c *SampleCollector) SetResources(cpu, ram float64) {
	c.mu.Lock()
	c.cpu, c.ram = cpu, ram
	c.mu.Unlock()
}

// Resources returns the last reported CPU and RAM utilisation.
func (c *SampleCollector) Resources() (cpu, ram float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cpu, c.ram
}

// UtilizationFromRates computes rho = lambda / (servers * mu), or 1 when capacity is zero.
func UtilizationFromRates(arrivalRate float64, servers int, serviceRate float64) float64 {
	capacity := float64(servers) * serviceRate
	if capacity <= 0 {
		return 1.0
	}
	return arrivalRate / capacity
}

// Pending reports how many transactions arrived since the last reset.
func (c *SampleCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Sample builds a MetricSample from the current window without clearing it.
func (c *SampleCollector) Sample(now time.Time) models.MetricSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleLocked(now)
}

func (c *SampleCollector) sampleLocked(now time.Time) models.MetricSample {
	blocking := 0.0
	if c.total > 0 {
		blocking = float64(c.blocked) / float64(c.total)
	}
	return models.MetricSample{
		Latency:             c.meanLatencyLocked(),
		Utilization:         c.utilization,
		BlockingProbability: blocking,
		CPU:                 c.cpu,
		RAM:                 c.ram,
		AnomalousRequests:   c.anomalous,
		BackgroundRequests:  c.total - c.anomalous,
		Timestamp:           now,
	}
}

func (c *SampleCollector) meanLatencyLocked() float64 {
	if c.processing.Len() == 0 {
		return 0
	}
	values := c.processing.Slice()
	return floats.Sum(values) / float64(len(values))
}

// Stats summarises the current window.
func (c *SampleCollector) Stats() CollectorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CollectorStats{
		Transactions: c.total,
		Blocked:      c.blocked,
		Anomalous:    c.anomalous,
		MeanLatency:  c.meanLatencyLocked(),
		P95Latency:   c.tracker.Percentile(95),
	}
}

// Drain returns the current sample and starts a new window.
func (c *SampleCollector) Drain(now time.Time) (models.MetricSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sample := c.sampleLocked(now)
	if c.total == 0 {
		return sample, false
	}
	c.resetLocked()
	return sample, true
}

// ResetWindow clears counters and latencies. Utilisation and resources are kept.
func (c *SampleCollector) ResetWindow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *SampleCollector) resetLocked() {
	c.processing.Clear()
	c.tracker.Reset()
	c.total, c.blocked, c.anomalous = 0, 0, 0
}
