package extractors

import (
	"math"
	"testing"
	"time"
)

func TestSampleCollectorAggregatesWindow(t *testing.T) {
	c := NewSampleCollector()
	c.RecordTransaction(10, false, false)
	c.RecordTransaction(20, true, false)
	c.RecordTransaction(30, false, true)
	c.RecordTransaction(40, true, true)
	c.SetUtilization(0.6)
	c.SetResources(0.3, 0.7)

	now := time.Unix(1_700_000_000, 0)
	s := c.Sample(now)
	if s.Latency != 25 {
		t.Fatalf("expected mean latency 25, got %f", s.Latency)
	}
	if s.BlockingProbability != 0.5 {
		t.Fatalf("expected blocking 0.5, got %f", s.BlockingProbability)
	}
	if s.AnomalousRequests != 2 || s.BackgroundRequests != 2 {
		t.Fatalf("unexpected counts %d/%d", s.AnomalousRequests, s.BackgroundRequests)
	}
	if s.Utilization != 0.6 || s.CPU != 0.3 || s.RAM != 0.7 || !s.Timestamp.Equal(now) {
		t.Fatalf("unexpected gauges %+v", s)
	}
	if p95 := c.Stats().P95Latency; p95 < 30*time.Millisecond {
		t.Fatalf("unexpected p95 %v", p95)
	}
}

func TestSampleCollectorEmptyWindow(t *testing.T) {
	c := NewSampleCollector()
	s := c.Sample(time.Now())
	if s.Latency != 0 || s.BlockingProbability != 0 || s.AnomalousRequests != 0 || s.BackgroundRequests != 0 {
		t.Fatalf("empty window must be zero, got %+v", s)
	}
	if _, ok := c.Drain(time.Now()); ok {
		t.Fatalf("drain of empty window must report false")
	}
}

func TestSampleCollectorLatencyWindowIsBounded(t *testing.T) {
	c := NewSampleCollector()
	for i := 0; i < 150; i++ {
		latency := 1.0
		if i >= 50 {
			latency = 3.0
		}
		c.RecordTransaction(latency, false, false)
	}
	if got := c.Sample(time.Now()).Latency; math.Abs(got-3) > 1e-12 {
		t.Fatalf("only the last %d samples count, got mean %f", latencyWindow, got)
	}
}

func TestSampleCollectorDrainResets(t *testing.T) {
	c := NewSampleCollector()
	c.SetUtilization(0.4)
	c.RecordTransaction(5, true, false)

	s, ok := c.Drain(time.Now())
	if !ok || s.BlockingProbability != 1 {
		t.Fatalf("unexpected drained sample %+v", s)
	}
	if c.Pending() != 0 {
		t.Fatalf("drain must start a new window")
	}
	if next := c.Sample(time.Now()); next.Utilization != 0.4 {
		t.Fatalf("utilisation must survive a window reset")
	}
}

func TestUtilizationFromRates(t *testing.T) {
	if rho := UtilizationFromRates(80, 4, 25); rho != 0.8 {
		t.Fatalf("expected 0.8, got %f", rho)
	}
	if rho := UtilizationFromRates(10, 0, 25); rho != 1 {
		t.Fatalf("zero capacity must saturate, got %f", rho)
	}
}
