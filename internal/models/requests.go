package models

import (
	"fmt"
	"math"
)

// Transaction is one observed request handed to the sample collector.
type Transaction struct {
	ProcessingMs float64 `json:"processing_ms"`
	Blocked      bool    `json:"blocked"`
	Anomalous    bool    `json:"anomalous"`
}

// TransactionBatch carries transactions plus optional utilisation and resource readings.
// Without an explicit Utilization, rho is derived from ArrivalRate, Servers and ServiceRate
// when all three are present.
type TransactionBatch struct {
	Transactions []Transaction `json:"transactions"`
	Utilization  *float64      `json:"utilization,omitempty"`
	ArrivalRate  *float64      `json:"arrival_rate,omitempty"`
	Servers      *int          `json:"servers,omitempty"`
	ServiceRate  *float64      `json:"service_rate,omitempty"`
	CPU          *float64      `json:"cpu,omitempty"`
	RAM          *float64      `json:"ram,omitempty"`
}

// HasRates reports whether the batch carries the full queueing triple.
func (b TransactionBatch) HasRates() bool {
	return b.ArrivalRate != nil && b.Servers != nil && b.ServiceRate != nil
}

// FitRequest asks for a transition-matrix fit. Empty Vectors with Synthetic unset fits the
// retained window.
type FitRequest struct {
	Vectors   []Vector `json:"vectors"`
	Synthetic bool     `json:"synthetic"`
	Seed      uint64   `json:"seed,omitempty"`
}

// Validate rejects samples carrying non-finite or negative readings.
func (s MetricSample) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"latency_ms", s.Latency},
		{"utilization", s.Utilization},
		{"blocking_probability", s.BlockingProbability},
		{"cpu", s.CPU},
		{"ram", s.RAM},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s must be finite", f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%s must be non-negative", f.name)
		}
	}
	if s.AnomalousRequests < 0 || s.BackgroundRequests < 0 {
		return fmt.Errorf("request counts must be non-negative")
	}
	return nil
}

// Validate rejects negative or non-finite processing times.
func (b TransactionBatch) Validate() error {
	for i, tx := range b.Transactions {
		if math.IsNaN(tx.ProcessingMs) || math.IsInf(tx.ProcessingMs, 0) || tx.ProcessingMs < 0 {
			return fmt.Errorf("transactions[%d].processing_ms must be a non-negative number", i)
		}
	}
	readings := map[string]*float64{
		"utilization":  b.Utilization,
		"arrival_rate": b.ArrivalRate,
		"service_rate": b.ServiceRate,
		"cpu":          b.CPU,
		"ram":          b.RAM,
	}
	for name, v := range readings {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return fmt.Errorf("%s must be a non-negative number", name)
		}
	}
	if b.Servers != nil && *b.Servers < 0 {
		return fmt.Errorf("servers must be non-negative")
	}
	partial := b.ArrivalRate != nil || b.Servers != nil || b.ServiceRate != nil
	if partial && !b.HasRates() {
		return fmt.Errorf("arrival_rate, servers and service_rate must be set together")
	}
	return nil
}

// Validate rejects vectors with non-finite components.
func (r FitRequest) Validate() error {
	for i, v := range r.Vectors {
		for j, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("vectors[%d][%d] must be finite", i, j)
			}
		}
	}
	return nil
}
