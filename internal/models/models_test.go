package models

import "testing"

func TestResponseModeActions(t *testing.T) {
	if len(AllModes) != 9 {
		t.Fatalf("expected nine modes, got %d", len(AllModes))
	}
	seen := make(map[string]struct{})
	for i, mode := range AllModes {
		if int(mode) != i+1 {
			t.Fatalf("modes out of order at %d: %d", i, mode)
		}
		if !mode.Valid() {
			t.Fatalf("mode %d reported invalid", mode)
		}
		action := mode.Action()
		if action == "" {
			t.Fatalf("mode %s has no action", mode)
		}
		if _, dup := seen[action]; dup {
			t.Fatalf("action %q mapped twice", action)
		}
		seen[action] = struct{}{}
	}
	if ResponseMode(0).Valid() || ResponseMode(10).Valid() {
		t.Fatalf("out-of-range modes must be invalid")
	}
	if ModeCriticalLockdown.String() != "critical_lockdown" {
		t.Fatalf("unexpected name %s", ModeCriticalLockdown)
	}
}

func TestVectorFromSlice(t *testing.T) {
	v, ok := VectorFromSlice([]float64{0.1, 0.2, 0.3, 0.4, 0.5})
	if !ok || v[ComponentAnomaly] != 0.5 {
		t.Fatalf("unexpected conversion: %v %v", v, ok)
	}
	if _, ok := VectorFromSlice([]float64{1, 2}); ok {
		t.Fatalf("short slice must be rejected")
	}
}

func TestMetricSampleValidate(t *testing.T) {
	ok := MetricSample{Latency: 12, Utilization: 0.5, CPU: 0.3, RAM: 0.4, BackgroundRequests: 10}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := ok
	bad.Latency = -1
	if err := bad.Validate(); err == nil {
		t.Fatalf("negative latency must be rejected")
	}
	bad = ok
	bad.AnomalousRequests = -3
	if err := bad.Validate(); err == nil {
		t.Fatalf("negative counts must be rejected")
	}
}

func TestTransactionBatchValidate(t *testing.T) {
	rho := 0.7
	batch := TransactionBatch{Transactions: []Transaction{{ProcessingMs: 5}}, Utilization: &rho}
	if err := batch.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	neg := -0.1
	batch.CPU = &neg
	if err := batch.Validate(); err == nil {
		t.Fatalf("negative cpu must be rejected")
	}

	batch.CPU = nil
	arrival := 6.0
	batch.ArrivalRate = &arrival
	if err := batch.Validate(); err == nil {
		t.Fatalf("an arrival rate without servers and service rate must be rejected")
	}
	servers, service := 2, 5.0
	batch.Servers, batch.ServiceRate = &servers, &service
	if err := batch.Validate(); err != nil || !batch.HasRates() {
		t.Fatalf("complete rates must validate: %v", err)
	}
	servers = -1
	if err := batch.Validate(); err == nil {
		t.Fatalf("negative servers must be rejected")
	}
}
