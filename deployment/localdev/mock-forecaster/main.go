package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

const dimension = 5

// model predicts the next vector as the last observation pulled toward the training mean.
type model struct {
	mu        sync.RWMutex
	mean      [dimension]float64
	trained   bool
	revisions int
}

func (m *model) version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("mock-v%d", m.revisions)
}

func (m *model) train(data [][]float64) error {
	var sum [dimension]float64
	for i, row := range data {
		if len(row) != dimension {
			return fmt.Errorf("data[%d] has %d components", i, len(row))
		}
		for j, v := range row {
			sum[j] += v
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for j := range sum {
		m.mean[j] = sum[j] / float64(len(data))
	}
	m.trained = true
	m.revisions++
	return nil
}

func (m *model) predict(sequence [][]float64) ([]float64, float64, error) {
	last := sequence[len(sequence)-1]
	if len(last) != dimension {
		return nil, 0, fmt.Errorf("sequence rows must have %d components", dimension)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]float64, dimension)
	copy(out, last)
	confidence := 0.5
	if m.trained {
		for j := range out {
			out[j] = 0.8*last[j] + 0.2*m.mean[j]
		}
		confidence = 0.8
	}
	return out, confidence, nil
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	flag.Parse()

	m := &model{}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/predict", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			Sequence [][]float64 `json:"sequence"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Sequence) == 0 {
			http.Error(w, "sequence is required", http.StatusBadRequest)
			return
		}
		vector, confidence, err := m.predict(req.Sequence)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"vector":        vector,
			"confidence":    confidence,
			"model_version": m.version(),
		})
	})

	mux.HandleFunc("/v1/train", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			Data [][]float64 `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Data) == 0 {
			http.Error(w, "data is required", http.StatusBadRequest)
			return
		}
		if err := m.train(req.Data); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"model_version": m.version(), "samples": len(req.Data)})
	})

	logger := log.New(log.Writer(), "forecaster-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
