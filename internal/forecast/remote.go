package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

// Remote calls an external sequence-model server over HTTP JSON.
type Remote struct {
	baseURL     string
	predictPath string
	trainPath   string
	apiKey      string
	httpClient  *http.Client
	logger      *slog.Logger

	mu      sync.RWMutex
	version string
}

// NewRemote constructs a client for the configured endpoint.
func NewRemote(cfg config.ForecasterConfig, logger *slog.Logger) (*Remote, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if base == "" {
		return nil, fmt.Errorf("remote forecaster endpoint not configured")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse forecaster endpoint: %w", err)
	}
	return &Remote{
		baseURL:     base,
		predictPath: cfg.PredictPath,
		trainPath:   cfg.TrainPath,
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
		version:     "remote",
	}, nil
}

func (r *Remote) Name() string { return config.ForecasterRemote }

// Version returns the model version reported by the last successful call.
func (r *Remote) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Remote) Available() bool { return r != nil && r.baseURL != "" }

// Train uploads a training dataset.
func (r *Remote) Train(ctx context.Context, data []models.Vector) error {
	if !r.Available() {
		return ErrUnavailable
	}
	if len(data) == 0 {
		return fmt.Errorf("remote forecaster: empty training set")
	}
	payload := map[string]any{"data": data}
	var response struct {
		ModelVersion string `json:"model_version"`
	}
	if err := r.postJSON(ctx, r.resolvePath(r.trainPath), payload, &response); err != nil {
		return fmt.Errorf("remote forecaster train request failed: %w", err)
	}
	r.setVersion(response.ModelVersion)
	r.logger.Info("remote forecaster trained", slog.Int("samples", len(data)), slog.String("model_version", r.Version()))
	return nil
}

// Predict requests the next vector for sequence.
func (r *Remote) Predict(ctx context.Context, sequence []models.Vector) (Prediction, error) {
	if !r.Available() {
		return Prediction{}, ErrUnavailable
	}
	if len(sequence) == 0 {
		return Prediction{}, fmt.Errorf("remote forecaster: empty sequence")
	}

	var response struct {
		Vector       []float64 `json:"vector"`
		Confidence   float64   `json:"confidence"`
		ModelVersion string    `json:"model_version"`
	}
	if err := r.postJSON(ctx, r.resolvePath(r.predictPath), map[string]any{"sequence": sequence}, &response); err != nil {
		return Prediction{}, fmt.Errorf("remote forecaster predict request failed: %w", err)
	}

	vec, ok := models.VectorFromSlice(response.Vector)
	if !ok {
		return Prediction{}, fmt.Errorf("remote forecaster returned %d components", len(response.Vector))
	}
	if !finite(vec) {
		return Prediction{}, fmt.Errorf("remote forecaster returned non-finite vector")
	}
	r.setVersion(response.ModelVersion)
	return Prediction{
		Vector:       clampVector(vec),
		Confidence:   response.Confidence,
		ModelVersion: r.Version(),
	}, nil
}

func (r *Remote) setVersion(v string) {
	if v == "" {
		return
	}
	r.mu.Lock()
	r.version = v
	r.mu.Unlock()
}

func (r *Remote) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(r.baseURL)
	if err != nil {
		return r.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (r *Remote) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("forecaster returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
