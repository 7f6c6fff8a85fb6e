package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func remoteConfig() config.ForecasterConfig {
	cfg := config.Default().Forecaster
	cfg.Kind = config.ForecasterRemote
	cfg.Endpoint = "http://forecaster.local/base"
	cfg.APIKey = "secret"
	cfg.Timeout = time.Second
	return cfg
}

func TestNoopIsUnavailable(t *testing.T) {
	f, err := New(config.ForecasterConfig{Kind: config.ForecasterNone}, nil)
	require.NoError(t, err)
	assert.False(t, f.Available())
	_, err = f.Predict(context.Background(), []models.Vector{models.Uniform(1)})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, f.Train(context.Background(), nil))
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(config.ForecasterConfig{Kind: "lstm"}, nil)
	assert.Error(t, err)
}

func TestEMAWeightsRecentSamples(t *testing.T) {
	seq := []models.Vector{models.Uniform(0), models.Uniform(0), models.Uniform(1)}
	pred, err := NewEMA().Predict(context.Background(), seq)
	require.NoError(t, err)

	// weights exp(-1), exp(-0.5), exp(0), normalised
	wLast := 1 / (1 + 0.6065306597 + 0.3678794412)
	for _, v := range pred.Vector {
		assert.InDelta(t, wLast, v, 1e-6)
	}
	assert.Equal(t, "fallback_ema", pred.ModelVersion)
	assert.InDelta(t, 0.5, pred.Confidence, 1e-12)
}

func TestEMASingleAndEmpty(t *testing.T) {
	pred, err := NewEMA().Predict(context.Background(), []models.Vector{models.Uniform(0.4)})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, pred.Vector[models.ComponentQuality], 1e-12)

	_, err = NewEMA().Predict(context.Background(), nil)
	assert.Error(t, err)
}

func TestRemotePredict(t *testing.T) {
	r, err := NewRemote(remoteConfig(), nil)
	require.NoError(t, err)
	r.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/base/v1/predict", req.URL.Path)
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
		var body struct {
			Sequence [][]float64 `json:"sequence"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Len(t, body.Sequence, 2)
		return jsonResponse(t, http.StatusOK, map[string]any{
			"vector":        []float64{0.9, 1.2, 0.5, -0.1, 0.7},
			"confidence":    0.8,
			"model_version": "lstm-v3",
		}), nil
	})}

	pred, err := r.Predict(context.Background(), []models.Vector{models.Uniform(0.9), models.Uniform(0.8)})
	require.NoError(t, err)
	assert.Equal(t, models.Vector{0.9, 1, 0.5, 0, 0.7}, pred.Vector)
	assert.Equal(t, "lstm-v3", pred.ModelVersion)
	assert.Equal(t, "lstm-v3", r.Version())
}

func TestRemoteRejectsMalformedVector(t *testing.T) {
	r, err := NewRemote(remoteConfig(), nil)
	require.NoError(t, err)
	r.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{"vector": []float64{1, 2}}), nil
	})}
	_, err = r.Predict(context.Background(), []models.Vector{models.Uniform(1)})
	assert.Error(t, err)
}

func TestRemoteSurfacesHTTPFailure(t *testing.T) {
	r, err := NewRemote(remoteConfig(), nil)
	require.NoError(t, err)
	r.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/base/v1/train" {
			return jsonResponse(t, http.StatusServiceUnavailable, map[string]string{"error": "busy"}), nil
		}
		return nil, errors.New("connection refused")
	})}
	_, err = r.Predict(context.Background(), []models.Vector{models.Uniform(1)})
	assert.Error(t, err)
	assert.Error(t, r.Train(context.Background(), []models.Vector{models.Uniform(1)}))
	assert.Equal(t, "remote", r.Version())
}

func TestRemoteRequiresEndpoint(t *testing.T) {
	cfg := remoteConfig()
	cfg.Endpoint = " "
	_, err := NewRemote(cfg, nil)
	assert.Error(t, err)
}
