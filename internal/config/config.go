package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

// Forecaster kinds accepted by ForecasterConfig.Kind.
const (
	ForecasterNone   = "none"
	ForecasterEMA    = "ema"
	ForecasterRemote = "remote"
)

// Config captures every setting required to boot the resilience monitor.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	Vector     VectorConfig     `yaml:"vector"`
	Estimator  EstimatorConfig  `yaml:"estimator"`
	Decision   DecisionConfig   `yaml:"decision"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Forecaster ForecasterConfig `yaml:"forecaster"`
}

// ServerConfig controls gRPC and HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed status publishing and the retrain lock.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	TLS            bool          `yaml:"tls"`
	KeyPrefix      string        `yaml:"keyPrefix"`
	StatusTTL      time.Duration `yaml:"statusTTL"`
	RetrainLockTTL time.Duration `yaml:"retrainLockTTL"`
}

// ComponentValues holds one number per resilience component.
type ComponentValues struct {
	C float64 `yaml:"c"`
	L float64 `yaml:"l"`
	Q float64 `yaml:"q"`
	R float64 `yaml:"r"`
	A float64 `yaml:"a"`
}

// Array returns the values in (C, L, Q, R, A) order.
func (c ComponentValues) Array() models.Vector {
	return models.Vector{c.C, c.L, c.Q, c.R, c.A}
}

// VectorConfig parameterises the raw metric to resilience vector mapping.
type VectorConfig struct {
	LatencyBase          float64         `yaml:"latencyBase"`
	LatencyCritical      float64         `yaml:"latencyCritical"`
	UtilizationThreshold float64         `yaml:"utilizationThreshold"`
	BlockingThreshold    float64         `yaml:"blockingThreshold"`
	ResourceCritical     float64         `yaml:"resourceCritical"`
	Weights              ComponentValues `yaml:"weights"`
	OSR                  ComponentValues `yaml:"osr"`
}

// EstimatorConfig parameterises the Kalman filter and its transition fit.
type EstimatorConfig struct {
	ProcessNoise       float64 `yaml:"processNoise"`
	MeasurementNoise   float64 `yaml:"measurementNoise"`
	InitialCovariance  float64 `yaml:"initialCovariance"`
	InitialEstimate    float64 `yaml:"initialEstimate"`
	Regularization     float64 `yaml:"regularization"`
	MinTrainingSamples int     `yaml:"minTrainingSamples"`
	ConditionLimit     float64 `yaml:"conditionLimit"`
	ForecastHorizon    int     `yaml:"forecastHorizon"`
}

// DecisionConfig parameterises drift detection and the decision matrix.
type DecisionConfig struct {
	SimilarityHigh       float64       `yaml:"similarityHigh"`
	SimilarityMedium     float64       `yaml:"similarityMedium"`
	AlertThreshold       float64       `yaml:"alertThreshold"`
	RetrainThreshold     float64       `yaml:"retrainThreshold"`
	SustainabilityHigh   float64       `yaml:"sustainabilityHigh"`
	SustainabilityMedium float64       `yaml:"sustainabilityMedium"`
	WindowSize           int           `yaml:"windowSize"`
	RetrainDuration      time.Duration `yaml:"retrainDuration"`
	HistoryCapacity      int           `yaml:"historyCapacity"`
	DecisionLogCapacity  int           `yaml:"decisionLogCapacity"`
	PlaybookPath         string        `yaml:"playbookPath"`
}

// MonitorConfig controls the orchestrator loop.
type MonitorConfig struct {
	SequenceLength  int           `yaml:"sequenceLength"`
	HistorySize     int           `yaml:"historySize"`
	UpdateInterval  time.Duration `yaml:"updateInterval"`
	DashboardWindow int           `yaml:"dashboardWindow"`
	AutoRetrain     bool          `yaml:"autoRetrain"`
}

// ForecasterConfig selects the optional secondary forecaster.
type ForecasterConfig struct {
	Kind        string        `yaml:"kind"`
	Endpoint    string        `yaml:"endpoint"`
	PredictPath string        `yaml:"predictPath"`
	TrainPath   string        `yaml:"trainPath"`
	APIKey      string        `yaml:"apiKey"`
	Timeout     time.Duration `yaml:"timeout"`
	BlendWeight float64       `yaml:"blendWeight"`
}

// Load initialises Config from a YAML file and optional environment overrides, then validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_RESILIENCE_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:        false,
			DialTimeout:    2 * time.Second,
			ReadTimeout:    500 * time.Millisecond,
			WriteTimeout:   500 * time.Millisecond,
			MaxRetries:     2,
			KeyPrefix:      "mirador:resilience",
			StatusTTL:      time.Minute,
			RetrainLockTTL: 5 * time.Minute,
		},
		Vector:     DefaultVector(),
		Estimator:  DefaultEstimator(),
		Decision:   DefaultDecision(),
		Monitor:    DefaultMonitor(),
		Forecaster: ForecasterConfig{
			Kind:        ForecasterNone,
			PredictPath: "/v1/predict",
			TrainPath:   "/v1/train",
			Timeout:     2 * time.Second,
			BlendWeight: 1.0,
		},
	}
}

// DefaultVector returns the default normalisation parameters.
func DefaultVector() VectorConfig {
	return VectorConfig{
		LatencyBase:          10,
		LatencyCritical:      500,
		UtilizationThreshold: 0.85,
		BlockingThreshold:    0.05,
		ResourceCritical:     0.95,
		Weights:              ComponentValues{C: 0.25, L: 0.20, Q: 0.35, R: 0.10, A: 0.10},
		OSR:                  ComponentValues{C: 0.7, L: 0.7, Q: 0.8, R: 0.6, A: 0.9},
	}
}

// DefaultEstimator returns the default Kalman parameters.
func DefaultEstimator() EstimatorConfig {
	return EstimatorConfig{
		ProcessNoise:       0.01,
		MeasurementNoise:   0.05,
		InitialCovariance:  1.0,
		InitialEstimate:    0.8,
		Regularization:     1e-6,
		MinTrainingSamples: 10,
		ConditionLimit:     1e10,
		ForecastHorizon:    5,
	}
}

// DefaultDecision returns the default drift and decision thresholds.
func DefaultDecision() DecisionConfig {
	return DecisionConfig{
		SimilarityHigh:       0.9,
		SimilarityMedium:     0.6,
		AlertThreshold:       0.7,
		RetrainThreshold:     0.6,
		SustainabilityHigh:   0.8,
		SustainabilityMedium: 0.5,
		WindowSize:           10,
		RetrainDuration:      5 * time.Minute,
		HistoryCapacity:      1000,
		DecisionLogCapacity:  10000,
	}
}

// DefaultMonitor returns the default orchestrator settings.
func DefaultMonitor() MonitorConfig {
	return MonitorConfig{
		SequenceLength:  15,
		HistorySize:     1000,
		UpdateInterval:  10 * time.Second,
		DashboardWindow: 100,
		AutoRetrain:     true,
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_RESILIENCE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_CACHE_TLS"); parseBool(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_CACHE_KEY_PREFIX"); v != "" {
		cfg.Cache.KeyPrefix = v
	}
	overrideDuration("MIRADOR_RESILIENCE_CACHE_STATUS_TTL", &cfg.Cache.StatusTTL)
	overrideDuration("MIRADOR_RESILIENCE_CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	overrideDuration("MIRADOR_RESILIENCE_CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	overrideDuration("MIRADOR_RESILIENCE_CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	if v := os.Getenv("MIRADOR_RESILIENCE_SEQUENCE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.SequenceLength = n
		}
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.HistorySize = n
		}
	}
	overrideDuration("MIRADOR_RESILIENCE_UPDATE_INTERVAL", &cfg.Monitor.UpdateInterval)
	if v := os.Getenv("MIRADOR_RESILIENCE_AUTO_RETRAIN"); v != "" {
		cfg.Monitor.AutoRetrain = parseBool(v)
	}
	overrideDuration("MIRADOR_RESILIENCE_RETRAIN_DURATION", &cfg.Decision.RetrainDuration)
	if v := os.Getenv("MIRADOR_RESILIENCE_PLAYBOOK"); v != "" {
		cfg.Decision.PlaybookPath = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_FORECASTER"); v != "" {
		cfg.Forecaster.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_FORECASTER_URL"); v != "" {
		cfg.Forecaster.Endpoint = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_FORECASTER_API_KEY"); v != "" {
		cfg.Forecaster.APIKey = v
	}
	if v := os.Getenv("MIRADOR_RESILIENCE_FORECASTER_BLEND"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Forecaster.BlendWeight = w
		}
	}
}

func overrideDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// Validate checks every section and reports the first invalid field.
func (c Config) Validate() error {
	if err := c.Vector.Validate(); err != nil {
		return err
	}
	if err := c.Estimator.Validate(); err != nil {
		return err
	}
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	if c.Monitor.SequenceLength < 1 {
		return invalid("monitor.sequenceLength", "must be at least 1")
	}
	if c.Monitor.HistorySize < c.Monitor.SequenceLength {
		return invalid("monitor.historySize", "must be at least monitor.sequenceLength")
	}
	if c.Monitor.UpdateInterval <= 0 {
		return invalid("monitor.updateInterval", "must be positive")
	}
	if c.Monitor.DashboardWindow < 1 {
		return invalid("monitor.dashboardWindow", "must be at least 1")
	}
	switch c.Forecaster.Kind {
	case ForecasterNone, ForecasterEMA:
	case ForecasterRemote:
		if strings.TrimSpace(c.Forecaster.Endpoint) == "" {
			return invalid("forecaster.endpoint", "required for remote forecaster")
		}
	default:
		return invalid("forecaster.kind", fmt.Sprintf("unknown kind %q", c.Forecaster.Kind))
	}
	if c.Forecaster.BlendWeight < 0 || c.Forecaster.BlendWeight > 1 {
		return invalid("forecaster.blendWeight", "must lie in [0,1]")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return invalid("cache.addr", "required when cache is enabled")
	}
	return nil
}

// Validate checks the normalisation parameters.
func (v VectorConfig) Validate() error {
	switch {
	case v.LatencyBase <= 0:
		return invalid("vector.latencyBase", "must be positive")
	case v.LatencyCritical <= v.LatencyBase:
		return invalid("vector.latencyCritical", "must exceed vector.latencyBase")
	case v.UtilizationThreshold <= 0:
		return invalid("vector.utilizationThreshold", "must be positive")
	case v.BlockingThreshold <= 0:
		return invalid("vector.blockingThreshold", "must be positive")
	case v.ResourceCritical <= 0:
		return invalid("vector.resourceCritical", "must be positive")
	}
	sum := 0.0
	for i, w := range v.Weights.Array() {
		if w < 0 {
			return invalid("vector.weights."+strings.ToLower(models.ComponentNames[i]), "must not be negative")
		}
		sum += w
	}
	if sum <= 0 {
		return invalid("vector.weights", "must have a positive sum")
	}
	for i, t := range v.OSR.Array() {
		if t < 0 || t > 1 {
			return invalid("vector.osr."+strings.ToLower(models.ComponentNames[i]), "must lie in [0,1]")
		}
	}
	return nil
}

// Validate checks the estimator parameters.
func (e EstimatorConfig) Validate() error {
	switch {
	case e.ProcessNoise <= 0:
		return invalid("estimator.processNoise", "must be positive")
	case e.MeasurementNoise <= 0:
		return invalid("estimator.measurementNoise", "must be positive")
	case e.InitialCovariance <= 0:
		return invalid("estimator.initialCovariance", "must be positive")
	case e.InitialEstimate < 0 || e.InitialEstimate > 1:
		return invalid("estimator.initialEstimate", "must lie in [0,1]")
	case e.Regularization < 0:
		return invalid("estimator.regularization", "must not be negative")
	case e.MinTrainingSamples < 2:
		return invalid("estimator.minTrainingSamples", "must be at least 2")
	case e.ConditionLimit <= 1:
		return invalid("estimator.conditionLimit", "must exceed 1")
	case e.ForecastHorizon < 1:
		return invalid("estimator.forecastHorizon", "must be at least 1")
	}
	return nil
}

// Validate checks the drift and decision thresholds.
func (d DecisionConfig) Validate() error {
	switch {
	case d.SimilarityHigh <= 0 || d.SimilarityHigh > 1:
		return invalid("decision.similarityHigh", "must lie in (0,1]")
	case d.SimilarityMedium <= 0 || d.SimilarityMedium > d.SimilarityHigh:
		return invalid("decision.similarityMedium", "must be positive and not exceed decision.similarityHigh")
	case d.AlertThreshold <= 0:
		return invalid("decision.alertThreshold", "must be positive")
	case d.RetrainThreshold <= 0:
		return invalid("decision.retrainThreshold", "must be positive")
	case d.SustainabilityHigh <= 0 || d.SustainabilityHigh > 1:
		return invalid("decision.sustainabilityHigh", "must lie in (0,1]")
	case d.SustainabilityMedium <= 0 || d.SustainabilityMedium > d.SustainabilityHigh:
		return invalid("decision.sustainabilityMedium", "must be positive and not exceed decision.sustainabilityHigh")
	case d.WindowSize < 1:
		return invalid("decision.windowSize", "must be at least 1")
	case d.RetrainDuration < 0:
		return invalid("decision.retrainDuration", "must not be negative")
	case d.HistoryCapacity < d.WindowSize:
		return invalid("decision.historyCapacity", "must be at least decision.windowSize")
	case d.DecisionLogCapacity < 1:
		return invalid("decision.decisionLogCapacity", "must be at least 1")
	}
	return nil
}

func invalid(field, msg string) error {
	return utils.NewAppError("config.Validate", field+" "+msg, utils.ErrInvalidConfig)
}
