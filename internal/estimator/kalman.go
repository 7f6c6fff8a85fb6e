// Package estimator implements the linear state estimator over resilience vectors.
package estimator

import (
	"fmt"
	"iter"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

const n = models.Dimension

// Matrix is a dense row-major Dimension x Dimension matrix.
type Matrix [n]models.Vector

// State is the filter state after an update.
type State struct {
	Estimate   models.Vector `json:"estimate"`
	Covariance Matrix        `json:"covariance"`
	Innovation float64       `json:"innovation"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Kalman is a full-state-observation Kalman filter (H = I) with a learnable transition matrix.
// All methods are safe for concurrent use.
type Kalman struct {
	cfg config.EstimatorConfig

	mu         sync.Mutex
	f          *mat.Dense
	q          *mat.Dense
	r          *mat.Dense
	x          *mat.VecDense
	p          *mat.Dense
	innovation float64
	updatedAt  time.Time
}

// NewKalman constructs a filter with F = I and the configured noise model.
func NewKalman(cfg config.EstimatorConfig) *Kalman {
	k := &Kalman{
		cfg: cfg,
		f:   identity(),
		q:   scaledIdentity(cfg.ProcessNoise),
		r:   scaledIdentity(cfg.MeasurementNoise),
	}
	k.resetState()
	return k
}

func identity() *mat.Dense { return scaledIdentity(1) }

func scaledIdentity(v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}
	return m
}

func (k *Kalman) resetState() {
	init := models.Uniform(k.cfg.InitialEstimate)
	k.x = mat.NewVecDense(n, init.Slice())
	k.p = scaledIdentity(k.cfg.InitialCovariance)
	k.innovation = 0
	k.updatedAt = time.Time{}
}

// Predict returns the prior estimate F·x without changing the filter.
func (k *Kalman) Predict() models.Vector {
	k.mu.Lock()
	defer k.mu.Unlock()
	xPred, _ := k.prior()
	return toVector(xPred)
}

func (k *Kalman) prior() (*mat.VecDense, *mat.Dense) {
	xPred := mat.NewVecDense(n, nil)
	xPred.MulVec(k.f, k.x)

	var fp mat.Dense
	fp.Mul(k.f, k.p)
	pPred := mat.NewDense(n, n, nil)
	pPred.Mul(&fp, k.f.T())
	pPred.Add(pPred, k.q)
	return xPred, pPred
}

// Update folds measurement z into the estimate. The posterior is clamped to [0,1].
func (k *Kalman) Update(z models.Vector, ts time.Time) State {
	k.mu.Lock()
	defer k.mu.Unlock()

	xPred, pPred := k.prior()
	y := mat.NewVecDense(n, nil)
	y.SubVec(mat.NewVecDense(n, z.Slice()), xPred)

	var s, sInv mat.Dense
	s.Add(pPred, k.r)
	if err := sInv.Inverse(&s); err != nil {
		// singular innovation covariance: the posterior is the prior
		k.x = mat.NewVecDense(n, clampVector(toVector(xPred)).Slice())
		k.p = pPred
	} else {
		var gain mat.Dense
		gain.Mul(pPred, &sInv)

		var correction mat.VecDense
		correction.MulVec(&gain, y)
		post := mat.NewVecDense(n, nil)
		post.AddVec(xPred, &correction)

		var ik mat.Dense
		ik.Sub(identity(), &gain)
		p := mat.NewDense(n, n, nil)
		p.Mul(&ik, pPred)

		k.x = mat.NewVecDense(n, clampVector(toVector(post)).Slice())
		k.p = p
	}

	k.innovation = mat.Norm(y, 2)
	if math.IsNaN(k.innovation) {
		k.innovation = 0
	}
	k.updatedAt = ts
	return k.stateLocked()
}

// LearnTransition fits F by regularised least squares so that data[t+1] ≈ F·data[t].
// F is left unchanged when there are too few samples or the normal matrix is degenerate;
// the return value reports whether F was replaced.
func (k *Kalman) LearnTransition(data []models.Vector) bool {
	if len(data) < k.cfg.MinTrainingSamples || len(data) < 2 {
		return false
	}

	m := len(data) - 1
	x := mat.NewDense(n, m, nil)
	y := mat.NewDense(n, m, nil)
	for t := 0; t < m; t++ {
		for i := 0; i < n; i++ {
			x.Set(i, t, data[t][i])
			y.Set(i, t, data[t+1][i])
		}
	}

	var xxt mat.Dense
	xxt.Mul(x, x.T())
	if cond := mat.Cond(&xxt, 2); math.IsNaN(cond) || cond > k.cfg.ConditionLimit {
		return false
	}

	reg := scaledIdentity(k.cfg.Regularization)
	reg.Add(reg, &xxt)
	var inv mat.Dense
	if err := inv.Inverse(reg); err != nil {
		return false
	}

	var yxt, f mat.Dense
	yxt.Mul(y, x.T())
	f.Mul(&yxt, &inv)
	if !allFinite(&f) {
		return false
	}

	k.mu.Lock()
	k.f = mat.DenseCopyOf(&f)
	k.mu.Unlock()
	return true
}

// Forecast yields steps future vectors by repeatedly applying F to the current estimate,
// clamping each step. The state is captured when Forecast is called.
func (k *Kalman) Forecast(steps int) iter.Seq[models.Vector] {
	k.mu.Lock()
	f := mat.DenseCopyOf(k.f)
	current := mat.VecDenseCopyOf(k.x)
	k.mu.Unlock()

	return func(yield func(models.Vector) bool) {
		for i := 0; i < steps; i++ {
			next := mat.NewVecDense(n, nil)
			next.MulVec(f, current)
			vec := clampVector(toVector(next))
			if !yield(vec) {
				return
			}
			current = mat.NewVecDense(n, vec.Slice())
		}
	}
}

// Estimate returns the current posterior estimate.
func (k *Kalman) Estimate() models.Vector {
	k.mu.Lock()
	defer k.mu.Unlock()
	return toVector(k.x)
}

// Innovation returns the magnitude of the last measurement residual.
func (k *Kalman) Innovation() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.innovation
}

// Uncertainty returns the diagonal of the covariance matrix.
func (k *Kalman) Uncertainty() models.Vector {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out models.Vector
	for i := 0; i < n; i++ {
		out[i] = k.p.At(i, i)
	}
	return out
}

// State returns a copy of the filter state.
func (k *Kalman) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stateLocked()
}

func (k *Kalman) stateLocked() State {
	return State{
		Estimate:   toVector(k.x),
		Covariance: toMatrix(k.p),
		Innovation: k.innovation,
		Timestamp:  k.updatedAt,
	}
}

// Transition returns a copy of F.
func (k *Kalman) Transition() Matrix {
	k.mu.Lock()
	defer k.mu.Unlock()
	return toMatrix(k.f)
}

// SetTransition replaces F. rows must be Dimension x Dimension and finite.
func (k *Kalman) SetTransition(rows [][]float64) error {
	if len(rows) != n {
		return fmt.Errorf("transition matrix must have %d rows, got %d", n, len(rows))
	}
	f := mat.NewDense(n, n, nil)
	for i, row := range rows {
		if len(row) != n {
			return fmt.Errorf("transition matrix row %d must have %d columns, got %d", i, n, len(row))
		}
		f.SetRow(i, row)
	}
	if !allFinite(f) {
		return fmt.Errorf("transition matrix contains non-finite values")
	}
	k.mu.Lock()
	k.f = f
	k.mu.Unlock()
	return nil
}

// Reset restores the initial estimate and covariance. F is kept.
func (k *Kalman) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.resetState()
}

func toVector(v mat.Vector) models.Vector {
	var out models.Vector
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}

func toMatrix(m mat.Matrix) Matrix {
	var out Matrix
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func allFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func clampVector(v models.Vector) models.Vector {
	for i, x := range v {
		switch {
		case math.IsNaN(x) || x < 0:
			v[i] = 0
		case x > 1:
			v[i] = 1
		}
	}
	return v
}
