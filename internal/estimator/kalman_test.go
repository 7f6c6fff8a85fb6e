package estimator

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

func newFilter() *Kalman {
	return NewKalman(config.DefaultEstimator())
}

func TestUpdateConvergesOnConstantSignal(t *testing.T) {
	k := newFilter()
	ts := time.Unix(1_700_000_000, 0)
	target := models.Uniform(0.8)

	for i := 0; i < 20; i++ {
		state := k.Update(target, ts.Add(time.Duration(i)*time.Second))
		assert.InDelta(t, 0, state.Innovation, 1e-9)
	}
	for _, v := range k.Estimate() {
		assert.InDelta(t, 0.8, v, 1e-9)
	}
}

func TestUpdateInnovationShrinks(t *testing.T) {
	k := newFilter()
	target := models.Uniform(0.3)

	first := k.Update(target, time.Time{}).Innovation
	var last float64
	for i := 0; i < 19; i++ {
		last = k.Update(target, time.Time{}).Innovation
	}
	assert.Greater(t, first, 1.0)
	assert.Less(t, last, 1e-3)
	for _, v := range k.Estimate() {
		assert.InDelta(t, 0.3, v, 1e-3)
	}
}

func TestUpdateClampsEstimate(t *testing.T) {
	k := newFilter()
	require.NoError(t, k.SetTransition([][]float64{
		{3, 0, 0, 0, 0},
		{0, 3, 0, 0, 0},
		{0, 0, 3, 0, 0},
		{0, 0, 0, 3, 0},
		{0, 0, 0, 0, 3},
	}))
	state := k.Update(models.Uniform(1), time.Time{})
	for _, v := range state.Estimate {
		assert.LessOrEqual(t, v, 1.0)
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestLearnTransitionKeepsFOnDegenerateData(t *testing.T) {
	k := newFilter()
	before := k.Transition()

	constant := make([]models.Vector, 30)
	for i := range constant {
		constant[i] = models.Uniform(0.5)
	}
	assert.False(t, k.LearnTransition(constant))
	assert.Equal(t, before, k.Transition())

	zeros := make([]models.Vector, 30)
	assert.False(t, k.LearnTransition(zeros))
	assert.Equal(t, before, k.Transition())

	assert.False(t, k.LearnTransition(constant[:5]), "too few samples")
}

func TestLearnTransitionRecoversDynamics(t *testing.T) {
	k := newFilter()

	// a cyclic shift keeps every window full rank
	data := make([]models.Vector, 40)
	data[0] = models.Vector{1, 0.8, 0.6, 0.4, 0.2}
	for step := 1; step < len(data); step++ {
		for i := range data[step] {
			data[step][i] = data[step-1][(i+1)%models.Dimension]
		}
	}

	require.True(t, k.LearnTransition(data))
	f := k.Transition()
	for i := 0; i < models.Dimension; i++ {
		for j := 0; j < models.Dimension; j++ {
			want := 0.0
			if j == (i+1)%models.Dimension {
				want = 1
			}
			assert.InDelta(t, want, f[i][j], 1e-4, "F[%d][%d]", i, j)
		}
	}
}

func TestForecastClampsEachStep(t *testing.T) {
	k := newFilter()
	rows := make([][]float64, models.Dimension)
	for i := range rows {
		rows[i] = make([]float64, models.Dimension)
		rows[i][i] = 1.5
	}
	require.NoError(t, k.SetTransition(rows))

	steps := slices.Collect(k.Forecast(4))
	require.Len(t, steps, 4)
	assert.InDelta(t, 1.0, steps[0][0], 1e-12)
	for _, step := range steps {
		for _, v := range step {
			assert.LessOrEqual(t, v, 1.0)
		}
	}

	count := 0
	for range k.Forecast(10) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestSetTransitionValidatesShape(t *testing.T) {
	k := newFilter()
	assert.Error(t, k.SetTransition([][]float64{{1, 0}}))
	assert.Error(t, k.SetTransition(make([][]float64, models.Dimension)))
}

func TestResetRestoresInitialState(t *testing.T) {
	k := newFilter()
	k.Update(models.Uniform(0.1), time.Now())
	k.Reset()
	assert.Equal(t, models.Uniform(0.8), k.Estimate())
	assert.Equal(t, models.Uniform(1), k.Uncertainty())
	assert.Zero(t, k.Innovation())
}
