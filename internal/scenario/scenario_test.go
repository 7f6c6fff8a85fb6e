package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-resilience/internal/models"
)

func meanOf(data []models.Vector, component int) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v[component]
	}
	return sum / float64(len(data))
}

func assertBounded(t *testing.T, data []models.Vector) {
	t.Helper()
	for i, v := range data {
		for c, x := range v {
			require.GreaterOrEqual(t, x, 0.0, "step %d component %d", i, c)
			require.LessOrEqual(t, x, 1.0, "step %d component %d", i, c)
		}
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	a := New(42).Mixed(50)
	b := New(42).Mixed(50)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, New(7).Mixed(50))
}

func TestScenariosStayInUnitRange(t *testing.T) {
	g := New(1)
	assertBounded(t, g.Normal(300, DefaultNoise))
	assertBounded(t, g.DDoS(300))
	assertBounded(t, g.SlowAttack(300))
	assertBounded(t, g.LoadSpike(300))
}

func TestMixedConcatenatesFourScenarios(t *testing.T) {
	assert.Len(t, New(3).Mixed(100), 400)
	assert.Empty(t, New(3).Mixed(0))
}

func TestDDoSDegradesDuringAttack(t *testing.T) {
	data := New(11).DDoS(1000)
	before := data[:400]
	peak := data[650:720]
	assert.Greater(t, meanOf(before, models.ComponentLoad)-meanOf(peak, models.ComponentLoad), 0.2)
	assert.Greater(t, meanOf(before, models.ComponentAnomaly)-meanOf(peak, models.ComponentAnomaly), 0.3)
}

func TestSlowAttackDegradesOverTime(t *testing.T) {
	data := New(5).SlowAttack(1000)
	assert.Greater(t, meanOf(data[:100], models.ComponentLoad), meanOf(data[900:], models.ComponentLoad)+0.1)
}

func TestLoadSpikeHitsCentres(t *testing.T) {
	data := New(5).LoadSpike(1000)
	calm := data[330:370]
	spike := data[495:505]
	assert.Greater(t, meanOf(calm, models.ComponentLoad)-meanOf(spike, models.ComponentLoad), 0.25)
}

func TestSamples(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	normal := New(9).NormalSamples(20, start, time.Second)
	require.Len(t, normal, 20)
	assert.Equal(t, start.Add(19*time.Second), normal[19].Timestamp)
	for _, s := range normal {
		assert.Equal(t, 100, s.BackgroundRequests)
		assert.GreaterOrEqual(t, s.AnomalousRequests, 0)
	}

	attack := AttackSamples(10, start, time.Second)
	require.Len(t, attack, 10)
	assert.InDelta(t, 470, attack[9].Latency, 1e-9)
	assert.Equal(t, 140, attack[9].AnomalousRequests)
}
