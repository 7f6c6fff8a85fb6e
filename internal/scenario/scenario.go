// Package scenario synthesises resilience trajectories and metric samples for training and demos.
package scenario

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/mirador-resilience/internal/models"
)

// DefaultNoise is the standard deviation added to every component of the normal profile.
const DefaultNoise = 0.05

type wave struct {
	base, amplitude, frequency float64
}

// per-component baseline oscillations in (C, L, Q, R, A) order
var normalProfile = [models.Dimension]wave{
	{0.90, 0.05, 0.5},
	{0.85, 0.08, 0.3},
	{0.92, 0.04, 0.7},
	{0.88, 0.06, 0.4},
	{0.95, 0.03, 0.2},
}

// Generator produces deterministic scenarios from a seed. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// New returns a generator seeded with seed.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Normal is a slow oscillation around healthy values plus Gaussian noise.
func (g *Generator) Normal(steps int, noise float64) []models.Vector {
	t := linspace(steps, 0, 10*math.Pi)
	out := make([]models.Vector, steps)
	for i := range out {
		for c, w := range normalProfile {
			out[i][c] = w.base + w.amplitude*math.Sin(t[i]*w.frequency) + g.rng.NormFloat64()*noise
		}
		out[i] = clamp(out[i])
	}
	return out
}

// DDoS ramps an attack in from 40% of the run, peaking at 70% and fading out.
func (g *Generator) DDoS(steps int) []models.Vector {
	data := g.Normal(steps, DefaultNoise)
	start, end := int(float64(steps)*0.4), int(float64(steps)*0.7)
	profile := make([]float64, steps)
	copy(profile[start:end], linspace(end-start, 0, 0.6))
	copy(profile[end:], linspace(steps-end, 0.6, 0))

	impact := models.Vector{0.5, 0.7, 0.6, 0, 0.8}
	for i := range data {
		data[i] = degrade(data[i], impact, profile[i])
	}
	return data
}

// SlowAttack degrades capacity, load and resources linearly over the run.
func (g *Generator) SlowAttack(steps int) []models.Vector {
	data := g.Normal(steps, DefaultNoise)
	degradation := linspace(steps, 0, 0.4)
	impact := models.Vector{0.3, 0.5, 0, 0.4, 0}
	for i := range data {
		data[i] = degrade(data[i], impact, degradation[i])
	}
	return data
}

// LoadSpike adds three Gaussian bumps on load and quality at 20%, 50% and 80% of the run.
func (g *Generator) LoadSpike(steps int) []models.Vector {
	data := g.Normal(steps, DefaultNoise)
	impact := models.Vector{0, 0.4, 0.3, 0, 0}
	for _, frac := range []float64{0.2, 0.5, 0.8} {
		center := frac * float64(steps)
		for i := range data {
			d := float64(i) - center
			data[i] = degrade(data[i], impact, math.Exp(-d*d/1000))
		}
	}
	return data
}

// Mixed concatenates the normal, DDoS, slow attack and load spike scenarios.
func (g *Generator) Mixed(stepsPerScenario int) []models.Vector {
	out := make([]models.Vector, 0, 4*stepsPerScenario)
	out = append(out, g.Normal(stepsPerScenario, DefaultNoise)...)
	out = append(out, g.DDoS(stepsPerScenario)...)
	out = append(out, g.SlowAttack(stepsPerScenario)...)
	out = append(out, g.LoadSpike(stepsPerScenario)...)
	return out
}

// NormalSamples produces raw samples of a lightly loaded system.
func (g *Generator) NormalSamples(n int, start time.Time, step time.Duration) []models.MetricSample {
	out := make([]models.MetricSample, n)
	for i := range out {
		out[i] = models.MetricSample{
			Latency:             15 + g.rng.NormFloat64()*2,
			Utilization:         0.3 + g.rng.NormFloat64()*0.05,
			BlockingProbability: 0.001 + g.rng.NormFloat64()*0.0005,
			CPU:                 0.4 + g.rng.NormFloat64()*0.05,
			RAM:                 0.5 + g.rng.NormFloat64()*0.05,
			AnomalousRequests:   g.poisson(5),
			BackgroundRequests:  100,
			Timestamp:           start.Add(time.Duration(i) * step),
		}
	}
	return out
}

// AttackSamples produces raw samples of an escalating attack.
func AttackSamples(n int, start time.Time, step time.Duration) []models.MetricSample {
	out := make([]models.MetricSample, n)
	for i := range out {
		f := float64(i)
		out[i] = models.MetricSample{
			Latency:             200 + f*30,
			Utilization:         0.7 + f*0.03,
			BlockingProbability: 0.02 + f*0.01,
			CPU:                 0.8 + f*0.02,
			RAM:                 0.7 + f*0.02,
			AnomalousRequests:   50 + i*10,
			BackgroundRequests:  100,
			Timestamp:           start.Add(time.Duration(i) * step),
		}
	}
	return out
}

// poisson draws by Knuth's multiplication method; fine for small lambda.
func (g *Generator) poisson(lambda float64) int {
	limit := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

func linspace(n int, lo, hi float64) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

func degrade(v, impact models.Vector, amount float64) models.Vector {
	for i := range v {
		v[i] -= impact[i] * amount
	}
	return clamp(v)
}

func clamp(v models.Vector) models.Vector {
	for i, x := range v {
		v[i] = math.Min(1, math.Max(0, x))
	}
	return v
}
