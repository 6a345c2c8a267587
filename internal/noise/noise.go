// Package noise produces smooth pseudo-random signals used to simulate sensors.
package noise

import (
	"math"

	"github.com/aquilax/go-perlin"
)

const (
	defaultAlpha   = 2
	defaultBeta    = 2
	defaultOctaves = 3

	// Perlin output rarely leaves [-0.7, 0.7]; spread it over the unit interval.
	gain = 0.75
)

// Source samples a continuous signal for a channel at a point in time.
// Sample must return a value in [0,1] and be deterministic in its inputs.
type Source interface {
	Sample(channel, t float64) float64
}

// Perlin is a Source backed by two-dimensional Perlin noise. Time runs along
// the x axis and the channel selects the y coordinate, so channels far apart on
// y do not correlate.
type Perlin struct {
	p *perlin.Perlin
}

// NewPerlin creates a Perlin source for the given seed
func NewPerlin(seed int64) *Perlin {
	return &Perlin{p: perlin.NewPerlin(defaultAlpha, defaultBeta, defaultOctaves, seed)}
}

func (n *Perlin) Sample(channel, t float64) float64 {
	return Clamp01(0.5 + gain*n.p.Noise2D(t, channel))
}

// Func adapts a plain function to a Source
type Func func(channel, t float64) float64

func (f Func) Sample(channel, t float64) float64 {
	return Clamp01(f(channel, t))
}

// Constant returns a Source that always yields v
func Constant(v float64) Source {
	return Func(func(_, _ float64) float64 { return v })
}

// Clamp01 limits v to [0,1]; NaN maps to 0
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
