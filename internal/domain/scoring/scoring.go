// Package scoring computes the engagement score stored on each aggregate.
//
// Every input is normalized with log10(x+1)*100 and the four components are
// combined with fixed weights that sum to 1.0:
//
//	score = 0.30*n(avgViewTime) + 0.40*n(likes) + 0.20*n(clicks) + 0.10*n(views)
//
// The result is rounded to two decimals before it is persisted.
package scoring

import (
	"math"

	"github.com/okian/feedrank/internal/domain/model"
)

// Default component weights.
const (
	defaultViewTimeWeight = 0.30
	defaultLikesWeight    = 0.40
	defaultClicksWeight   = 0.20
	defaultViewsWeight    = 0.10
	normalizeScale        = 100
)

// Weights are the tunable coefficients of the engagement formula.
type Weights struct {
	ViewTime float64 `koanf:"view_time"`
	Likes    float64 `koanf:"likes"`
	Clicks   float64 `koanf:"clicks"`
	Views    float64 `koanf:"views"`
}

// DefaultWeights returns the reference weights.
func DefaultWeights() Weights {
	return Weights{
		ViewTime: defaultViewTimeWeight,
		Likes:    defaultLikesWeight,
		Clicks:   defaultClicksWeight,
		Views:    defaultViewsWeight,
	}
}

// Components are the normalized inputs of one computation.
type Components struct {
	AvgViewTimeMS float64
	ViewTime      float64
	Likes         float64
	Clicks        float64
	Views         float64
	Score         float64
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithWeights replaces the weights. Negative weights are ignored.
func WithWeights(w Weights) Option {
	return func(c *Calculator) {
		if w.ViewTime < 0 || w.Likes < 0 || w.Clicks < 0 || w.Views < 0 {
			return
		}
		if w == (Weights{}) {
			return
		}
		c.weights = w
	}
}

// Calculator recomputes engagement scores. It is stateless and safe for concurrent use.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator with the reference weights unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Weights returns the active weights.
func (c *Calculator) Weights() Weights { return c.weights }

// Score returns the rounded engagement score for agg.
func (c *Calculator) Score(agg model.Aggregate) float64 {
	return c.Breakdown(agg).Score
}

// Breakdown returns the intermediate values of the computation.
func (c *Calculator) Breakdown(agg model.Aggregate) Components {
	var avg float64
	if agg.TotalViews > 0 {
		avg = float64(agg.TotalViewTimeMS) / float64(agg.TotalViews)
	}

	comp := Components{
		AvgViewTimeMS: avg,
		ViewTime:      Normalize(avg),
		Likes:         Normalize(float64(agg.TotalLikes)),
		Clicks:        Normalize(float64(agg.TotalClicks)),
		Views:         Normalize(float64(agg.TotalViews)),
	}

	raw := comp.ViewTime*c.weights.ViewTime +
		comp.Likes*c.weights.Likes +
		comp.Clicks*c.weights.Clicks +
		comp.Views*c.weights.Views
	comp.Score = Round(raw, 2)
	return comp
}

// Normalize maps a non-negative count onto a log scale; the +1 keeps log10(0) out.
func Normalize(x float64) float64 {
	if x < 0 {
		x = 0
	}
	return math.Log10(x+1) * normalizeScale
}

// Round rounds x to the given number of decimals.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

var defaultCalculator = NewCalculator()

// EngagementScore scores agg with the reference weights.
func EngagementScore(agg model.Aggregate) float64 {
	return defaultCalculator.Score(agg)
}
