// Package elo implements the rating exchange applied after a pairwise comparison.
package elo

import (
	"math"

	"github.com/okian/songsort/internal/domain/model"
)

// Default Elo configuration constants.
const (
	DefaultK     = 32
	DefaultScale = 400
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithK sets the maximum rating change per match.
func WithK(k float64) Option {
	return func(c *Calculator) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithScale sets the rating difference at which the expected score is 10:1.
func WithScale(scale float64) Option {
	return func(c *Calculator) {
		if scale > 0 {
			c.scale = scale
		}
	}
}

// Exchange describes the rating movement of one match.
type Exchange struct {
	ExpectedWinner float64
	ExpectedLoser  float64
	WinnerDelta    int // added to the winner
	LoserDelta     int // subtracted from the loser
}

// Rater turns a win/loss outcome into two updated records.
type Rater interface {
	Apply(winner, loser model.Rating) (model.Rating, model.Rating, Exchange)
}

// Calculator is the standard Elo Rater.
type Calculator struct {
	k     float64
	scale float64
}

// NewCalculator creates a calculator with K=32 and a 400 point scale unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		k:     DefaultK,
		scale: DefaultScale,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// K returns the configured K factor.
func (c *Calculator) K() float64 { return c.k }

// Expected returns the expected score of a player rated r against an opponent rated opp.
func (c *Calculator) Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/c.scale))
}

// Exchange computes the deltas for winner beating loser.
// Deltas are truncated toward zero, so very lopsided or very close results
// can move nothing at all.
func (c *Calculator) Exchange(winner, loser int) Exchange {
	ew := c.Expected(winner, loser)
	el := c.Expected(loser, winner)
	return Exchange{
		ExpectedWinner: ew,
		ExpectedLoser:  el,
		WinnerDelta:    int(math.Trunc(c.k * (1 - ew))),
		LoserDelta:     int(math.Trunc(c.k * el)),
	}
}

// Apply returns copies of winner and loser with ratings and counters updated.
func (c *Calculator) Apply(winner, loser model.Rating) (model.Rating, model.Rating, Exchange) {
	x := c.Exchange(winner.Rating, loser.Rating)

	w := winner.Clone()
	l := loser.Clone()
	w.Rating += x.WinnerDelta
	l.Rating -= x.LoserDelta
	w.Wins++
	l.Losses++

	return w, l, x
}
