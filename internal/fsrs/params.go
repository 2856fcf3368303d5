package fsrs

import (
	"fmt"
	"math"
	"time"
)

// Weights is the FSRS v4 model parameter vector w[0]..w[16].
type Weights [17]float64

// DefaultWeights are the published FSRS v4 default weights.
var DefaultWeights = Weights{
	0.4, 0.6, 2.4, 5.8, // w0-w3: initial stability per first rating
	4.93, 0.94, // w4-w5: initial difficulty
	0.86, 0.01, // w6-w7: difficulty step and mean reversion
	1.49, 0.14, 0.94, // w8-w10: stability growth on recall
	2.18, 0.05, 0.34, 1.26, // w11-w14: stability after a lapse
	0.29, 2.61, // w15-w16: hard penalty, easy bonus
}

const (
	// DefaultRequestRetention is the recall probability intervals aim for.
	DefaultRequestRetention = 0.9
	// DefaultMaximumInterval caps any interval, in days.
	DefaultMaximumInterval = 36500

	// maxIntervalLimit keeps now + interval inside time.Duration.
	maxIntervalLimit = 100000
)

// Steps are short-term delays, one per rating, used while a card is in a
// learning phase.
type Steps struct {
	Again time.Duration `json:"again"`
	Hard  time.Duration `json:"hard"`
	Good  time.Duration `json:"good"`
	Easy  time.Duration `json:"easy"`
}

// For returns the delay configured for the rating.
func (s Steps) For(r Rating) time.Duration {
	switch r {
	case Again:
		return s.Again
	case Hard:
		return s.Hard
	case Good:
		return s.Good
	case Easy:
		return s.Easy
	}
	return 0
}

// Params holds the parameters for the FSRS algorithm.
type Params struct {
	Weights          Weights
	RequestRetention float64
	MaximumInterval  int

	// NewSteps is the first-exposure delay for each rating of a New card.
	NewSteps Steps
	// RelearnSteps is the delay for Again and Hard while Learning or Relearning,
	// and the delay after a lapse. Its Good and Easy fields are unused.
	RelearnSteps Steps

	EnableFuzz bool
}

// DefaultParams provides the published defaults.
func DefaultParams() *Params {
	return &Params{
		Weights:          DefaultWeights,
		RequestRetention: DefaultRequestRetention,
		MaximumInterval:  DefaultMaximumInterval,
		NewSteps: Steps{
			Again: time.Minute,
			Hard:  5 * time.Minute,
			Good:  10 * time.Minute,
			Easy:  24 * time.Hour,
		},
		RelearnSteps: Steps{
			Again: 5 * time.Minute,
			Hard:  10 * time.Minute,
		},
	}
}

// Validate reports parameters the model cannot work with.
func (p *Params) Validate() error {
	for i, v := range p.Weights {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: w[%d] = %v is not finite", ErrInvalidParams, i, v)
		}
	}
	for i := 0; i < 4; i++ {
		if p.Weights[i] <= 0 {
			return fmt.Errorf("%w: initial stability w[%d] = %v must be positive", ErrInvalidParams, i, p.Weights[i])
		}
	}
	if p.RequestRetention <= 0 || p.RequestRetention >= 1 {
		return fmt.Errorf("%w: request retention %v must be in (0, 1)", ErrInvalidParams, p.RequestRetention)
	}
	if p.MaximumInterval < 1 || p.MaximumInterval > maxIntervalLimit {
		return fmt.Errorf("%w: maximum interval %d must be in [1, %d]", ErrInvalidParams, p.MaximumInterval, maxIntervalLimit)
	}
	for _, r := range Ratings {
		if p.NewSteps.For(r) <= 0 {
			return fmt.Errorf("%w: new step for %s must be positive", ErrInvalidParams, r)
		}
	}
	if p.RelearnSteps.Again <= 0 || p.RelearnSteps.Hard <= 0 {
		return fmt.Errorf("%w: relearn steps for Again and Hard must be positive", ErrInvalidParams)
	}
	return nil
}
