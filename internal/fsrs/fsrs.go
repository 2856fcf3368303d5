package fsrs

import "math"

const (
	minStability  = 0.1
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// Retrievability is the probability of recalling a card with the given
// stability after elapsedDays.
//
//	R(t, S) = (1 + t / (9 * S))^-1
//
// R(S, S) = 0.9, which is what stability means.
func (p *Params) Retrievability(stability, elapsedDays float64) float64 {
	if stability <= 0 {
		return 0
	}
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	return math.Pow(1+elapsedDays/(9*stability), -1)
}

// InitStability is the stability after the first review: S0(G) = w[G-1].
// A rating outside Again..Easy has no table entry and gets the floor.
func (p *Params) InitStability(r Rating) float64 {
	if !r.IsValid() {
		return minStability
	}
	return math.Max(p.Weights[r-1], minStability)
}

// InitDifficulty is the difficulty after the first review:
// D0(G) = w4 - w5 * (G - 3).
func (p *Params) InitDifficulty(r Rating) float64 {
	return clampDifficulty(p.Weights[4] - p.Weights[5]*float64(r-3))
}

// NextDifficulty shifts difficulty by rating and pulls it back towards D0(Good):
//
//	D' = w7 * w4 + (1 - w7) * (D - w6 * (G - 3))
func (p *Params) NextDifficulty(difficulty float64, r Rating) float64 {
	next := difficulty - p.Weights[6]*float64(r-3)
	return clampDifficulty(p.Weights[7]*p.Weights[4] + (1-p.Weights[7])*next)
}

// NextStability returns the stability after a review of a card that was in
// state before it. retrievability is the recall probability at review time.
func (p *Params) NextStability(stability, difficulty, retrievability float64, r Rating, state State) float64 {
	var next float64
	switch state {
	case New:
		return p.InitStability(r)
	case Review:
		if r == Again {
			next = p.forgetStability(stability, difficulty, retrievability)
		} else {
			next = p.recallStability(stability, difficulty, retrievability, r)
		}
	default:
		// Short-term steps leave the long-term model alone.
		next = stability
	}
	if math.IsNaN(next) {
		return minStability
	}
	return math.Max(next, minStability)
}

// recallStability applies the core FSRS formula for a successful review:
//
//	S' = S * (1 + e^w8 * (11 - D) * S^-w9 * (e^((1-R) * w10) - 1) * hardPenalty * easyBonus)
func (p *Params) recallStability(stability, difficulty, retrievability float64, r Rating) float64 {
	w := p.Weights
	hardPenalty := 1.0
	if r == Hard {
		hardPenalty = w[15]
	}
	easyBonus := 1.0
	if r == Easy {
		easyBonus = w[16]
	}
	growth := math.Exp(w[8]) *
		(11 - difficulty) *
		math.Pow(stability, -w[9]) *
		(math.Exp((1-retrievability)*w[10]) - 1) *
		hardPenalty *
		easyBonus
	return stability * (1 + growth)
}

// forgetStability is the stability after a lapse, never above the stability
// the card had before it. A card already at the 0.1 floor stays there:
//
//	S' = w11 * D^-w12 * ((S + 1)^w13 - 1) * e^((1-R) * w14)
func (p *Params) forgetStability(stability, difficulty, retrievability float64) float64 {
	w := p.Weights
	next := w[11] *
		math.Pow(difficulty, -w[12]) *
		(math.Pow(stability+1, w[13]) - 1) *
		math.Exp((1-retrievability)*w[14])
	return math.Min(next, stability)
}

// NextInterval is the number of whole days after which retrievability falls
// to the requested retention: I = 9 * S * (1/r - 1), clamped to
// [1, MaximumInterval]. Clamping happens before the conversion to int so a
// huge stability cannot overflow into a short interval.
func (p *Params) NextInterval(stability float64) int {
	ivl := 9 * stability * (1/p.RequestRetention - 1)
	ivl = math.Min(math.Max(math.Round(ivl), 1), float64(p.MaximumInterval))
	return clampInterval(int(ivl), p.MaximumInterval)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}

func clampInterval(days, maximum int) int {
	return min(max(days, 1), maximum)
}
