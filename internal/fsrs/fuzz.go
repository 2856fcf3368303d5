package fsrs

import (
	"math"
	"math/rand/v2"
	"time"
)

type fuzzRange struct {
	start, end float64
	factor     float64
}

var fuzzRanges = [...]fuzzRange{
	{2.5, 7.0, 0.15},
	{7.0, 20.0, 0.10},
	{20.0, math.Inf(1), 0.05},
}

// fuzzDelta is how far an interval may move in either direction.
func fuzzDelta(interval float64) float64 {
	delta := 1.0
	for _, r := range fuzzRanges {
		delta += r.factor * math.Max(math.Min(interval, r.end)-r.start, 0)
	}
	return delta
}

// fuzzInterval spreads an interval so cards reviewed together do not stay
// bunched on the same day. Intervals under 2.5 days are returned unchanged.
// The result never lands on or before elapsedDays.
func fuzzInterval(interval, elapsedDays, maximum int, rng *rand.Rand) int {
	ivl := float64(interval)
	if ivl < 2.5 {
		return interval
	}
	delta := fuzzDelta(ivl)
	lo := max(2, int(math.Round(ivl-delta)))
	hi := min(int(math.Round(ivl+delta)), maximum)
	if interval > elapsedDays {
		lo = max(lo, elapsedDays+1)
	}
	lo = min(lo, hi)
	fuzzed := lo + int(math.Floor(rng.Float64()*float64(hi-lo+1)))
	return min(fuzzed, hi)
}

// fuzzSource derives the random source from the review itself, so the same
// card reviewed at the same instant is always scheduled the same way.
func fuzzSource(card CardState, now time.Time) *rand.Rand {
	seed := math.Float64bits(card.Stability) ^ math.Float64bits(card.Difficulty) ^ uint64(card.Reps)
	return rand.New(rand.NewPCG(uint64(now.UnixMilli()), seed))
}
