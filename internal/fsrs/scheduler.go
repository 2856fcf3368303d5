package fsrs

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const day = 24 * time.Hour

// SchedulingInfo is the outcome of one rating: the card that replaces the
// reviewed one and the log entry describing the transition.
type SchedulingInfo struct {
	Card CardState `json:"card"`
	Log  ReviewLog `json:"log"`
}

// Scheduler applies the FSRS state machine. It holds no state besides its
// parameters and is safe for concurrent use.
type Scheduler struct {
	params Params
}

// NewScheduler validates p and returns a scheduler using a copy of it.
func NewScheduler(p Params) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{params: p}, nil
}

// Params returns the parameters the scheduler was built with.
func (s *Scheduler) Params() Params {
	return s.params
}

// Schedule reviews card with rating at now. The input card is not modified.
func (s *Scheduler) Schedule(card CardState, r Rating, now time.Time) (SchedulingInfo, error) {
	if !r.IsValid() {
		return SchedulingInfo{}, &InvalidRatingError{Rating: r}
	}
	next := s.outcomes(card, now)[r]
	return SchedulingInfo{Card: next, Log: newReviewLog(card, next, r, now)}, nil
}

// Preview returns what every rating would do to card at now.
func (s *Scheduler) Preview(card CardState, now time.Time) map[Rating]SchedulingInfo {
	out := s.outcomes(card, now)
	preview := make(map[Rating]SchedulingInfo, len(Ratings))
	for _, r := range Ratings {
		preview[r] = SchedulingInfo{Card: out[r], Log: newReviewLog(card, out[r], r, now)}
	}
	return preview
}

// Retrievability is the probability the learner still recalls card at now.
// It is 0 for cards that have never been reviewed.
func (s *Scheduler) Retrievability(card CardState, now time.Time) float64 {
	if card.State == New || !card.HasReviewed() {
		return 0
	}
	return s.params.Retrievability(card.Stability, float64(elapsedDays(card, now)))
}

// Replay re-applies a review history to card, oldest event first, and returns
// the resulting card together with the log of every step.
func (s *Scheduler) Replay(card CardState, events []ReviewEvent) (CardState, []ReviewLog, error) {
	logs := make([]ReviewLog, 0, len(events))
	for i, ev := range events {
		info, err := s.Schedule(card, ev.Rating, ev.Reviewed)
		if err != nil {
			return CardState{}, nil, fmt.Errorf("event %d: %w", i, err)
		}
		card = info.Card
		logs = append(logs, info.Log)
	}
	return card, logs, nil
}

// outcomes holds the next card for each rating, indexed by Rating.
type outcomes [Easy + 1]CardState

func (s *Scheduler) outcomes(card CardState, now time.Time) outcomes {
	base := card
	base.ElapsedDays = elapsedDays(card, now)
	base.LastReview = now

	var out outcomes
	for _, r := range Ratings {
		out[r] = base
	}

	var rng *rand.Rand
	if s.params.EnableFuzz {
		rng = fuzzSource(card, now)
	}

	switch card.State {
	case New:
		s.firstExposure(&out, now)
	case Learning, Relearning:
		s.learningStep(&out, card, now, rng)
	default:
		s.reviewStep(&out, card, now, rng)
	}
	return out
}

// firstExposure starts the learning phase for a New card.
func (s *Scheduler) firstExposure(out *outcomes, now time.Time) {
	p := &s.params
	for _, r := range Ratings {
		c := &out[r]
		c.State = Learning
		c.Stability = p.NextStability(0, 0, 0, r, New)
		c.Difficulty = p.InitDifficulty(r)
		step(c, now, p.NewSteps.For(r))
	}
}

// learningStep keeps a Learning or Relearning card in its phase on Again and
// Hard and graduates it to Review on Good and Easy.
func (s *Scheduler) learningStep(out *outcomes, card CardState, now time.Time, rng *rand.Rand) {
	p := &s.params
	for _, r := range Ratings {
		out[r].Stability = p.NextStability(card.Stability, card.Difficulty, 0, r, card.State)
	}

	step(&out[Again], now, p.RelearnSteps.Again)
	step(&out[Hard], now, p.RelearnSteps.Hard)
	out[Hard].Reps++

	good := s.interval(out[Good].Stability, out[Good].ElapsedDays, rng)
	easy := clampInterval(good+1, p.MaximumInterval)
	for r, days := range map[Rating]int{Good: good, Easy: easy} {
		c := &out[r]
		c.State = Review
		c.Reps++
		schedule(c, now, days)
	}
}

// reviewStep updates the long-term memory model of a Review card.
func (s *Scheduler) reviewStep(out *outcomes, card CardState, now time.Time, rng *rand.Rand) {
	p := &s.params
	var r float64
	if card.HasReviewed() {
		r = p.Retrievability(card.Stability, float64(out[Again].ElapsedDays))
	} else {
		r = 1
	}
	for _, rating := range Ratings {
		c := &out[rating]
		c.Stability = p.NextStability(card.Stability, card.Difficulty, r, rating, Review)
		c.Difficulty = p.NextDifficulty(card.Difficulty, rating)
	}

	lapse := &out[Again]
	lapse.State = Relearning
	lapse.Lapses++
	step(lapse, now, p.RelearnSteps.Again)

	elapsed := out[Good].ElapsedDays
	hard := s.interval(out[Hard].Stability, elapsed, rng)
	good := s.interval(out[Good].Stability, elapsed, rng)
	hard = min(hard, good)
	good = clampInterval(max(good, hard+1), p.MaximumInterval)
	easy := clampInterval(max(s.interval(out[Easy].Stability, elapsed, rng), good+1), p.MaximumInterval)

	for rating, days := range map[Rating]int{Hard: hard, Good: good, Easy: easy} {
		c := &out[rating]
		c.State = Review
		c.Reps++
		schedule(c, now, days)
	}
}

// interval is NextInterval with fuzz applied when enabled.
func (s *Scheduler) interval(stability float64, elapsed int, rng *rand.Rand) int {
	days := s.params.NextInterval(stability)
	if rng == nil {
		return days
	}
	return fuzzInterval(days, elapsed, s.params.MaximumInterval, rng)
}

// step schedules a short-term learning delay.
func step(c *CardState, now time.Time, delay time.Duration) {
	c.ScheduledDays = int(delay / day)
	c.Due = now.Add(delay)
}

// schedule schedules a whole-day interval.
func schedule(c *CardState, now time.Time, days int) {
	c.ScheduledDays = days
	c.Due = now.Add(time.Duration(days) * day)
}

// elapsedDays counts whole days since the last review. A clock running
// behind the last review counts as zero.
func elapsedDays(card CardState, now time.Time) int {
	if card.State == New || !card.HasReviewed() {
		return 0
	}
	elapsed := now.Sub(card.LastReview)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / day)
}
