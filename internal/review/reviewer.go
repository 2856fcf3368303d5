// Package review runs one review transaction: it restores the prior state of
// a card, hands it to the scheduler and returns the new state together with
// the log entry to append. Reviewer does no I/O; Service adds persistence.
package review

import (
	"time"

	"github.com/conorfennell/knolsched/internal/fsrs"
)

// Clock returns the current time. It is injected so reviews can be replayed
// and tested at fixed instants.
type Clock func() time.Time

// Reviewer is the single entry point into the scheduling engine.
type Reviewer struct {
	scheduler *fsrs.Scheduler
	clock     Clock
}

// NewReviewer returns a Reviewer. A nil clock means the wall clock.
func NewReviewer(s *fsrs.Scheduler, clock Clock) *Reviewer {
	if clock == nil {
		clock = time.Now
	}
	return &Reviewer{scheduler: s, clock: clock}
}

// Now reads the reviewer's clock.
func (r *Reviewer) Now() time.Time {
	return r.clock()
}

// Scheduler exposes the scheduler the reviewer delegates to.
func (r *Reviewer) Scheduler() *fsrs.Scheduler {
	return r.scheduler
}

// Review applies rating to prior at now. A nil prior is a card that has never
// been reviewed. Nothing is computed when the rating or the prior state is
// invalid.
func (r *Reviewer) Review(prior *fsrs.CardState, rating fsrs.Rating, now time.Time) (fsrs.CardState, fsrs.ReviewLog, error) {
	if !rating.IsValid() {
		return fsrs.CardState{}, fsrs.ReviewLog{}, &fsrs.InvalidRatingError{Rating: rating}
	}
	card, err := r.restore(prior, now)
	if err != nil {
		return fsrs.CardState{}, fsrs.ReviewLog{}, err
	}
	info, err := r.scheduler.Schedule(card, rating, now)
	if err != nil {
		return fsrs.CardState{}, fsrs.ReviewLog{}, err
	}
	return info.Card, info.Log, nil
}

// ReviewNow is Review at the reviewer's clock.
func (r *Reviewer) ReviewNow(prior *fsrs.CardState, rating fsrs.Rating) (fsrs.CardState, fsrs.ReviewLog, error) {
	return r.Review(prior, rating, r.clock())
}

// Preview returns the outcome of every rating without committing to one.
func (r *Reviewer) Preview(prior *fsrs.CardState, now time.Time) (map[fsrs.Rating]fsrs.SchedulingInfo, error) {
	card, err := r.restore(prior, now)
	if err != nil {
		return nil, err
	}
	return r.scheduler.Preview(card, now), nil
}

func (r *Reviewer) restore(prior *fsrs.CardState, now time.Time) (fsrs.CardState, error) {
	if prior == nil {
		return fsrs.NewCard(now), nil
	}
	return fsrs.Restore(*prior)
}
