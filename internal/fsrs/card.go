package fsrs

import (
	"math"
	"time"
)

// CardState holds the memory state of a card for one learner.
//
// It is a plain value: the scheduler never mutates the state it is given,
// it returns a new one that replaces the old record entirely.
type CardState struct {
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   int       `json:"elapsed_days"`
	ScheduledDays int       `json:"scheduled_days"`
	Reps          int       `json:"reps"`
	Lapses        int       `json:"lapses"`
	State         State     `json:"state"`
	LastReview    time.Time `json:"last_review,omitzero"` // zero when never reviewed
}

// NewCard returns the state of a card that has never been reviewed.
// It is due immediately.
func NewCard(now time.Time) CardState {
	return CardState{
		Due:   now,
		State: New,
	}
}

// HasReviewed reports whether the card carries a last-review timestamp.
func (c CardState) HasReviewed() bool {
	return !c.LastReview.IsZero()
}

// Restore validates a state loaded from persistent storage and returns it.
func Restore(c CardState) (CardState, error) {
	if err := c.Validate(); err != nil {
		return CardState{}, err
	}
	return c, nil
}

// Validate checks the invariants every stored card must satisfy.
func (c CardState) Validate() error {
	if !c.State.IsValid() {
		return &InvalidStateError{Field: "state", Value: int(c.State), Reason: "unknown lifecycle state"}
	}
	if math.IsNaN(c.Stability) || math.IsInf(c.Stability, 0) || c.Stability < 0 {
		return &InvalidStateError{Field: "stability", Value: c.Stability, Reason: "must be a non-negative number"}
	}
	if c.State != New && c.Stability == 0 {
		return &InvalidStateError{Field: "stability", Value: c.Stability, Reason: "must be positive once a card leaves New"}
	}
	if math.IsNaN(c.Difficulty) || !difficultyInRange(c) {
		return &InvalidStateError{Field: "difficulty", Value: c.Difficulty, Reason: "must be within [1, 10]"}
	}
	if c.ElapsedDays < 0 {
		return &InvalidStateError{Field: "elapsed_days", Value: c.ElapsedDays, Reason: "must not be negative"}
	}
	if c.ScheduledDays < 0 {
		return &InvalidStateError{Field: "scheduled_days", Value: c.ScheduledDays, Reason: "must not be negative"}
	}
	if c.Reps < 0 {
		return &InvalidStateError{Field: "reps", Value: c.Reps, Reason: "must not be negative"}
	}
	if c.Lapses < 0 {
		return &InvalidStateError{Field: "lapses", Value: c.Lapses, Reason: "must not be negative"}
	}
	if c.HasReviewed() && c.Due.Before(c.LastReview) {
		return &InvalidStateError{Field: "due", Value: c.Due, Reason: "must not be before last_review"}
	}
	return nil
}

// A New card may still carry the unset difficulty 0.
func difficultyInRange(c CardState) bool {
	if c.State == New && c.Difficulty == 0 {
		return true
	}
	return c.Difficulty >= minDifficulty && c.Difficulty <= maxDifficulty
}
