package fsrs

import "time"

// ReviewLog records a single review event: the rating applied and the
// resulting memory state. It is appended to history and never modified.
type ReviewLog struct {
	Rating        Rating    `json:"rating"`
	PreviousState State     `json:"previous_state"`
	State         State     `json:"state"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   int       `json:"elapsed_days"`
	ScheduledDays int       `json:"scheduled_days"`
	Due           time.Time `json:"due"`
	Reviewed      time.Time `json:"reviewed"`
}

// ReviewEvent is a rating given at a point in time, as replayed by
// Scheduler.Replay.
type ReviewEvent struct {
	Rating   Rating    `json:"rating"`
	Reviewed time.Time `json:"reviewed"`
}

func newReviewLog(prev, next CardState, r Rating, now time.Time) ReviewLog {
	return ReviewLog{
		Rating:        r,
		PreviousState: prev.State,
		State:         next.State,
		Stability:     next.Stability,
		Difficulty:    next.Difficulty,
		ElapsedDays:   next.ElapsedDays,
		ScheduledDays: next.ScheduledDays,
		Due:           next.Due,
		Reviewed:      now,
	}
}
