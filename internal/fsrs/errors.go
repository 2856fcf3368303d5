package fsrs

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrInvalidState  = errors.New("fsrs: invalid card state")
	ErrInvalidRating = errors.New("fsrs: invalid rating")
	ErrInvalidParams = errors.New("fsrs: invalid parameters")
)

// InvalidStateError reports a malformed CardState handed in by a caller.
type InvalidStateError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrInvalidState, e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidState) hold.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// InvalidRatingError reports a rating outside 1-4.
type InvalidRatingError struct {
	Rating Rating
}

func (e *InvalidRatingError) Error() string {
	return fmt.Sprintf("%s: %d is not one of 1 (Again), 2 (Hard), 3 (Good), 4 (Easy)", ErrInvalidRating, int(e.Rating))
}

// Is makes errors.Is(err, ErrInvalidRating) hold.
func (e *InvalidRatingError) Is(target error) bool {
	return target == ErrInvalidRating
}
