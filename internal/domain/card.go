package domain

import (
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/fsrs"
)

// CardKey identifies one learner's scheduling record for one card.
type CardKey struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	CardID string `json:"card_id" validate:"required,max=256"`
}

func (k CardKey) String() string {
	return fmt.Sprintf("%s/%s", k.UserID, k.CardID)
}

// ReviewEntry is a review log line as kept in the append-only history.
// Its Rating is the FSRS grade:
// 1: Again (Incorrect)
// 2: Hard
// 3: Good
// 4: Easy
type ReviewEntry struct {
	ID string `json:"id"`
	CardKey
	fsrs.ReviewLog
}

// String describes the whole entry, not just its key.
func (e ReviewEntry) String() string {
	return fmt.Sprintf("%s %s %s %s->%s due %s",
		e.CardKey,
		e.Reviewed.UTC().Format(time.RFC3339),
		e.Rating,
		e.PreviousState,
		e.State,
		e.Due.UTC().Format(time.RFC3339),
	)
}
