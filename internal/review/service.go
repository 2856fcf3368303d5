package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/fsrs"
)

var (
	// ErrNotFound is returned for cards that have no stored state or history.
	ErrNotFound = errors.New("card has not been reviewed")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid review request")
)

// Store is the persistence the service needs: one scheduling record per
// (user, card) and an append-only review history.
type Store interface {
	// FindState returns nil and no error for a card that was never reviewed.
	FindState(ctx context.Context, key domain.CardKey) (*fsrs.CardState, error)
	SaveState(ctx context.Context, key domain.CardKey, cs fsrs.CardState) error
	// SaveReview must write the state and the log atomically.
	SaveReview(ctx context.Context, key domain.CardKey, cs fsrs.CardState, log fsrs.ReviewLog) (domain.ReviewEntry, error)
	ListReviews(ctx context.Context, key domain.CardKey) ([]domain.ReviewEntry, error)
	DeleteCard(ctx context.Context, key domain.CardKey) error
}

// Request asks for one review. A zero Now means the service clock.
type Request struct {
	Key    domain.CardKey
	Rating fsrs.Rating
	Now    time.Time
}

// Result is a committed review.
type Result struct {
	State fsrs.CardState     `json:"state"`
	Entry domain.ReviewEntry `json:"log"`
}

// Snapshot is a card's stored state with its current recall probability.
type Snapshot struct {
	State          fsrs.CardState `json:"state"`
	Retrievability float64        `json:"retrievability"`
}

// Service loads a card's prior state, reviews it and persists the outcome.
// Reviews of the same card are serialized; reviews of different cards are not.
type Service struct {
	store    Store
	reviewer *Reviewer
	validate *validator.Validate
	locks    *keyedMutex
	logger   *slog.Logger
}

// NewService wires a Service.
func NewService(store Store, reviewer *Reviewer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		reviewer: reviewer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// Submit records one review. On any error nothing is persisted and the
// stored state stays authoritative.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	if err := s.checkKey(req.Key); err != nil {
		return Result{}, err
	}
	if !req.Rating.IsValid() {
		return Result{}, &fsrs.InvalidRatingError{Rating: req.Rating}
	}
	now := s.at(req.Now)

	unlock := s.locks.lock(req.Key)
	defer unlock()

	prior, err := s.store.FindState(ctx, req.Key)
	if err != nil {
		return Result{}, err
	}

	next, log, err := s.reviewer.Review(prior, req.Rating, now)
	if err != nil {
		s.logger.Warn("review rejected", "card", req.Key.String(), "rating", req.Rating.String(), "error", err)
		return Result{}, err
	}

	entry, err := s.store.SaveReview(ctx, req.Key, next, log)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("review recorded",
		"card", req.Key.String(),
		"rating", req.Rating.String(),
		"from", log.PreviousState.String(),
		"to", next.State.String(),
		"scheduled_days", next.ScheduledDays,
		"due", next.Due,
	)
	return Result{State: next, Entry: entry}, nil
}

// State returns the stored state of a card and its retrievability at the
// given time (zero means now).
func (s *Service) State(ctx context.Context, key domain.CardKey, at time.Time) (Snapshot, error) {
	if err := s.checkKey(key); err != nil {
		return Snapshot{}, err
	}
	prior, err := s.store.FindState(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	if prior == nil {
		return Snapshot{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	card, err := fsrs.Restore(*prior)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		State:          card,
		Retrievability: s.reviewer.Scheduler().Retrievability(card, s.at(at)),
	}, nil
}

// Preview returns the outcome of every rating for a card without saving any.
func (s *Service) Preview(ctx context.Context, key domain.CardKey, at time.Time) (map[fsrs.Rating]fsrs.SchedulingInfo, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	prior, err := s.store.FindState(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.reviewer.Preview(prior, s.at(at))
}

// History returns every review of a card, oldest first.
func (s *Service) History(ctx context.Context, key domain.CardKey) ([]domain.ReviewEntry, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, key)
}

// Reschedule rebuilds a card's state by replaying its history with the
// current parameters, and stores the result. The history itself is kept.
func (s *Service) Reschedule(ctx context.Context, key domain.CardKey) (fsrs.CardState, error) {
	if err := s.checkKey(key); err != nil {
		return fsrs.CardState{}, err
	}

	unlock := s.locks.lock(key)
	defer unlock()

	history, err := s.store.ListReviews(ctx, key)
	if err != nil {
		return fsrs.CardState{}, err
	}
	if len(history) == 0 {
		return fsrs.CardState{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	events := make([]fsrs.ReviewEvent, len(history))
	for i, e := range history {
		events[i] = fsrs.ReviewEvent{Rating: e.Rating, Reviewed: e.Reviewed}
	}
	card, _, err := s.reviewer.Scheduler().Replay(fsrs.NewCard(history[0].Reviewed), events)
	if err != nil {
		return fsrs.CardState{}, fmt.Errorf("failed to replay history of %s: %w", key, err)
	}
	if err := s.store.SaveState(ctx, key, card); err != nil {
		return fsrs.CardState{}, err
	}

	s.logger.Info("card rescheduled", "card", key.String(), "reviews", len(events), "due", card.Due)
	return card, nil
}

// Reset forgets a card: its state and history are removed and its next
// review starts from New.
func (s *Service) Reset(ctx context.Context, key domain.CardKey) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	if err := s.store.DeleteCard(ctx, key); err != nil {
		return err
	}
	s.logger.Info("card reset", "card", key.String())
	return nil
}

func (s *Service) checkKey(key domain.CardKey) error {
	if err := s.validate.Struct(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.reviewer.Now()
	}
	return t
}
