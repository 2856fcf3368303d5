package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/fsrs"
	"github.com/conorfennell/knolsched/internal/storage"
)

var testKey = domain.CardKey{UserID: "u1", CardID: "c1"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "knolsched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, newTestReviewer(t), discardLogger()), db
}

func TestSubmitPersistsStateAndLog(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)

	res, err := svc.Submit(ctx, Request{Key: testKey, Rating: fsrs.Good})
	require.NoError(t, err)
	assert.Equal(t, fsrs.Learning, res.State.State)
	assert.Equal(t, testKey, res.Entry.CardKey)
	assert.NotEmpty(t, res.Entry.ID)
	assert.Equal(t, refTime, res.Entry.Reviewed, "zero Now falls back to the clock")

	stored, err := db.FindState(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.State, *stored)

	history, err := svc.History(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Entry, history[0])
}

func TestSubmitContinuesFromStoredState(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Submit(ctx, Request{Key: testKey, Rating: fsrs.Good, Now: refTime})
	require.NoError(t, err)
	res, err := svc.Submit(ctx, Request{Key: testKey, Rating: fsrs.Good, Now: refTime.Add(10 * time.Minute)})
	require.NoError(t, err)

	assert.Equal(t, fsrs.Review, res.State.State)
	assert.Equal(t, fsrs.Learning, res.Entry.PreviousState)
	assert.Equal(t, 2, res.State.ScheduledDays)

	snap, err := svc.State(ctx, testKey, res.State.LastReview)
	require.NoError(t, err)
	assert.Equal(t, res.State, snap.State)
	assert.InDelta(t, 1.0, snap.Retrievability, 1e-9)

	later, err := svc.State(ctx, testKey, res.State.LastReview.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Less(t, later.Retrievability, snap.Retrievability)
}

func TestSubmitInvalidRatingPersistsNothing(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)

	_, err := svc.Submit(ctx, Request{Key: testKey, Rating: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fsrs.ErrInvalidRating))

	stored, err := db.FindState(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, stored)
	history, err := db.ListReviews(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubmitMalformedStoredStatePersistsNothing(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)

	corrupt := fsrs.CardState{
		State: fsrs.Review, Stability: 3, Difficulty: 42,
		Due: refTime, LastReview: refTime,
	}
	require.NoError(t, db.SaveState(ctx, testKey, corrupt))

	_, err := svc.Submit(ctx, Request{Key: testKey, Rating: fsrs.Good})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fsrs.ErrInvalidState))

	stored, err := db.FindState(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, corrupt, *stored)
	history, err := db.ListReviews(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubmitValidatesKey(t *testing.T) {
	svc, _ := newTestService(t)

	for _, key := range []domain.CardKey{
		{UserID: "", CardID: "c1"},
		{UserID: "u1", CardID: ""},
	} {
		_, err := svc.Submit(context.Background(), Request{Key: key, Rating: fsrs.Good})
		assert.True(t, errors.Is(err, ErrInvalidRequest), "key %q", key)
	}
}

func TestStateNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.State(context.Background(), testKey, time.Time{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPreviewUnknownCardStartsFromNew(t *testing.T) {
	svc, db := newTestService(t)

	preview, err := svc.Preview(context.Background(), testKey, time.Time{})
	require.NoError(t, err)
	assert.Len(t, preview, len(fsrs.Ratings))
	assert.Equal(t, fsrs.New, preview[fsrs.Good].Log.PreviousState)

	stored, err := db.FindState(context.Background(), testKey)
	require.NoError(t, err)
	assert.Nil(t, stored, "preview never persists")
}

func TestRescheduleReplaysHistory(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)

	at := refTime
	var last Result
	for _, rating := range []fsrs.Rating{fsrs.Good, fsrs.Good, fsrs.Again, fsrs.Good, fsrs.Easy} {
		var err error
		last, err = svc.Submit(ctx, Request{Key: testKey, Rating: rating, Now: at})
		require.NoError(t, err)
		at = last.State.Due
	}

	drifted := last.State
	drifted.Stability = 99
	drifted.Due = drifted.Due.Add(400 * 24 * time.Hour)
	require.NoError(t, db.SaveState(ctx, testKey, drifted))

	rebuilt, err := svc.Reschedule(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, last.State, rebuilt)

	stored, err := db.FindState(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, last.State, *stored)

	history, err := svc.History(ctx, testKey)
	require.NoError(t, err)
	assert.Len(t, history, 5, "history is kept")
}

func TestRescheduleWithoutHistory(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reschedule(context.Background(), testKey)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResetReturnsCardToNew(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Submit(ctx, Request{Key: testKey, Rating: fsrs.Easy})
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, testKey))

	res, err := svc.Submit(ctx, Request{Key: testKey, Rating: fsrs.Good})
	require.NoError(t, err)
	assert.Equal(t, fsrs.New, res.Entry.PreviousState)
}

func TestConcurrentSubmitsAreSerialized(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, Request{Key: testKey, Rating: fsrs.Good})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, history, n)
	assert.Equal(t, fsrs.New, history[0].PreviousState)
	for i := 1; i < n; i++ {
		assert.Equal(t, history[i-1].State, history[i].PreviousState, "review %d saw the previous result", i)
	}

	snap, err := svc.State(ctx, testKey, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, n-1, snap.State.Reps)
}

// failingStore accepts reads and fails every write.
type failingStore struct{}

var errWriteFailed = errors.New("disk full")

func (f *failingStore) FindState(context.Context, domain.CardKey) (*fsrs.CardState, error) {
	return nil, nil
}

func (f *failingStore) SaveState(context.Context, domain.CardKey, fsrs.CardState) error {
	return errWriteFailed
}

func (f *failingStore) SaveReview(context.Context, domain.CardKey, fsrs.CardState, fsrs.ReviewLog) (domain.ReviewEntry, error) {
	return domain.ReviewEntry{}, errWriteFailed
}

func (f *failingStore) ListReviews(context.Context, domain.CardKey) ([]domain.ReviewEntry, error) {
	return nil, nil
}

func (f *failingStore) DeleteCard(context.Context, domain.CardKey) error {
	return errWriteFailed
}

func TestSubmitReportsStoreFailure(t *testing.T) {
	svc := NewService(&failingStore{}, newTestReviewer(t), discardLogger())

	_, err := svc.Submit(context.Background(), Request{Key: testKey, Rating: fsrs.Good})
	assert.ErrorIs(t, err, errWriteFailed)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.lock(testKey)
	other := k.lock(domain.CardKey{UserID: "u2", CardID: "c1"})
	assert.Len(t, k.locks, 2)

	unlock()
	other()
	assert.Empty(t, k.locks)
}
