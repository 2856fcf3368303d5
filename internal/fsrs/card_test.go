package fsrs

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCard(t *testing.T) {
	c := NewCard(refTime)
	assert.Equal(t, CardState{Due: refTime, State: New}, c)
	assert.False(t, c.HasReviewed())
	assert.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		field  string
		mutate func(c *CardState)
	}{
		{"unknown state", "state", func(c *CardState) { c.State = 7 }},
		{"negative stability", "stability", func(c *CardState) { c.Stability = -1 }},
		{"NaN stability", "stability", func(c *CardState) { c.Stability = math.NaN() }},
		{"zero stability after New", "stability", func(c *CardState) { c.Stability = 0 }},
		{"difficulty below range", "difficulty", func(c *CardState) { c.Difficulty = 0.5 }},
		{"difficulty above range", "difficulty", func(c *CardState) { c.Difficulty = 10.5 }},
		{"negative elapsed days", "elapsed_days", func(c *CardState) { c.ElapsedDays = -1 }},
		{"negative scheduled days", "scheduled_days", func(c *CardState) { c.ScheduledDays = -3 }},
		{"negative reps", "reps", func(c *CardState) { c.Reps = -1 }},
		{"negative lapses", "lapses", func(c *CardState) { c.Lapses = -2 }},
		{"due before last review", "due", func(c *CardState) { c.Due = c.LastReview.Add(-time.Minute) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := reviewCard(refTime)
			tc.mutate(&c)

			_, err := Restore(c)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidState)

			var stateErr *InvalidStateError
			require.ErrorAs(t, err, &stateErr)
			assert.Equal(t, tc.field, stateErr.Field)
		})
	}

	t.Run("New card keeps unset difficulty", func(t *testing.T) {
		c := NewCard(refTime)
		c.Difficulty = 0
		assert.NoError(t, c.Validate())
		c.Difficulty = 11
		assert.ErrorIs(t, c.Validate(), ErrInvalidState)
	})

	t.Run("valid review card", func(t *testing.T) {
		c, err := Restore(reviewCard(refTime))
		require.NoError(t, err)
		assert.Equal(t, reviewCard(refTime), c)
	})
}

func TestCardStateJSONRoundTrip(t *testing.T) {
	s := newTestScheduler(t)
	cards := []CardState{
		NewCard(refTime),
		reviewCard(refTime),
		mustSchedule(t, s, reviewCard(refTime), Again, refTime.Add(4*day)).Card,
	}
	for _, c := range cards {
		data, err := json.Marshal(c)
		require.NoError(t, err)

		var decoded CardState
		require.NoError(t, json.Unmarshal(data, &decoded))
		restored, err := Restore(decoded)
		require.NoError(t, err)
		assert.Equal(t, c, restored)
	}

	data, err := json.Marshal(NewCard(refTime))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_review")
	assert.Contains(t, string(data), `"state":"New"`)
}
