package fsrs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRating(t *testing.T) {
	testCases := []struct {
		input string
		want  Rating
	}{
		{"1", Again},
		{"2", Hard},
		{" 3 ", Good},
		{"4", Easy},
		{"again", Again},
		{"Hard", Hard},
		{"GOOD", Good},
		{"easy", Easy},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseRating(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"0", "5", "-1", "", "meh"} {
		_, err := ParseRating(bad)
		assert.ErrorIs(t, err, ErrInvalidRating, bad)
	}
}

func TestRatingJSON(t *testing.T) {
	data, err := json.Marshal(Good)
	require.NoError(t, err)
	assert.Equal(t, "3", string(data))

	var r Rating
	require.NoError(t, json.Unmarshal([]byte(`4`), &r))
	assert.Equal(t, Easy, r)
	require.NoError(t, json.Unmarshal([]byte(`"hard"`), &r))
	assert.Equal(t, Hard, r)

	assert.ErrorIs(t, json.Unmarshal([]byte(`7`), &r), ErrInvalidRating)
	assert.ErrorIs(t, json.Unmarshal([]byte(`true`), &r), ErrInvalidRating)

	_, err = json.Marshal(Rating(0))
	assert.Error(t, err)
}

func TestStateText(t *testing.T) {
	for _, s := range []State{New, Learning, Review, Relearning} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var decoded State
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, s, decoded)
	}
	assert.Equal(t, "State(9)", State(9).String())

	var s State
	assert.ErrorIs(t, s.UnmarshalText([]byte("Graduated")), ErrInvalidState)
}
