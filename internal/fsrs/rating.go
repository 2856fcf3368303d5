package fsrs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Ratings lists every valid rating in ascending order of recall quality.
var Ratings = [...]Rating{Again, Hard, Good, Easy}

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether r is one of Again, Hard, Good or Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts a rating name ("good", case-insensitive) or its
// numeric grade ("3").
func ParseRating(s string) (Rating, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		r := Rating(n)
		if !r.IsValid() {
			return 0, &InvalidRatingError{Rating: r}
		}
		return r, nil
	}
	for _, r := range Ratings {
		if strings.EqualFold(s, ratingNames[r]) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, &InvalidRatingError{Rating: r}
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalJSON encodes the rating as its numeric grade (1-4).
func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.IsValid() {
		return nil, &InvalidRatingError{Rating: r}
	}
	return []byte(strconv.Itoa(int(r))), nil
}

// UnmarshalJSON accepts either a numeric grade or a rating name.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		v := Rating(n)
		if !v.IsValid() {
			return &InvalidRatingError{Rating: v}
		}
		*r = v
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	return r.UnmarshalText([]byte(s))
}
