package fsrs

import "fmt"

// State is the lifecycle phase of a card.
// The numbering matches the integer stored in the card_states.state column.
type State int

const (
	New        State = 0
	Learning   State = 1
	Review     State = 2
	Relearning State = 3
)

var stateNames = [...]string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}

// IsValid reports whether s is a known lifecycle state.
func (s State) IsValid() bool {
	return s >= New && s <= Relearning
}

func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, &InvalidStateError{Field: "state", Value: int(s), Reason: "unknown lifecycle state"}
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return &InvalidStateError{Field: "state", Value: string(text), Reason: "unknown lifecycle state"}
}
