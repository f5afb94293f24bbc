package window

import "fmt"

// State is a slot's load state.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Errored
	Recycled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	case Recycled:
		return "recycled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Slot binds one grid position to an item index.
type Slot struct {
	Index    int
	URL      string
	State    State
	Data     []byte
	Animated bool
	Err      error
}

// NewSlot returns an unbound idle slot.
func NewSlot() *Slot { return &Slot{Index: -1} }

// Bind attaches the slot to index and url. Only idle slots can be bound.
func (s *Slot) Bind(index int, url string) error {
	if s.State != Idle {
		return fmt.Errorf("bind slot in state %s", s.State)
	}
	s.Index, s.URL = index, url
	return nil
}

// StartLoading moves Idle to Loading.
func (s *Slot) StartLoading() error {
	if s.State != Idle {
		return fmt.Errorf("load slot in state %s", s.State)
	}
	s.State = Loading
	return nil
}

// Matches reports whether a completion for index and url belongs to s.
func (s *Slot) Matches(index int, url string) bool {
	return s.State == Loading && s.Index == index && s.URL == url
}

// Complete moves Loading to Loaded.
func (s *Slot) Complete(data []byte, animated bool) error {
	if s.State != Loading {
		return fmt.Errorf("complete slot in state %s", s.State)
	}
	s.State, s.Data, s.Animated = Loaded, data, animated
	return nil
}

// Fail moves Loading to Errored.
func (s *Slot) Fail(err error) error {
	if s.State != Loading {
		return fmt.Errorf("fail slot in state %s", s.State)
	}
	s.State, s.Err = Errored, err
	return nil
}

// Recycle drops the binding from any state. Completions for the old index no
// longer match.
func (s *Slot) Recycle() {
	s.State = Recycled
	s.Index, s.URL = -1, ""
	s.Data, s.Animated, s.Err = nil, false, nil
}

// Reset finishes recycling: Recycled to Idle.
func (s *Slot) Reset() {
	s.Recycle()
	s.State = Idle
}
