// Package status models task status as a tagged union and derives it from a
// task's completion counter.
package status

type Kind int

const (
	KindUnset Kind = iota
	KindOpen
	KindInProgress
	KindDone
	KindCustom
)

// State is a task status. Custom states (steady, ready, ignored or any
// caller-defined tag) carry their tag; the built-in kinds do not.
type State struct {
	kind Kind
	tag  string
}

var (
	Unset      = State{}
	Open       = State{kind: KindOpen}
	InProgress = State{kind: KindInProgress}
	Done       = State{kind: KindDone}

	Steady  = Custom("steady")
	Ready   = Custom("ready")
	Ignored = Custom("ignored")
)

// Custom returns a caller-defined state. Tags that name a built-in kind
// resolve to that kind.
func Custom(tag string) State {
	switch tag {
	case "":
		return Unset
	case "open":
		return Open
	case "in_progress":
		return InProgress
	case "done":
		return Done
	}
	return State{kind: KindCustom, tag: tag}
}

// Parse maps a stored status string to a State. Matching is case-sensitive.
func Parse(s string) State {
	return Custom(s)
}

func (s State) Kind() Kind { return s.kind }

func (s State) IsSet() bool { return s.kind != KindUnset }

func (s State) String() string {
	switch s.kind {
	case KindOpen:
		return "open"
	case KindInProgress:
		return "in_progress"
	case KindDone:
		return "done"
	case KindCustom:
		return s.tag
	}
	return ""
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	*s = Parse(string(b))
	return nil
}

// Compute derives the status implied by a completion counter. Only the
// partial band (0 < count < times) preserves an existing custom state.
func Compute(count, times int, existing State) State {
	switch {
	case count >= times:
		return Done
	case count > 0:
		if existing.kind == KindCustom || existing.kind == KindInProgress {
			return existing
		}
		return InProgress
	default:
		return Open
	}
}
