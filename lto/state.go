package lto

import (
	"go.uber.org/zap"

	"github.com/wippyai/ltolink/errors"
)

// State is the progress of one compilation through the LTO stage.
type State int

const (
	Unlinked State = iota
	Linking
	Linked
	CodeGenerating
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Linking:
		return "linking"
	case Linked:
		return "linked"
	case CodeGenerating:
		return "code-generating"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

var transitions = map[State][]State{
	Unlinked:       {Linking},
	Linking:        {Linked, Failed},
	Linked:         {CodeGenerating},
	CodeGenerating: {Succeeded, Failed},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks the state of one Run.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: Unlinked, history: []State{Unlinked}}
}

func (m *machine) to(next State) error {
	if !CanTransition(m.state, next) {
		return errors.InvalidState(m.state.String(), next.String())
	}
	Logger().Debug("state transition", zap.Stringer("from", m.state), zap.Stringer("to", next))
	m.state = next
	m.history = append(m.history, next)
	return nil
}

func (m *machine) snapshot() []State {
	return append([]State(nil), m.history...)
}
