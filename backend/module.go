package backend

import (
	"fmt"

	"github.com/wippyai/ltolink/errors"
)

type moduleState int

const (
	moduleLive moduleState = iota
	moduleConsumed
	moduleReleased
)

func (s moduleState) String() string {
	switch s {
	case moduleLive:
		return "live"
	case moduleConsumed:
		return "consumed"
	case moduleReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Module is an opaque handle to an IR module owned by a backend.
type Module struct {
	payload any
	owner   string
	name    string
	state   moduleState
}

// NewModule creates a live handle owned by the backend named owner.
// Only backends call this.
func NewModule(owner, name string, payload any) *Module {
	return &Module{owner: owner, name: name, payload: payload}
}

// Owner returns the name of the backend owning the handle.
func (m *Module) Owner() string {
	return m.owner
}

// Name returns the path or identifier the module was loaded from.
func (m *Module) Name() string {
	return m.name
}

// Live reports whether the handle can still be used.
func (m *Module) Live() bool {
	return m != nil && m.state == moduleLive
}

// Consumed reports whether the handle was consumed by a merge.
func (m *Module) Consumed() bool {
	return m != nil && m.state == moduleConsumed
}

func (m *Module) String() string {
	if m == nil {
		return "<nil module>"
	}
	return fmt.Sprintf("%s:%s (%s)", m.owner, m.name, m.state)
}

// Borrow returns the payload of a live handle owned by owner.
func Borrow[T any](m *Module, owner string) (T, error) {
	var zero T
	if err := check(m, owner); err != nil {
		return zero, err
	}
	p, ok := m.payload.(T)
	if !ok {
		return zero, handleError(m, fmt.Sprintf("payload is %T", m.payload))
	}
	return p, nil
}

// Take returns the payload of a live handle owned by owner and marks the
// handle consumed.
func Take[T any](m *Module, owner string) (T, error) {
	p, err := Borrow[T](m, owner)
	if err != nil {
		return p, err
	}
	m.state = moduleConsumed
	m.payload = nil
	return p, nil
}

// Release marks a live handle released and returns its payload so the
// backend can free it. It returns false if the handle was not live.
func Release(m *Module) (any, bool) {
	if !m.Live() {
		return nil, false
	}
	p := m.payload
	m.state = moduleReleased
	m.payload = nil
	return p, true
}

func check(m *Module, owner string) error {
	if m == nil {
		return errors.New(errors.PhaseLoad, errors.KindInvalidHandle).Detail("nil module").Build()
	}
	if m.owner != owner {
		return handleError(m, "owned by "+m.owner+", not "+owner)
	}
	if m.state != moduleLive {
		return handleError(m, "handle is "+m.state.String())
	}
	return nil
}

func handleError(m *Module, detail string) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidHandle).
		Path(m.name).
		Detail("%s", detail).
		Build()
}
