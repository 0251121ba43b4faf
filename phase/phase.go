// Package phase brackets compiler work in named stages.
//
// A Manager runs the body of each phase, skipping disabled phases, timing
// executed ones and notifying listeners on entry and exit.
package phase

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Name identifies a phase.
type Name string

const (
	BitcodeLinker Name = "BITCODE_LINKER"
	LLVMCodegen   Name = "LLVM_CODEGEN"
)

var known = []Name{BitcodeLinker, LLVMCodegen}

// Known returns the phases owned by the LTO stage.
func Known() []Name {
	return append([]Name(nil), known...)
}

// Parse resolves a phase name, case-insensitively.
func Parse(s string) (Name, error) {
	n := Name(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range known {
		if n == k {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// Timing is the measured duration of one executed phase.
type Timing struct {
	Err     error
	Name    Name
	Elapsed time.Duration
}

// Listener observes phase boundaries.
type Listener interface {
	PhaseStarted(name Name)
	PhaseFinished(name Name, elapsed time.Duration, err error)
	PhaseSkipped(name Name)
}

// Manager runs phases. Not safe for concurrent use.
type Manager struct {
	disabled  map[Name]bool
	now       func() time.Time
	listeners []Listener
	timings   []Timing
	profile   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithProfile logs the duration of every executed phase at info level.
func WithProfile(enabled bool) Option {
	return func(m *Manager) {
		m.profile = enabled
	}
}

// WithDisabled disables the given phases.
func WithDisabled(names ...Name) Option {
	return func(m *Manager) {
		for _, n := range names {
			m.disabled[n] = true
		}
	}
}

// WithListener adds a listener.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listeners = append(m.listeners, l)
	}
}

// New creates a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		disabled: make(map[Name]bool),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether name will run.
func (m *Manager) Enabled(name Name) bool {
	return !m.disabled[name]
}

// Timings returns the timings of the phases run so far, in order.
func (m *Manager) Timings() []Timing {
	return append([]Timing(nil), m.timings...)
}

// Run executes fn as phase name. A disabled phase is skipped and reports no
// error. The error returned by fn is returned unchanged.
func (m *Manager) Run(name Name, fn func() error) error {
	log := Logger().With(zap.String("phase", string(name)))

	if !m.Enabled(name) {
		log.Debug("phase disabled, skipping")
		for _, l := range m.listeners {
			l.PhaseSkipped(name)
		}
		return nil
	}

	for _, l := range m.listeners {
		l.PhaseStarted(name)
	}
	log.Debug("phase started")

	start := m.now()
	err := fn()
	elapsed := m.now().Sub(start)

	m.timings = append(m.timings, Timing{Name: name, Elapsed: elapsed, Err: err})

	if m.profile {
		log.Info("phase finished", zap.Duration("elapsed", elapsed), zap.Bool("ok", err == nil))
	} else {
		log.Debug("phase finished", zap.Duration("elapsed", elapsed), zap.Bool("ok", err == nil))
	}

	for _, l := range m.listeners {
		l.PhaseFinished(name, elapsed, err)
	}
	return err
}
