package backend

import (
	"context"
)

// Backend is the optimization and codegen capability.
type Backend interface {
	// Name identifies the backend. Handles are tagged with it.
	Name() string

	// LoadModule parses the IR blob at path.
	LoadModule(ctx context.Context, path string) (*Module, error)

	// MergeModules merges src into dst in place and consumes src.
	MergeModules(ctx context.Context, dst, src *Module) Status

	// TargetTriple returns the target triple recorded in m.
	TargetTriple(m *Module) string

	// RunLTOCodegen optimizes and compiles program together with runtime
	// and stdlib into the object file at cfg.OutputPath.
	RunLTOCodegen(ctx context.Context, program, runtime, stdlib *Module, cfg Config) Status

	// DisposeModule releases a live handle. Disposing a consumed or
	// released handle is a no-op.
	DisposeModule(m *Module)
}

// Diagnoser is implemented by backends able to explain their last failure.
// The explanation is advisory; callers must not rely on it being present.
type Diagnoser interface {
	LastError() error
}

// LastError returns b's last failure explanation, if b offers one.
func LastError(b Backend) error {
	if d, ok := b.(Diagnoser); ok {
		return d.LastError()
	}
	return nil
}

// Status is the coarse result of a backend merge or codegen call.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
)

// StatusFromCode converts a raw backend return code: zero is success, any
// other value is failure.
func StatusFromCode(code int32) Status {
	if code == 0 {
		return StatusOK
	}
	return StatusFailed
}

// OK reports whether s is a success.
func (s Status) OK() bool {
	return s == StatusOK
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
