package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve Phase = "resolve" // stdlib / link input selection
	PhaseLoad    Phase = "load"    // module loading outside the linker
	PhaseLinking Phase = "linking" // bitcode linking
	PhaseCodegen Phase = "codegen" // LTO codegen
	PhaseConfig  Phase = "config"  // build settings and manifests
	PhaseState   Phase = "state"   // pipeline state machine
)

// Kind categorizes the error
type Kind string

const (
	KindStdlibMissing   Kind = "stdlib_missing"
	KindStdlibAmbiguous Kind = "stdlib_ambiguous"
	KindEntryMissing    Kind = "entry_missing"
	KindLoadFailed      Kind = "load_failed"
	KindMergeFailed     Kind = "merge_failed"
	KindCodegenFailed   Kind = "codegen_failed"
	KindInvalidHandle   Kind = "invalid_handle"
	KindInvalidState    Kind = "invalid_state"
	KindToolFailed      Kind = "tool_failed"
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
)

// Error is the structured error type used throughout the driver
type Error struct {
	Cause   error
	Phase   Phase
	Kind    Kind
	Path    string
	Library string
	Detail  string
	Index   int // position of Path in the link order, -1 when not applicable
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Library != "" {
		b.WriteString(" in library ")
		b.WriteString(e.Library)
	}

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
		if e.Index >= 0 {
			fmt.Fprintf(&b, " (input %d)", e.Index)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
			Index: -1,
		},
	}
}

// Path sets the offending input path
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Index sets the position of the input in the link order
func (b *Builder) Index(i int) *Builder {
	b.err.Index = i
	return b
}

// Library sets the library name
func (b *Builder) Library(name string) *Builder {
	b.err.Library = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	err := b.err
	return &err
}

// Convenience constructors for common error patterns

// StdlibMissing reports that no library carries the reserved stdlib name
func StdlibMissing(name string) *Error {
	return &Error{
		Phase:   PhaseResolve,
		Kind:    KindStdlibMissing,
		Library: name,
		Index:   -1,
		Detail:  "no library with this unique name among link inputs",
	}
}

// StdlibAmbiguous reports that more than one library carries the stdlib name
func StdlibAmbiguous(name string, count int) *Error {
	return &Error{
		Phase:   PhaseResolve,
		Kind:    KindStdlibAmbiguous,
		Library: name,
		Index:   -1,
		Detail:  fmt.Sprintf("%d libraries share this unique name, expected exactly one", count),
	}
}

// EntryMissing reports that the stdlib has no program-entry blob
func EntryMissing(library, suffix string) *Error {
	return &Error{
		Phase:   PhaseResolve,
		Kind:    KindEntryMissing,
		Library: library,
		Index:   -1,
		Detail:  fmt.Sprintf("no bitcode path ends with %q", suffix),
	}
}

// LoadFailed reports that a module could not be loaded by the backend
func LoadFailed(phase Phase, path string, index int, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLoadFailed,
		Path:   path,
		Index:  index,
		Detail: "failed to load module",
		Cause:  cause,
	}
}

// MergeFailed reports that merging path into the program module failed
func MergeFailed(path string, index int, cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindMergeFailed,
		Path:   path,
		Index:  index,
		Detail: "failed to link " + path,
		Cause:  cause,
	}
}

// CodegenFailed reports a failed backend codegen invocation
func CodegenFailed(output string, cause error) *Error {
	return &Error{
		Phase:  PhaseCodegen,
		Kind:   KindCodegenFailed,
		Path:   output,
		Index:  -1,
		Detail: "codegen failed",
		Cause:  cause,
	}
}

// InvalidState reports an illegal pipeline state transition
func InvalidState(from, to string) *Error {
	return &Error{
		Phase:  PhaseState,
		Kind:   KindInvalidState,
		Index:  -1,
		Detail: fmt.Sprintf("illegal transition %s -> %s", from, to),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Index:  -1,
		Detail: detail,
		Cause:  cause,
	}
}

// PhaseOf returns the phase of the first *Error in err's chain.
func PhaseOf(err error) (Phase, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase, true
	}
	return "", false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	p, ok := PhaseOf(err)
	return ok && p == PhaseResolve
}

// IsLink reports whether err is a link error.
func IsLink(err error) bool {
	p, ok := PhaseOf(err)
	return ok && p == PhaseLinking
}

// IsCodegen reports whether err is a codegen failure.
func IsCodegen(err error) bool {
	p, ok := PhaseOf(err)
	return ok && p == PhaseCodegen
}
