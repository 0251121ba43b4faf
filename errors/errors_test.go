package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseLinking,
				Kind:    KindMergeFailed,
				Path:    "build/mylib.bc",
				Library: "mylib",
				Index:   1,
				Detail:  "failed to link build/mylib.bc",
			},
			contains: []string{"[linking]", "merge_failed", "mylib", "build/mylib.bc", "(input 1)", "failed to link"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseResolve,
				Kind:  KindStdlibMissing,
				Index: -1,
			},
			contains: []string{"[resolve]", "stdlib_missing"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCodegen,
				Kind:   KindCodegenFailed,
				Detail: "codegen failed",
				Index:  -1,
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[codegen]", "codegen_failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_NoIndexWhenNegative(t *testing.T) {
	err := &Error{Phase: PhaseCodegen, Kind: KindCodegenFailed, Path: "/tmp/merged.o", Index: -1}
	if strings.Contains(err.Error(), "input") {
		t.Errorf("unexpected input index in %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLinking,
		Kind:  KindLoadFailed,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := MergeFailed("a.bc", 0, nil)

	if !err.Is(&Error{Phase: PhaseLinking, Kind: KindMergeFailed}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseCodegen, Kind: KindMergeFailed}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseLinking, Kind: KindLoadFailed}) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, &Error{Phase: PhaseLinking, Kind: KindMergeFailed}) {
		t.Error("errors.Is should match through wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLinking, KindMergeFailed).
		Path("x.bc").
		Index(3).
		Library("mylib").
		Cause(cause).
		Detail("expected %s, got %s", "ok", "fail").
		Build()

	if err.Phase != PhaseLinking {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLinking)
	}
	if err.Kind != KindMergeFailed {
		t.Errorf("Kind = %v, want %v", err.Kind, KindMergeFailed)
	}
	if err.Path != "x.bc" || err.Index != 3 || err.Library != "mylib" {
		t.Errorf("unexpected location fields: %+v", err)
	}
	if err.Detail != "expected ok, got fail" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable")
	}
}

func TestBuilder_DefaultIndex(t *testing.T) {
	err := New(PhaseConfig, KindInvalidInput).Build()
	if err.Index != -1 {
		t.Errorf("Index = %d, want -1", err.Index)
	}
}

func TestClassPredicates(t *testing.T) {
	tests := []struct {
		err                error
		name               string
		config, link, cgen bool
	}{
		{StdlibMissing("stdlib"), "missing", true, false, false},
		{StdlibAmbiguous("stdlib", 2), "ambiguous", true, false, false},
		{EntryMissing("stdlib", "program.kt.bc"), "entry", true, false, false},
		{MergeFailed("a.bc", 0, nil), "merge", false, true, false},
		{LoadFailed(PhaseLinking, "a.bc", 0, nil), "load in linker", false, true, false},
		{CodegenFailed("/tmp/o", nil), "codegen", false, false, true},
		{fmt.Errorf("wrapped: %w", MergeFailed("a.bc", 0, nil)), "wrapped merge", false, true, false},
		{errors.New("plain"), "plain", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfiguration(tt.err); got != tt.config {
				t.Errorf("IsConfiguration = %v, want %v", got, tt.config)
			}
			if got := IsLink(tt.err); got != tt.link {
				t.Errorf("IsLink = %v, want %v", got, tt.link)
			}
			if got := IsCodegen(tt.err); got != tt.cgen {
				t.Errorf("IsCodegen = %v, want %v", got, tt.cgen)
			}
		})
	}
}

func TestMergeFailed_NamesInput(t *testing.T) {
	err := MergeFailed("libs/mylib.bc", 1, nil)
	if !strings.Contains(err.Error(), "failed to link libs/mylib.bc") {
		t.Errorf("message %q does not name the input", err.Error())
	}
}
