package linker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/ltolink/backend/backendtest"
	lerrors "github.com/wippyai/ltolink/errors"
)

func newBackend(inputs ...string) *backendtest.Backend {
	b := backendtest.New()
	b.Add("program", "x86_64-unknown-linux-gnu", "main")
	for _, in := range inputs {
		b.Add(in, "x86_64-unknown-linux-gnu", "sym_"+in)
	}
	return b
}

func TestInputs_NativeFirst(t *testing.T) {
	native := []string{"extra.bc"}
	libs := []string{"mylib.bc", "other.bc"}

	got := Inputs(native, libs)
	want := []string{"extra.bc", "mylib.bc", "other.bc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Inputs = %v, want %v", got, want)
	}

	got[0] = "changed"
	if native[0] != "extra.bc" {
		t.Error("Inputs must not alias its arguments")
	}
}

func TestInputs_Empty(t *testing.T) {
	if got := Inputs(nil, nil); len(got) != 0 {
		t.Errorf("Inputs(nil, nil) = %v", got)
	}
}

func TestLink_MergesInOrder(t *testing.T) {
	ctx := context.Background()
	inputs := []string{"a.bc", "b.bc", "c.bc", "d.bc"}
	b := newBackend(inputs...)

	program, err := b.LoadModule(ctx, "program")
	if err != nil {
		t.Fatal(err)
	}

	if err := New(b).Link(ctx, program, inputs); err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	if !reflect.DeepEqual(b.Merges, inputs) {
		t.Errorf("merge order = %v, want %v", b.Merges, inputs)
	}
	want := []string{"main", "sym_a.bc", "sym_b.bc", "sym_c.bc", "sym_d.bc"}
	if got := b.Symbols(program); !reflect.DeepEqual(got, want) {
		t.Errorf("program symbols = %v, want %v", got, want)
	}
	if b.Live() != 1 {
		t.Errorf("only the program handle should stay live, got %d", b.Live())
	}
}

func TestLink_NoInputs(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	program, _ := b.LoadModule(ctx, "program")

	if err := New(b).Link(ctx, program, nil); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if len(b.Merges) != 0 {
		t.Errorf("unexpected merges %v", b.Merges)
	}
}

func TestLink_Deterministic(t *testing.T) {
	ctx := context.Background()
	inputs := []string{"x.bc", "y.bc", "z.bc"}
	b := newBackend(inputs...)

	var results [][]string
	for run := 0; run < 2; run++ {
		program, err := b.LoadModule(ctx, "program")
		if err != nil {
			t.Fatal(err)
		}
		if err := New(b).Link(ctx, program, inputs); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		results = append(results, b.Symbols(program))
	}

	if !reflect.DeepEqual(results[0], results[1]) {
		t.Errorf("runs differ: %v vs %v", results[0], results[1])
	}
}

func TestLink_StopsAtFailingMerge(t *testing.T) {
	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			ctx := context.Background()
			inputs := []string{"in0.bc", "in1.bc", "in2.bc", "in3.bc"}
			b := newBackend(inputs...)
			b.FailMerge[inputs[k]] = true

			program, _ := b.LoadModule(ctx, "program")
			err := New(b).Link(ctx, program, inputs)
			if err == nil {
				t.Fatal("expected link error")
			}

			if !lerrors.IsLink(err) {
				t.Errorf("expected link error, got %v", err)
			}
			var le *lerrors.Error
			if !errors.As(err, &le) {
				t.Fatalf("expected *errors.Error, got %T", err)
			}
			if le.Path != inputs[k] || le.Index != k {
				t.Errorf("error names %q (index %d), want %q (index %d)", le.Path, le.Index, inputs[k], k)
			}
			if !strings.Contains(err.Error(), inputs[k]) {
				t.Errorf("message %q does not name %q", err.Error(), inputs[k])
			}

			if !reflect.DeepEqual(b.Merges, inputs[:k+1]) {
				t.Errorf("merges = %v, want %v", b.Merges, inputs[:k+1])
			}
			for _, later := range inputs[k+1:] {
				for _, loaded := range b.Loads {
					if loaded == later {
						t.Errorf("input %q was loaded after the failure", later)
					}
				}
			}
		})
	}
}

func TestLink_LoadFailure(t *testing.T) {
	ctx := context.Background()
	inputs := []string{"ok.bc", "broken.bc", "never.bc"}
	b := newBackend(inputs...)
	b.FailLoad["broken.bc"] = true

	program, _ := b.LoadModule(ctx, "program")
	err := New(b).Link(ctx, program, inputs)

	if !errors.Is(err, &lerrors.Error{Phase: lerrors.PhaseLinking, Kind: lerrors.KindLoadFailed}) {
		t.Fatalf("expected load failure link error, got %v", err)
	}
	if !reflect.DeepEqual(b.Merges, []string{"ok.bc"}) {
		t.Errorf("merges = %v", b.Merges)
	}
}

func TestLink_CauseFromBackend(t *testing.T) {
	ctx := context.Background()
	b := newBackend("mylib.bc")
	b.FailMerge["mylib.bc"] = true

	program, _ := b.LoadModule(ctx, "program")
	err := New(b).Link(ctx, program, []string{"mylib.bc"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Unwrap(err) == nil {
		t.Error("expected backend diagnostic as cause")
	}
}

func TestLink_DeadProgram(t *testing.T) {
	ctx := context.Background()
	b := newBackend("a.bc")
	program, _ := b.LoadModule(ctx, "program")
	b.DisposeModule(program)

	err := New(b).Link(ctx, program, []string{"a.bc"})
	if !errors.Is(err, &lerrors.Error{Phase: lerrors.PhaseLinking, Kind: lerrors.KindInvalidHandle}) {
		t.Fatalf("expected invalid handle error, got %v", err)
	}
	if len(b.Loads) != 1 {
		t.Errorf("no input should be loaded, loads = %v", b.Loads)
	}
}
