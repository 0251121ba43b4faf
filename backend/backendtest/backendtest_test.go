package backendtest

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/wippyai/ltolink/backend"
)

var _ backend.Backend = (*Backend)(nil)
var _ backend.Diagnoser = (*Backend)(nil)

func TestBackend_MergeConsumesSource(t *testing.T) {
	ctx := context.Background()
	b := New()
	b.Add("prog", "x86_64-unknown-linux-gnu", "main")
	b.Add("lib", "x86_64-unknown-linux-gnu", "helper")

	dst, err := b.LoadModule(ctx, "prog")
	if err != nil {
		t.Fatal(err)
	}
	src, err := b.LoadModule(ctx, "lib")
	if err != nil {
		t.Fatal(err)
	}

	if st := b.MergeModules(ctx, dst, src); !st.OK() {
		t.Fatalf("merge failed: %v", b.LastError())
	}
	if !src.Consumed() {
		t.Error("source handle should be consumed")
	}
	if got := b.Symbols(dst); !reflect.DeepEqual(got, []string{"main", "helper"}) {
		t.Errorf("symbols = %v", got)
	}
	if b.Live() != 1 {
		t.Errorf("Live() = %d, want 1", b.Live())
	}
}

func TestBackend_LoadIsFresh(t *testing.T) {
	ctx := context.Background()
	b := New()
	b.Add("prog", "", "main")
	b.Add("lib", "", "helper")

	first, _ := b.LoadModule(ctx, "prog")
	lib, _ := b.LoadModule(ctx, "lib")
	b.MergeModules(ctx, first, lib)

	second, _ := b.LoadModule(ctx, "prog")
	if got := b.Symbols(second); !reflect.DeepEqual(got, []string{"main"}) {
		t.Errorf("reloaded module was mutated: %v", got)
	}
}

func TestBackend_Failures(t *testing.T) {
	ctx := context.Background()
	b := New()
	b.Add("prog", "", "main")
	b.Add("lib", "", "helper")
	b.FailLoad["missing"] = true
	b.FailMerge["lib"] = true

	if _, err := b.LoadModule(ctx, "missing"); err == nil {
		t.Error("expected injected load failure")
	}
	if _, err := b.LoadModule(ctx, "unregistered"); err == nil {
		t.Error("expected not found error")
	}

	dst, _ := b.LoadModule(ctx, "prog")
	src, _ := b.LoadModule(ctx, "lib")
	if st := b.MergeModules(ctx, dst, src); st.OK() {
		t.Error("expected merge failure")
	}
	if b.LastError() == nil {
		t.Error("expected LastError after failure")
	}
}

func TestBackend_Codegen(t *testing.T) {
	ctx := context.Background()
	b := New()
	b.Add("prog", "", "main")
	b.Add("runtime", "wasm32-unknown-unknown", "rt_init")
	b.Add("stdlib", "", "kotlin_println")

	prog, _ := b.LoadModule(ctx, "prog")
	rt, _ := b.LoadModule(ctx, "runtime")
	std, _ := b.LoadModule(ctx, "stdlib")

	if got := b.TargetTriple(rt); got != "wasm32-unknown-unknown" {
		t.Errorf("TargetTriple = %q", got)
	}

	out := filepath.Join(t.TempDir(), "merged.o")
	cfg := backend.Config{OutputPath: out, TargetTriple: "wasm32-unknown-unknown"}
	if st := b.RunLTOCodegen(ctx, prog, rt, std, cfg); !st.OK() {
		t.Fatalf("codegen failed: %v", b.LastError())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("output is empty")
	}
	if len(b.Codegens) != 1 || b.Codegens[0].Stdlib != "stdlib" || b.Codegens[0].Runtime != "runtime" {
		t.Errorf("unexpected codegen record %+v", b.Codegens)
	}

	b.FailCodegen = true
	out2 := filepath.Join(t.TempDir(), "merged.o")
	if st := b.RunLTOCodegen(ctx, prog, rt, std, cfg.WithOutputPath(out2)); st.OK() {
		t.Error("expected codegen failure")
	}
	if _, err := os.Stat(out2); !os.IsNotExist(err) {
		t.Error("failed codegen must not write output")
	}
}

func TestBackend_Dispose(t *testing.T) {
	ctx := context.Background()
	b := New()
	b.Add("prog", "", "main")
	m, _ := b.LoadModule(ctx, "prog")
	b.DisposeModule(m)
	b.DisposeModule(m)
	if b.Live() != 0 {
		t.Errorf("Live() = %d after dispose", b.Live())
	}
}
