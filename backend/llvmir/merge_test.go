package llvmir

import (
	"strings"
	"testing"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
)

func parse(t *testing.T, name, src string) *ir.Module {
	t.Helper()
	m, err := asm.ParseBytes(name, []byte(src))
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return m
}

// reparse checks that the merged module still prints as valid IR.
func reparse(t *testing.T, m *ir.Module) *ir.Module {
	t.Helper()
	out, err := asm.ParseBytes("merged.ll", []byte(m.String()))
	if err != nil {
		t.Fatalf("merged module does not parse: %v\n%s", err, m.String())
	}
	return out
}

func funcNamed(m *ir.Module, name string) *ir.Func {
	for _, f := range m.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

func globalNamed(m *ir.Module, name string) *ir.Global {
	for _, g := range m.Globals {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

const programIR = `
target triple = "x86_64-unknown-linux-gnu"

%Point = type { i32, i32 }

@counter = global i32 0
@cache = internal global i32 1

declare i32 @lib_add(i32, i32)

define i32 @main() {
entry:
  %r = call i32 @lib_add(i32 1, i32 2)
  ret i32 %r
}
`

const libraryIR = `
%Point = type { i32, i32 }

@cache = internal global i32 7

define i32 @lib_add(i32 %a, i32 %b) {
entry:
  %s = add i32 %a, %b
  ret i32 %s
}
`

func TestMerge_DeclarationResolvedByDefinition(t *testing.T) {
	dst := parse(t, "program.ll", programIR)
	src := parse(t, "lib.ll", libraryIR)

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if len(dst.Funcs) != 2 {
		t.Fatalf("funcs = %d, want 2", len(dst.Funcs))
	}
	if dst.Funcs[0].Name() != "lib_add" || len(dst.Funcs[0].Blocks) == 0 {
		t.Errorf("declaration of lib_add should be replaced in place by its definition")
	}
	if dst.Funcs[1].Name() != "main" {
		t.Errorf("main moved to %q", dst.Funcs[1].Name())
	}
	if len(dst.TypeDefs) != 1 {
		t.Errorf("identical named types should be shared, got %d", len(dst.TypeDefs))
	}
	if dst.TargetTriple != "x86_64-unknown-linux-gnu" {
		t.Errorf("triple = %q", dst.TargetTriple)
	}

	merged := reparse(t, dst)
	if funcNamed(merged, "lib_add") == nil {
		t.Error("lib_add missing after reparse")
	}
}

func TestMerge_LocalSymbolsRenamed(t *testing.T) {
	dst := parse(t, "program.ll", programIR)
	src := parse(t, "lib.ll", libraryIR)

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if globalNamed(dst, "cache") == nil {
		t.Error("destination local @cache should keep its name")
	}
	renamed := globalNamed(dst, "cache.1")
	if renamed == nil {
		t.Fatal("source local @cache should be renamed to @cache.1")
	}
	if renamed.Linkage != enum.LinkageInternal {
		t.Errorf("renamed linkage = %v", renamed.Linkage)
	}
	reparse(t, dst)
}

func TestMerge_DuplicateStrongDefinitions(t *testing.T) {
	dst := parse(t, "a.ll", `
define i32 @f() {
entry:
  ret i32 1
}
`)
	src := parse(t, "b.ll", `
define i32 @f() {
entry:
  ret i32 2
}
`)

	err := Merge(dst, src)
	if err == nil {
		t.Fatal("expected duplicate symbol error")
	}
	if !strings.Contains(err.Error(), "duplicate symbol @f") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestMerge_WeakDefinitions(t *testing.T) {
	tests := []struct {
		name    string
		dst     string
		src     string
		wantRet string
	}{
		{
			name:    "strong source replaces weak destination",
			dst:     "define weak i32 @f() {\nentry:\n  ret i32 1\n}\n",
			src:     "define i32 @f() {\nentry:\n  ret i32 2\n}\n",
			wantRet: "ret i32 2",
		},
		{
			name:    "weak source loses to strong destination",
			dst:     "define i32 @f() {\nentry:\n  ret i32 1\n}\n",
			src:     "define linkonce_odr i32 @f() {\nentry:\n  ret i32 2\n}\n",
			wantRet: "ret i32 1",
		},
		{
			name:    "two weak definitions keep destination",
			dst:     "define weak i32 @f() {\nentry:\n  ret i32 1\n}\n",
			src:     "define weak i32 @f() {\nentry:\n  ret i32 2\n}\n",
			wantRet: "ret i32 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := parse(t, "dst.ll", tt.dst)
			src := parse(t, "src.ll", tt.src)
			if err := Merge(dst, src); err != nil {
				t.Fatalf("Merge: %v", err)
			}
			if len(dst.Funcs) != 1 {
				t.Fatalf("funcs = %d, want 1", len(dst.Funcs))
			}
			if !strings.Contains(dst.Funcs[0].LLString(), tt.wantRet) {
				t.Errorf("kept wrong definition:\n%s", dst.Funcs[0].LLString())
			}
		})
	}
}

func TestMerge_AppendingGlobals(t *testing.T) {
	dst := parse(t, "a.ll", "@list = appending global [1 x i32] [i32 1]\n")
	src := parse(t, "b.ll", "@list = appending global [2 x i32] [i32 2, i32 3]\n")

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(dst.Globals) != 1 {
		t.Fatalf("globals = %d, want 1", len(dst.Globals))
	}
	arr, ok := dst.Globals[0].Init.(*constant.Array)
	if !ok {
		t.Fatalf("init is %T", dst.Globals[0].Init)
	}
	if len(arr.Elems) != 3 || arr.Typ.Len != 3 {
		t.Errorf("got %d elems of [%d x ...], want 3", len(arr.Elems), arr.Typ.Len)
	}
	reparse(t, dst)
}

func TestMerge_ConflictingTypesRenamed(t *testing.T) {
	dst := parse(t, "a.ll", "%T = type { i32 }\n\n@a = global %T zeroinitializer\n")
	src := parse(t, "b.ll", "%T = type { i64 }\n\n@b = global %T zeroinitializer\n")

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(dst.TypeDefs) != 2 {
		t.Fatalf("typedefs = %d, want 2", len(dst.TypeDefs))
	}
	if dst.TypeDefs[1].Name() != "T.1" {
		t.Errorf("renamed type = %q, want T.1", dst.TypeDefs[1].Name())
	}
	out := dst.String()
	if !strings.Contains(out, "%T.1 = type { i64 }") {
		t.Errorf("renamed type not printed:\n%s", out)
	}
	reparse(t, dst)
}

func TestMerge_OpaqueTypeCompleted(t *testing.T) {
	dst := parse(t, "a.ll", "%Obj = type opaque\n\n@p = global %Obj* null\n")
	src := parse(t, "b.ll", "%Obj = type { i32, i8 }\n\n@o = global %Obj zeroinitializer\n")

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(dst.TypeDefs) != 1 {
		t.Fatalf("typedefs = %d, want 1", len(dst.TypeDefs))
	}
	if !strings.Contains(dst.String(), "%Obj = type { i32, i8 }") {
		t.Errorf("opaque type not completed:\n%s", dst.String())
	}
	reparse(t, dst)
}

func TestMerge_AnonymousGlobalsNamed(t *testing.T) {
	dst := parse(t, "a.ll", "@0 = private constant [3 x i8] c\"ab\\00\"\n")
	src := parse(t, "b.ll", "@0 = private constant [3 x i8] c\"cd\\00\"\n")

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(dst.Globals) != 2 {
		t.Fatalf("globals = %d, want 2", len(dst.Globals))
	}
	if globalNamed(dst, "__lto.anon.0") == nil {
		t.Errorf("source anonymous global should be named __lto.anon.0")
	}
	reparse(t, dst)
}

func TestMerge_AttributeGroupsRenumbered(t *testing.T) {
	dst := parse(t, "a.ll", "define void @a() #0 {\nentry:\n  ret void\n}\n\nattributes #0 = { nounwind }\n")
	src := parse(t, "b.ll", "define void @b() #0 {\nentry:\n  ret void\n}\n\nattributes #0 = { noinline }\n")

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(dst.AttrGroupDefs) != 2 {
		t.Fatalf("attribute groups = %d, want 2", len(dst.AttrGroupDefs))
	}
	if dst.AttrGroupDefs[0].ID != 0 || dst.AttrGroupDefs[1].ID != 1 {
		t.Errorf("ids = %d, %d, want 0, 1", dst.AttrGroupDefs[0].ID, dst.AttrGroupDefs[1].ID)
	}
	reparse(t, dst)
}

func TestMerge_ExternalDeclarationsDeduplicated(t *testing.T) {
	dst := parse(t, "a.ll", "declare void @abort()\n")
	src := parse(t, "b.ll", "declare void @abort()\n")

	if err := Merge(dst, src); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(dst.Funcs) != 1 {
		t.Errorf("funcs = %d, want 1", len(dst.Funcs))
	}
}
