// Package llvmir implements backend.Backend over textual LLVM IR.
//
// Modules are parsed with github.com/llir/llvm and merged in memory. Bitcode
// inputs are disassembled with llvm-dis first. Whole-program codegen prints
// the merged module and drives the external opt and llc tools.
//
// The backend is NOT safe for concurrent use.
package llvmir

import (
	"bytes"
	"context"
	"os"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"go.uber.org/zap"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/errors"
)

// Name is the owner tag of handles created by this backend.
const Name = "llvmir"

var (
	bitcodeMagic = []byte{'B', 'C', 0xC0, 0xDE}
	wrapperMagic = []byte{0xDE, 0xC0, 0x17, 0x0B}
)

// Tools locates the LLVM command-line tools.
type Tools struct {
	// LLC compiles the merged module. Required for codegen.
	LLC string
	// Opt runs the optimization pipeline. Empty skips optimization.
	Opt string
	// LLVMDis disassembles bitcode inputs. Required to load .bc files.
	LLVMDis string
	// KeepIntermediate leaves the printed and optimized .ll files on disk.
	KeepIntermediate bool
}

// DefaultTools resolves the tools from PATH.
func DefaultTools() Tools {
	return Tools{LLC: "llc", Opt: "opt", LLVMDis: "llvm-dis"}
}

type unit struct {
	path string
	mod  *ir.Module
}

// Backend is the llir-based backend.
type Backend struct {
	tools   Tools
	lastErr error
}

// New creates a backend using tools.
func New(tools Tools) *Backend {
	return &Backend{tools: tools}
}

func (b *Backend) Name() string {
	return Name
}

// LastError explains the most recent failed MergeModules or RunLTOCodegen.
func (b *Backend) LastError() error {
	return b.lastErr
}

func (b *Backend) LoadModule(ctx context.Context, path string) (*backend.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(path).
			Cause(err).
			Build()
	}

	if isBitcode(data) {
		Logger().Debug("disassembling bitcode", zap.String("path", path))
		data, err = b.disassemble(ctx, path)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindToolFailed).
				Path(path).
				Cause(err).
				Detail("llvm-dis failed").
				Build()
		}
	}

	mod, err := asm.ParseBytes(path, data)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Path(path).
			Cause(err).
			Detail("invalid LLVM IR").
			Build()
	}
	if isEmpty(mod) && hasContent(data) {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Path(path).
			Detail("invalid LLVM IR: no top-level entities").
			Build()
	}

	Logger().Debug("module loaded",
		zap.String("path", path),
		zap.String("triple", mod.TargetTriple),
		zap.Int("funcs", len(mod.Funcs)),
		zap.Int("globals", len(mod.Globals)),
	)
	return backend.NewModule(Name, path, &unit{path: path, mod: mod}), nil
}

func (b *Backend) MergeModules(_ context.Context, dst, src *backend.Module) backend.Status {
	b.lastErr = nil

	d, err := backend.Borrow[*unit](dst, Name)
	if err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}
	s, err := backend.Take[*unit](src, Name)
	if err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}

	if err := Merge(d.mod, s.mod); err != nil {
		b.lastErr = err
		Logger().Debug("merge failed", zap.String("dst", d.path), zap.String("src", s.path), zap.Error(err))
		return backend.StatusFailed
	}
	return backend.StatusOK
}

func (b *Backend) TargetTriple(m *backend.Module) string {
	u, err := backend.Borrow[*unit](m, Name)
	if err != nil {
		return ""
	}
	return u.mod.TargetTriple
}

func (b *Backend) DisposeModule(m *backend.Module) {
	backend.Release(m)
}

// Module returns the parsed IR behind a live handle.
func Module(m *backend.Module) (*ir.Module, error) {
	u, err := backend.Borrow[*unit](m, Name)
	if err != nil {
		return nil, err
	}
	return u.mod, nil
}

func isBitcode(data []byte) bool {
	return bytes.HasPrefix(data, bitcodeMagic) || bytes.HasPrefix(data, wrapperMagic)
}

// isEmpty reports whether mod has no top-level entity at all.
func isEmpty(mod *ir.Module) bool {
	return mod.TargetTriple == "" && mod.DataLayout == "" && mod.SourceFilename == "" &&
		len(mod.TypeDefs) == 0 && len(mod.Globals) == 0 && len(mod.Funcs) == 0 &&
		len(mod.Aliases) == 0 && len(mod.IFuncs) == 0 && len(mod.ComdatDefs) == 0 &&
		len(mod.AttrGroupDefs) == 0 && len(mod.NamedMetadataDefs) == 0 &&
		len(mod.MetadataDefs) == 0 && len(mod.ModuleAsms) == 0
}

// hasContent reports whether data holds anything besides blank lines and
// comments. The parser skips input it does not recognize.
func hasContent(data []byte) bool {
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 && line[0] != ';' {
			return true
		}
	}
	return false
}
