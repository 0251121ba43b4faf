// Package backendtest provides an in-memory backend.Backend that records
// every call, for testing code built on top of the backend interface.
package backendtest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/errors"
)

// Name is the owner tag of handles created by Backend.
const Name = "backendtest"

// Unit is the in-memory module payload: a list of symbols.
type Unit struct {
	Path    string
	Triple  string
	Symbols []string
}

func (u *Unit) clone() *Unit {
	return &Unit{
		Path:    u.Path,
		Triple:  u.Triple,
		Symbols: append([]string(nil), u.Symbols...),
	}
}

// Codegen records one RunLTOCodegen call.
type Codegen struct {
	Config  backend.Config
	Program []string
	Runtime string
	Stdlib  string
}

// Backend is a recording fake. Configure failures through the exported
// fields before use.
type Backend struct {
	lastErr error
	units   map[string]*Unit
	handles []*backend.Module

	// FailLoad makes LoadModule fail for the given paths.
	FailLoad map[string]bool
	// FailMerge makes MergeModules fail when the given path is the source.
	FailMerge map[string]bool
	// FailCodegen makes RunLTOCodegen report failure without writing output.
	FailCodegen bool

	// Loads lists every path passed to LoadModule, in call order.
	Loads []string
	// Merges lists the source path of every MergeModules call, in call order.
	Merges []string
	// Codegens lists every RunLTOCodegen call.
	Codegens []Codegen
}

// New creates an empty fake backend.
func New() *Backend {
	return &Backend{
		units:     make(map[string]*Unit),
		FailLoad:  make(map[string]bool),
		FailMerge: make(map[string]bool),
	}
}

// Add registers a module that LoadModule can load from path.
func (b *Backend) Add(path, triple string, symbols ...string) {
	b.units[path] = &Unit{Path: path, Triple: triple, Symbols: symbols}
}

// Live returns the number of handles created by b that are still live.
func (b *Backend) Live() int {
	n := 0
	for _, h := range b.handles {
		if h.Live() {
			n++
		}
	}
	return n
}

// Symbols returns the symbols of a live handle.
func (b *Backend) Symbols(m *backend.Module) []string {
	u, err := backend.Borrow[*Unit](m, Name)
	if err != nil {
		return nil
	}
	return append([]string(nil), u.Symbols...)
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) LastError() error {
	return b.lastErr
}

func (b *Backend) LoadModule(_ context.Context, path string) (*backend.Module, error) {
	b.Loads = append(b.Loads, path)

	if b.FailLoad[path] {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Path(path).
			Detail("injected load failure").
			Build()
	}

	u, ok := b.units[path]
	if !ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(path).
			Detail("module not registered").
			Build()
	}

	m := backend.NewModule(Name, path, u.clone())
	b.handles = append(b.handles, m)
	return m, nil
}

func (b *Backend) MergeModules(_ context.Context, dst, src *backend.Module) backend.Status {
	b.lastErr = nil

	d, err := backend.Borrow[*Unit](dst, Name)
	if err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}
	s, err := backend.Take[*Unit](src, Name)
	if err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}

	b.Merges = append(b.Merges, s.Path)

	if b.FailMerge[s.Path] {
		b.lastErr = fmt.Errorf("injected merge failure for %s", s.Path)
		return backend.StatusFailed
	}

	d.Symbols = append(d.Symbols, s.Symbols...)
	return backend.StatusOK
}

func (b *Backend) TargetTriple(m *backend.Module) string {
	u, err := backend.Borrow[*Unit](m, Name)
	if err != nil {
		return ""
	}
	return u.Triple
}

func (b *Backend) RunLTOCodegen(_ context.Context, program, runtime, stdlib *backend.Module, cfg backend.Config) backend.Status {
	b.lastErr = nil

	p, err := backend.Borrow[*Unit](program, Name)
	if err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}
	r, err := backend.Borrow[*Unit](runtime, Name)
	if err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}
	s, err := backend.Borrow[*Unit](stdlib, Name)
	if err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}

	b.Codegens = append(b.Codegens, Codegen{
		Config:  cfg,
		Program: append([]string(nil), p.Symbols...),
		Runtime: r.Path,
		Stdlib:  s.Path,
	})

	if b.FailCodegen {
		b.lastErr = fmt.Errorf("injected codegen failure")
		return backend.StatusFailed
	}

	var all []string
	all = append(all, p.Symbols...)
	all = append(all, r.Symbols...)
	all = append(all, s.Symbols...)
	content := fmt.Sprintf("; %s\n%s\n", cfg.TargetTriple, strings.Join(all, "\n"))
	if err := os.WriteFile(cfg.OutputPath, []byte(content), 0o644); err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}
	return backend.StatusOK
}

func (b *Backend) DisposeModule(m *backend.Module) {
	backend.Release(m)
}
