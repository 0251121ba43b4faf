package llvmir

import (
	"fmt"
	"strconv"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"
)

// Named metadata whose destination copy is kept as is.
var keepDstMetadata = map[string]bool{
	"llvm.module.flags": true,
	"llvm.ident":        true,
}

// Merge links src into dst. Values keep referring to each other through
// pointers, so renaming a source symbol also renames every use of it and a
// dropped source declaration resolves to the destination's definition by
// name. src must not be used afterwards.
func Merge(dst, src *ir.Module) error {
	m := &merger{dst: dst, src: src}
	m.index()

	if dst.TargetTriple == "" {
		dst.TargetTriple = src.TargetTriple
	} else if src.TargetTriple != "" && src.TargetTriple != dst.TargetTriple {
		Logger().Warn("linking modules with different target triples",
			zap.String("dst", dst.TargetTriple),
			zap.String("src", src.TargetTriple),
		)
	}
	if dst.DataLayout == "" {
		dst.DataLayout = src.DataLayout
	}

	m.mergeTypes()
	m.mergeComdats()
	m.mergeAttrGroups()
	m.mergeMetadata()
	m.nameAnonymous()

	for _, v := range symbols(src) {
		if err := m.mergeSymbol(v); err != nil {
			return err
		}
	}
	return nil
}

// symbol is a global value: *ir.Func, *ir.Global, *ir.Alias or *ir.IFunc.
type symbol interface {
	Name() string
	SetName(name string)
}

type merger struct {
	dst, src *ir.Module
	symbols  map[string]symbol
	types    map[string]types.Type
	anon     int
}

func (m *merger) index() {
	m.symbols = make(map[string]symbol)
	for _, v := range symbols(m.dst) {
		m.symbols[v.Name()] = v
	}
	m.types = make(map[string]types.Type)
	for _, t := range m.dst.TypeDefs {
		m.types[t.Name()] = t
	}
}

func (m *merger) mergeTypes() {
	for _, t := range m.src.TypeDefs {
		name := t.Name()
		existing, ok := m.types[name]
		if !ok {
			m.dst.TypeDefs = append(m.dst.TypeDefs, t)
			m.types[name] = t
			continue
		}
		if existing.LLString() == t.LLString() {
			continue
		}

		ds, dok := existing.(*types.StructType)
		ss, sok := t.(*types.StructType)
		if dok && sok {
			if ss.Opaque {
				continue
			}
			if ds.Opaque {
				ds.Opaque = false
				ds.Packed = ss.Packed
				ds.Fields = ss.Fields
				continue
			}
		}

		renamed := m.uniqueType(name)
		t.SetName(renamed)
		m.dst.TypeDefs = append(m.dst.TypeDefs, t)
		m.types[renamed] = t
	}
}

func (m *merger) mergeComdats() {
	seen := make(map[string]bool, len(m.dst.ComdatDefs))
	for _, c := range m.dst.ComdatDefs {
		seen[c.Name] = true
	}
	for _, c := range m.src.ComdatDefs {
		if !seen[c.Name] {
			m.dst.ComdatDefs = append(m.dst.ComdatDefs, c)
			seen[c.Name] = true
		}
	}
}

func (m *merger) mergeAttrGroups() {
	var next int64
	for _, g := range m.dst.AttrGroupDefs {
		if g.ID >= next {
			next = g.ID + 1
		}
	}
	for _, g := range m.src.AttrGroupDefs {
		g.ID += next
		m.dst.AttrGroupDefs = append(m.dst.AttrGroupDefs, g)
	}
}

type numbered interface {
	ID() int64
	SetID(id int64)
}

func (m *merger) mergeMetadata() {
	var next int64
	for _, def := range m.dst.MetadataDefs {
		if n, ok := def.(numbered); ok && n.ID() >= next {
			next = n.ID() + 1
		}
	}
	for _, def := range m.src.MetadataDefs {
		if n, ok := def.(numbered); ok {
			n.SetID(n.ID() + next)
		}
		m.dst.MetadataDefs = append(m.dst.MetadataDefs, def)
	}

	if len(m.src.NamedMetadataDefs) > 0 && m.dst.NamedMetadataDefs == nil {
		m.dst.NamedMetadataDefs = make(map[string]*metadata.NamedDef)
	}
	for name, def := range m.src.NamedMetadataDefs {
		existing, ok := m.dst.NamedMetadataDefs[name]
		switch {
		case !ok:
			m.dst.NamedMetadataDefs[name] = def
		case keepDstMetadata[name]:
		default:
			existing.Nodes = append(existing.Nodes, def.Nodes...)
		}
	}
}

// nameAnonymous gives numbered source globals stable names so they cannot
// collide with the destination's numbered globals.
func (m *merger) nameAnonymous() {
	for _, v := range symbols(m.src) {
		if unnamed(v) {
			v.SetName(m.free("__lto.anon." + strconv.Itoa(m.anon)))
			m.anon++
		}
	}
}

func (m *merger) mergeSymbol(v symbol) error {
	name := v.Name()
	existing, clash := m.symbols[name]

	if !clash {
		m.add(v)
		return nil
	}

	if isLocal(linkage(v)) {
		v.SetName(m.unique(name))
		m.add(v)
		return nil
	}
	if isLocal(linkage(existing)) {
		delete(m.symbols, name)
		renamed := m.unique(name)
		existing.SetName(renamed)
		m.symbols[renamed] = existing
		m.add(v)
		return nil
	}

	if linkage(existing) == enum.LinkageAppending && linkage(v) == enum.LinkageAppending {
		return appendArrays(existing, v)
	}

	switch {
	case !isDefinition(v):
		return nil
	case !isDefinition(existing):
		m.replace(existing, v)
		return nil
	case isWeak(linkage(v)):
		return nil
	case isWeak(linkage(existing)):
		m.replace(existing, v)
		return nil
	default:
		return fmt.Errorf("duplicate symbol @%s", name)
	}
}

func (m *merger) add(v symbol) {
	switch v := v.(type) {
	case *ir.Func:
		m.dst.Funcs = append(m.dst.Funcs, v)
	case *ir.Global:
		m.dst.Globals = append(m.dst.Globals, v)
	case *ir.Alias:
		m.dst.Aliases = append(m.dst.Aliases, v)
	case *ir.IFunc:
		m.dst.IFuncs = append(m.dst.IFuncs, v)
	}
	m.symbols[v.Name()] = v
}

// replace puts v where old was, keeping destination order stable. When the
// kinds differ, old is removed and v appended.
func (m *merger) replace(old, v symbol) {
	replaced := false
	switch o := old.(type) {
	case *ir.Func:
		if f, ok := v.(*ir.Func); ok {
			replaced = swap(m.dst.Funcs, o, f)
		} else {
			m.dst.Funcs = without(m.dst.Funcs, o)
		}
	case *ir.Global:
		if g, ok := v.(*ir.Global); ok {
			replaced = swap(m.dst.Globals, o, g)
		} else {
			m.dst.Globals = without(m.dst.Globals, o)
		}
	case *ir.Alias:
		if a, ok := v.(*ir.Alias); ok {
			replaced = swap(m.dst.Aliases, o, a)
		} else {
			m.dst.Aliases = without(m.dst.Aliases, o)
		}
	case *ir.IFunc:
		if i, ok := v.(*ir.IFunc); ok {
			replaced = swap(m.dst.IFuncs, o, i)
		} else {
			m.dst.IFuncs = without(m.dst.IFuncs, o)
		}
	}

	if replaced {
		m.symbols[v.Name()] = v
		return
	}
	m.add(v)
}

func swap[T comparable](s []T, old, v T) bool {
	for i := range s {
		if s[i] == old {
			s[i] = v
			return true
		}
	}
	return false
}

func without[T comparable](s []T, old T) []T {
	out := s[:0]
	for _, x := range s {
		if x != old {
			out = append(out, x)
		}
	}
	return out
}

// free returns name if no symbol uses it yet, or a unique variant.
func (m *merger) free(name string) string {
	if _, taken := m.symbols[name]; !taken && !m.srcHas(name) {
		return name
	}
	return m.unique(name)
}

func (m *merger) unique(name string) string {
	for i := 1; ; i++ {
		candidate := name + "." + strconv.Itoa(i)
		if _, taken := m.symbols[candidate]; !taken && !m.srcHas(candidate) {
			return candidate
		}
	}
}

func (m *merger) uniqueType(name string) string {
	for i := 1; ; i++ {
		candidate := name + "." + strconv.Itoa(i)
		if _, taken := m.types[candidate]; !taken && !m.srcHasType(candidate) {
			return candidate
		}
	}
}

func (m *merger) srcHas(name string) bool {
	for _, v := range symbols(m.src) {
		if v.Name() == name {
			return true
		}
	}
	return false
}

func (m *merger) srcHasType(name string) bool {
	for _, t := range m.src.TypeDefs {
		if t.Name() == name {
			return true
		}
	}
	return false
}

func appendArrays(dstSym, srcSym symbol) error {
	d, dok := dstSym.(*ir.Global)
	s, sok := srcSym.(*ir.Global)
	if !dok || !sok {
		return fmt.Errorf("appending symbol @%s is not a global variable", dstSym.Name())
	}
	da, dok := d.Init.(*constant.Array)
	sa, sok := s.Init.(*constant.Array)
	if !dok || !sok {
		return fmt.Errorf("appending global @%s has no array initializer", d.Name())
	}

	elem := da.Typ.ElemType
	if !elem.Equal(sa.Typ.ElemType) {
		return fmt.Errorf("appending global @%s: element types %s and %s differ", d.Name(), elem, sa.Typ.ElemType)
	}

	elems := append(append([]constant.Constant(nil), da.Elems...), sa.Elems...)
	typ := types.NewArray(uint64(len(elems)), elem)
	d.ContentType = typ
	d.Init = constant.NewArray(typ, elems...)
	d.Typ = nil
	return nil
}

func symbols(mod *ir.Module) []symbol {
	out := make([]symbol, 0, len(mod.Globals)+len(mod.Funcs)+len(mod.Aliases)+len(mod.IFuncs))
	for _, g := range mod.Globals {
		out = append(out, g)
	}
	for _, f := range mod.Funcs {
		out = append(out, f)
	}
	for _, a := range mod.Aliases {
		out = append(out, a)
	}
	for _, i := range mod.IFuncs {
		out = append(out, i)
	}
	return out
}

func unnamed(v symbol) bool {
	switch v := v.(type) {
	case *ir.Func:
		return v.GlobalName == ""
	case *ir.Global:
		return v.GlobalName == ""
	case *ir.Alias:
		return v.GlobalName == ""
	case *ir.IFunc:
		return v.GlobalName == ""
	}
	return false
}

func linkage(v symbol) enum.Linkage {
	switch v := v.(type) {
	case *ir.Func:
		return v.Linkage
	case *ir.Global:
		return v.Linkage
	case *ir.Alias:
		return v.Linkage
	case *ir.IFunc:
		return v.Linkage
	}
	return enum.LinkageNone
}

func isDefinition(v symbol) bool {
	switch v := v.(type) {
	case *ir.Func:
		return len(v.Blocks) > 0
	case *ir.Global:
		return v.Init != nil
	}
	return true
}

func isLocal(l enum.Linkage) bool {
	return l == enum.LinkagePrivate || l == enum.LinkageInternal
}

func isWeak(l enum.Linkage) bool {
	switch l {
	case enum.LinkageWeak, enum.LinkageWeakODR,
		enum.LinkageLinkOnce, enum.LinkageLinkOnceODR,
		enum.LinkageCommon, enum.LinkageAvailableExternally,
		enum.LinkageExternWeak:
		return true
	}
	return false
}
