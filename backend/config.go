package backend

import (
	"fmt"
)

// OutputKind is the kind of file codegen writes.
type OutputKind int

const (
	OutputObjectFile OutputKind = iota
	OutputAssemblyFile
)

func (k OutputKind) String() string {
	switch k {
	case OutputObjectFile:
		return "object-file"
	case OutputAssemblyFile:
		return "assembly-file"
	default:
		return fmt.Sprintf("output-kind(%d)", int(k))
	}
}

// RelocMode selects how generated code is relocated.
// Values match LLVMRelocMode.
type RelocMode int

const (
	RelocDefault RelocMode = iota
	RelocStatic
	RelocPIC
)

func (r RelocMode) String() string {
	switch r {
	case RelocDefault:
		return "default"
	case RelocStatic:
		return "static"
	case RelocPIC:
		return "pic"
	default:
		return fmt.Sprintf("reloc(%d)", int(r))
	}
}

// Config is the codegen configuration handed to RunLTOCodegen.
// It is a value; the With* methods return modified copies.
type Config struct {
	TargetTriple      string
	OutputPath        string
	OptLevel          int
	SizeLevel         int
	OutputKind        OutputKind
	RelocMode         RelocMode
	PerformLTO        bool
	PreserveDebugInfo bool
	Profile           bool
	CompilingForHost  bool
}

// WithTargetTriple returns a copy of c targeting triple.
func (c Config) WithTargetTriple(triple string) Config {
	c.TargetTriple = triple
	return c
}

// WithOutputPath returns a copy of c writing to path.
func (c Config) WithOutputPath(path string) Config {
	c.OutputPath = path
	return c
}

// Record is Config in the integer-encoded layout expected by foreign
// backends: every flag is an int32 that is either 0 or 1.
type Record struct {
	FileName                string
	TargetTriple            string
	OptLevel                int32
	SizeLevel               int32
	OutputKind              int32
	ShouldProfile           int32
	RelocMode               int32
	ShouldPerformLTO        int32
	ShouldPreserveDebugInfo int32
	CompilingForHost        int32
}

// Record converts c to its boundary encoding.
func (c Config) Record() Record {
	return Record{
		OptLevel:                int32(c.OptLevel),
		SizeLevel:               int32(c.SizeLevel),
		OutputKind:              int32(c.OutputKind),
		ShouldProfile:           flag(c.Profile),
		FileName:                c.OutputPath,
		TargetTriple:            c.TargetTriple,
		RelocMode:               int32(c.RelocMode),
		ShouldPerformLTO:        flag(c.PerformLTO),
		ShouldPreserveDebugInfo: flag(c.PreserveDebugInfo),
		CompilingForHost:        flag(c.CompilingForHost),
	}
}

func flag(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
