package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/wippyai/ltolink/backend/llvmir"
	"github.com/wippyai/ltolink/codegen"
	"github.com/wippyai/ltolink/errors"
	"github.com/wippyai/ltolink/library"
	"github.com/wippyai/ltolink/phase"
	"github.com/wippyai/ltolink/target"
)

// ManifestFileName is the manifest looked up when a directory is given.
const ManifestFileName = "ltolink.toml"

// Backend kinds accepted in [backend] kind.
const (
	BackendLLVM       = "llvm"
	BackendWasmPlugin = "wasm-plugin"
)

// Manifest is the build manifest as encoded in TOML.
type Manifest struct {
	Build     BuildSection     `toml:"build"`
	Backend   BackendSection   `toml:"backend"`
	Program   ProgramSection   `toml:"program"`
	Libraries []LibrarySection `toml:"library"`

	// dir is the manifest's directory; relative paths resolve against it.
	dir string
}

type BuildSection struct {
	Produce        string   `toml:"produce"`
	Target         string   `toml:"target"`
	Optimize       bool     `toml:"optimize"`
	Debug          bool     `toml:"debug"`
	ProfilePhases  bool     `toml:"profile-phases"`
	Output         string   `toml:"output"`
	StrictCodegen  bool     `toml:"strict-codegen"`
	KeepTemps      bool     `toml:"keep-temps"`
	TempDir        string   `toml:"temp-dir,omitempty"`
	DisabledPhases []string `toml:"disabled-phases,omitempty"`
}

type BackendSection struct {
	Kind       string `toml:"kind"`
	LLC        string `toml:"llc,omitempty"`
	Opt        string `toml:"opt,omitempty"`
	LLVMDis    string `toml:"llvm-dis,omitempty"`
	Plugin     string `toml:"plugin,omitempty"`
	PluginRoot string `toml:"plugin-root,omitempty"`
}

type ProgramSection struct {
	Module          string   `toml:"module"`
	Runtime         string   `toml:"runtime"`
	NativeLibraries []string `toml:"native-libraries,omitempty"`
}

type LibrarySection struct {
	Name    string   `toml:"name"`
	Bitcode []string `toml:"bitcode"`
}

// LoadManifest reads and validates the manifest at path. If path is a
// directory, ltolink.toml inside it is read.
func LoadManifest(path string) (*Manifest, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, ManifestFileName)
	}

	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).
			Cause(err).
			Detail("read manifest").
			Build()
	}

	m := &Manifest{}
	if err := toml.Unmarshal(buff, m); err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path).
			Cause(err).
			Detail("parse manifest").
			Build()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m.dir = filepath.Dir(abs)
	m.applyDefaults()

	if err := m.validate(); err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path).
			Cause(err).
			Build()
	}
	return m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Build.Produce == "" {
		m.Build.Produce = string(target.OutputProgram)
	}
	if m.Build.Target == "" {
		m.Build.Target = string(target.Host())
	}
	if m.Backend.Kind == "" {
		m.Backend.Kind = BackendLLVM
	}
	defaults := llvmir.DefaultTools()
	if m.Backend.LLC == "" {
		m.Backend.LLC = defaults.LLC
	}
	if m.Backend.LLVMDis == "" {
		m.Backend.LLVMDis = defaults.LLVMDis
	}
	if m.Backend.PluginRoot == "" {
		m.Backend.PluginRoot = "/"
	}
	if m.Build.Output == "" && m.Program.Module != "" {
		base := filepath.Base(m.Program.Module)
		m.Build.Output = strings.TrimSuffix(base, filepath.Ext(base)) + ".o"
	}
}

func (m *Manifest) validate() error {
	if m.Program.Module == "" {
		return fmt.Errorf("[program] module is required")
	}
	if m.Program.Runtime == "" {
		return fmt.Errorf("[program] runtime is required")
	}
	switch m.Backend.Kind {
	case BackendLLVM:
	case BackendWasmPlugin:
		if m.Backend.Plugin == "" {
			return fmt.Errorf("[backend] plugin is required for kind %q", BackendWasmPlugin)
		}
	default:
		return fmt.Errorf("unknown backend kind %q", m.Backend.Kind)
	}
	for i, lib := range m.Libraries {
		if lib.Name == "" {
			return fmt.Errorf("[[library]] #%d has no name", i+1)
		}
	}
	if _, err := m.Phases(); err != nil {
		return err
	}
	_, err := m.Settings()
	return err
}

// Path resolves p against the manifest's directory.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

func (m *Manifest) paths(ps []string) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = m.Path(p)
	}
	return out
}

// Settings derives the codegen settings.
func (m *Manifest) Settings() (codegen.Settings, error) {
	produce, err := target.ParseOutputKind(m.Build.Produce)
	if err != nil {
		return codegen.Settings{}, err
	}
	platform, err := target.Parse(m.Build.Target)
	if err != nil {
		return codegen.Settings{}, err
	}
	s := codegen.Settings{
		Produce:       produce,
		Target:        platform,
		Host:          target.Host(),
		Optimize:      m.Build.Optimize,
		DebugInfo:     m.Build.Debug,
		ProfilePhases: m.Build.ProfilePhases,
	}
	return s, s.Validate()
}

// Phases returns the disabled phases.
func (m *Manifest) Phases() ([]phase.Name, error) {
	var out []phase.Name
	for _, s := range m.Build.DisabledPhases {
		n, err := phase.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Descriptors returns the libraries with resolved bitcode paths.
func (m *Manifest) Descriptors() []library.Descriptor {
	out := make([]library.Descriptor, len(m.Libraries))
	for i, lib := range m.Libraries {
		out[i] = library.New(lib.Name, m.paths(lib.Bitcode)...)
	}
	return out
}

// NativeLibraries returns the resolved native-interop bitcode paths.
func (m *Manifest) NativeLibraries() []string {
	return m.paths(m.Program.NativeLibraries)
}

// tool resolves a tool path. Bare names are looked up in PATH.
func (m *Manifest) tool(p string) string {
	if !strings.ContainsRune(p, '/') && !strings.ContainsRune(p, filepath.Separator) {
		return p
	}
	return m.Path(p)
}

// Tools returns the LLVM tool configuration.
func (m *Manifest) Tools() llvmir.Tools {
	return llvmir.Tools{
		LLC:              m.tool(m.Backend.LLC),
		Opt:              m.tool(m.Backend.Opt),
		LLVMDis:          m.tool(m.Backend.LLVMDis),
		KeepIntermediate: m.Build.KeepTemps,
	}
}
