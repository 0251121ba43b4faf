package lto

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/codegen"
	"github.com/wippyai/ltolink/errors"
	"github.com/wippyai/ltolink/library"
	"github.com/wippyai/ltolink/linker"
	"github.com/wippyai/ltolink/phase"
	"github.com/wippyai/ltolink/tempfiles"
)

// Input is everything one LTO run consumes.
type Input struct {
	// Program is the module produced by earlier compilation stages. It is
	// merged into in place and stays owned by the caller.
	Program *backend.Module
	// Runtime is the language runtime module. Its target triple drives
	// codegen. Owned by the caller.
	Runtime *backend.Module
	// Libraries are the library descriptors to link, including the
	// standard library.
	Libraries []library.Descriptor
	// NativeLibraries are native-interop bitcode paths, linked before any
	// library blob.
	NativeLibraries []string
	// Settings is the build configuration codegen is derived from.
	Settings codegen.Settings
}

// Result describes one LTO run.
type Result struct {
	// CodegenErr is the codegen failure, if any. It is only returned as an
	// error under strict codegen.
	CodegenErr error
	// ObjectPath is the produced object file. Empty unless State is
	// Succeeded.
	ObjectPath string
	// State is the final state.
	State State
	// History lists every state visited, starting with Unlinked.
	History []State
	// LinkInputs is the merge order.
	LinkInputs []string
	// StdlibEntry is the standard library module handed to codegen.
	StdlibEntry string
	// Config is the configuration codegen was invoked with.
	Config backend.Config
}

// OK reports whether the run produced an object file.
func (r *Result) OK() bool {
	return r.State == Succeeded
}

// Option configures a Driver.
type Option func(*Driver)

// WithPhases runs both stages under m instead of a default manager.
func WithPhases(m *phase.Manager) Option {
	return func(d *Driver) {
		d.phases = m
	}
}

// WithTempFiles allocates the object file from a instead of a private
// temporary directory.
func WithTempFiles(a tempfiles.Allocator) Option {
	return func(d *Driver) {
		d.temps = a
		d.ownTemps = nil
	}
}

// WithResolver replaces the default standard library resolver.
func WithResolver(r library.Resolver) Option {
	return func(d *Driver) {
		d.resolver = r
	}
}

// WithStrictCodegen makes Run return codegen failures as errors.
func WithStrictCodegen(strict bool) Option {
	return func(d *Driver) {
		d.strict = strict
	}
}

// Driver orchestrates linking and codegen over a backend.
// Not safe for concurrent use.
type Driver struct {
	backend  backend.Backend
	phases   *phase.Manager
	temps    tempfiles.Allocator
	ownTemps *tempfiles.Dir
	resolver library.Resolver
	strict   bool
}

// New creates a Driver using b.
func New(b backend.Backend, opts ...Option) *Driver {
	own := &tempfiles.Dir{}
	d := &Driver{
		backend:  b,
		phases:   phase.New(),
		temps:    own,
		ownTemps: own,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Phases returns the phase manager the driver runs under.
func (d *Driver) Phases() *phase.Manager {
	return d.phases
}

// Close removes the driver's private temporary directory, including any
// object file it produced. It is a no-op when WithTempFiles was used.
func (d *Driver) Close() error {
	if d.ownTemps == nil {
		return nil
	}
	return d.ownTemps.Dispose()
}

// Run links and compiles in. Configuration and link errors are returned
// with the partial Result. A codegen failure is returned only under strict
// codegen; otherwise it is reported in Result.CodegenErr.
func (d *Driver) Run(ctx context.Context, in Input) (*Result, error) {
	log := Logger()
	sm := newMachine()
	res := &Result{State: Unlinked}
	finish := func() *Result {
		res.State = sm.state
		res.History = sm.snapshot()
		return res
	}

	if err := in.Settings.Validate(); err != nil {
		return finish(), err
	}
	if !in.Runtime.Live() {
		return finish(), errors.New(errors.PhaseConfig, errors.KindInvalidHandle).
			Detail("runtime module is not live").
			Build()
	}

	resolution, err := d.resolver.Resolve(in.Libraries)
	if err != nil {
		log.Error("cannot resolve standard library", zap.Error(err))
		return finish(), err
	}
	res.StdlibEntry = resolution.StdlibEntry
	res.LinkInputs = linker.Inputs(in.NativeLibraries, resolution.LinkInputs)

	stdlib, err := d.backend.LoadModule(ctx, resolution.StdlibEntry)
	if err != nil {
		return finish(), errors.LoadFailed(errors.PhaseLoad, resolution.StdlibEntry, -1, err)
	}
	defer d.backend.DisposeModule(stdlib)

	if err := sm.to(Linking); err != nil {
		return finish(), err
	}
	lnk := linker.New(d.backend)
	err = d.phases.Run(phase.BitcodeLinker, func() error {
		return lnk.Link(ctx, in.Program, res.LinkInputs)
	})
	if err != nil {
		_ = sm.to(Failed)
		return finish(), err
	}
	if err := sm.to(Linked); err != nil {
		return finish(), err
	}

	if !d.phases.Enabled(phase.LLVMCodegen) {
		log.Info("codegen phase disabled, stopping after link")
		_ = d.phases.Run(phase.LLVMCodegen, nil)
		return finish(), nil
	}

	if err := sm.to(CodeGenerating); err != nil {
		return finish(), err
	}
	cfg := codegen.BuildConfig(in.Settings)
	inv := codegen.NewInvoker(d.backend, d.temps)

	var outcome *codegen.Outcome
	_ = d.phases.Run(phase.LLVMCodegen, func() error {
		outcome = inv.Invoke(ctx, in.Program, in.Runtime, stdlib, cfg)
		return outcome.Err
	})
	res.Config = outcome.Config

	if !outcome.OK() {
		_ = sm.to(Failed)
		res.CodegenErr = outcome.Err
		if d.strict {
			return finish(), outcome.Err
		}
		return finish(), nil
	}

	_ = sm.to(Succeeded)
	res.ObjectPath = outcome.ObjectPath
	log.Info("LTO finished",
		zap.String("object", res.ObjectPath),
		zap.Int("inputs", len(res.LinkInputs)),
		zap.String("triple", res.Config.TargetTriple),
	)
	return finish(), nil
}
