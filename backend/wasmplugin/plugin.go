// Package wasmplugin runs an LTO backend compiled to WebAssembly.
//
// The plugin is a WASI reactor executed by wazero. It reaches bitcode files
// through a WASI directory mount of Config.Root at "/" and exchanges strings
// and the codegen configuration record through its own linear memory.
//
// A Plugin is NOT safe for concurrent use.
package wasmplugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/errors"
)

// Name is the owner tag of handles created by a Plugin.
const Name = "wasmplugin"

// hostModule is the import namespace the plugin may use for diagnostics.
const hostModule = "ltolink"

// Config holds plugin configuration.
type Config struct {
	// Root is the host directory mounted at "/" in the guest. Every module
	// and output path must lie below it.
	Root string

	// MemoryLimitPages caps guest memory in 64KB pages. 0 keeps wazero's
	// default.
	MemoryLimitPages uint32

	// Stdout and Stderr receive the guest's output. nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// handle is the payload of a backend.Module owned by a Plugin.
type handle uint32

// Plugin is a backend.Backend implemented by a WebAssembly guest.
type Plugin struct {
	runtime wazero.Runtime
	mod     api.Module
	mem     api.Memory
	fns     map[string]api.Function
	root    string
	lastErr error
}

// Load compiles and instantiates the plugin binary.
func Load(ctx context.Context, wasm []byte, cfg Config) (*Plugin, error) {
	if cfg.Root == "" {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("plugin root is required").
			Build()
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rc)

	p, err := instantiate(ctx, r, wasm, cfg)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return p, nil
}

// LoadFile reads the plugin binary from path and loads it.
func LoadFile(ctx context.Context, path string, cfg Config) (*Plugin, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).
			Cause(err).
			Detail("read plugin").
			Build()
	}
	return Load(ctx, wasm, cfg)
}

func instantiate(ctx context.Context, r wazero.Runtime, wasm []byte, cfg Config) (*Plugin, error) {
	log := Logger()

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindLoadFailed, err, "instantiate WASI")
	}
	if err := instantiateHost(ctx, r); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindLoadFailed, err, "instantiate host module")
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindLoadFailed, err, "compile plugin")
	}

	mc := wazero.NewModuleConfig().
		WithName("lto-backend").
		WithStartFunctions().
		WithFSConfig(wazero.NewFSConfig().WithDirMount(cfg.Root, "/"))
	if cfg.Stdout != nil {
		mc = mc.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		mc = mc.WithStderr(cfg.Stderr)
	}

	mod, err := r.InstantiateModule(ctx, compiled, mc)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindLoadFailed, err, "instantiate plugin")
	}

	fns, mem, err := resolveExports(mod)
	if err != nil {
		return nil, err
	}

	if init := mod.ExportedFunction(exportInitialize); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindLoadFailed, err, "plugin _initialize")
		}
	}

	log.Debug("plugin loaded", zap.String("root", cfg.Root), zap.Int("exports", len(fns)))
	return &Plugin{runtime: r, mod: mod, mem: mem, fns: fns, root: cfg.Root}, nil
}

func resolveExports(mod api.Module) (map[string]api.Function, api.Memory, error) {
	var missing []string
	mem := mod.ExportedMemory(exportMemory)
	if mem == nil {
		missing = append(missing, exportMemory)
	}

	fns := make(map[string]api.Function, len(requiredFuncs)+1)
	for _, name := range requiredFuncs {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			missing = append(missing, name)
			continue
		}
		fns[name] = fn
	}
	if fn := mod.ExportedFunction(exportLastError); fn != nil {
		fns[exportLastError] = fn
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("plugin is missing exports: %s", strings.Join(missing, ", ")).
			Build()
	}
	return fns, mem, nil
}

// instantiateHost provides ltolink.log(ptr, len) so guests can emit
// diagnostics through the driver's logger.
func instantiateHost(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
			ptr, n := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
			mem := mod.ExportedMemory(exportMemory)
			if mem == nil {
				return
			}
			if msg, ok := mem.Read(ptr, n); ok {
				Logger().Info("plugin", zap.String("message", string(msg)))
			}
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("log").
		Instantiate(ctx)
	return err
}

// Close releases the plugin and its runtime.
func (p *Plugin) Close(ctx context.Context) error {
	return multierr.Append(p.mod.Close(ctx), p.runtime.Close(ctx))
}

func (p *Plugin) Name() string {
	return Name
}

// LastError returns the most recent failure, enriched with the guest's own
// explanation when it exports lto_last_error.
func (p *Plugin) LastError() error {
	return p.lastErr
}

func (p *Plugin) fail(ctx context.Context, err error) backend.Status {
	if msg := p.guestError(ctx); msg != "" {
		err = fmt.Errorf("%w: %s", err, msg)
	}
	p.lastErr = err
	return backend.StatusFailed
}

func (p *Plugin) guestError(ctx context.Context) string {
	fn, ok := p.fns[exportLastError]
	if !ok {
		return ""
	}
	msg, err := p.readInto(ctx, func(buf, capacity uint32) (uint32, error) {
		res, err := fn.Call(ctx, api.EncodeU32(buf), api.EncodeU32(capacity))
		if err != nil {
			return 0, err
		}
		return api.DecodeU32(res[0]), nil
	})
	if err != nil {
		return ""
	}
	return msg
}

func (p *Plugin) LoadModule(ctx context.Context, path string) (*backend.Module, error) {
	gp, err := guestPath(p.root, path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path(path).
			Cause(err).
			Build()
	}

	ptr, n, err := p.writeString(ctx, gp)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "pass path to plugin")
	}
	defer p.free(ctx, ptr)

	res, err := p.fns[exportLoadModule].Call(ctx, api.EncodeU32(ptr), api.EncodeU32(n))
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).Path(path).Cause(err).Build()
	}
	h := handle(api.DecodeU32(res[0]))
	if h == 0 {
		b := errors.New(errors.PhaseLoad, errors.KindLoadFailed).Path(path).Detail("plugin rejected module")
		if msg := p.guestError(ctx); msg != "" {
			b = b.Detail("plugin rejected module: %s", msg)
		}
		return nil, b.Build()
	}

	Logger().Debug("module loaded", zap.String("path", path), zap.String("guest_path", gp), zap.Uint32("handle", uint32(h)))
	return backend.NewModule(Name, path, h), nil
}

func (p *Plugin) MergeModules(ctx context.Context, dst, src *backend.Module) backend.Status {
	p.lastErr = nil

	d, err := backend.Borrow[handle](dst, Name)
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}
	s, err := backend.Take[handle](src, Name)
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}

	res, err := p.fns[exportLinkModules].Call(ctx, api.EncodeU32(uint32(d)), api.EncodeU32(uint32(s)))
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}
	st := backend.StatusFromCode(api.DecodeI32(res[0]))
	if !st.OK() {
		return p.fail(ctx, fmt.Errorf("plugin failed to link %s", src.Name()))
	}
	return st
}

func (p *Plugin) TargetTriple(m *backend.Module) string {
	h, err := backend.Borrow[handle](m, Name)
	if err != nil {
		return ""
	}

	ctx := context.Background()
	triple, err := p.readInto(ctx, func(buf, capacity uint32) (uint32, error) {
		res, err := p.fns[exportTargetTriple].Call(ctx, api.EncodeU32(uint32(h)), api.EncodeU32(buf), api.EncodeU32(capacity))
		if err != nil {
			return 0, err
		}
		return api.DecodeU32(res[0]), nil
	})
	if err != nil {
		Logger().Debug("target triple unavailable", zap.String("module", m.Name()), zap.Error(err))
		return ""
	}
	return triple
}

func (p *Plugin) RunLTOCodegen(ctx context.Context, program, runtime, stdlib *backend.Module, cfg backend.Config) backend.Status {
	p.lastErr = nil

	var hs [3]handle
	for i, m := range []*backend.Module{program, runtime, stdlib} {
		h, err := backend.Borrow[handle](m, Name)
		if err != nil {
			p.lastErr = err
			return backend.StatusFailed
		}
		hs[i] = h
	}

	out, err := guestPath(p.root, cfg.OutputPath)
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}

	rec := cfg.Record()
	var ptrs []uint32
	defer func() {
		for _, ptr := range ptrs {
			p.free(ctx, ptr)
		}
	}()

	var s guestStrings
	s.filePtr, s.fileLen, err = p.writeString(ctx, out)
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}
	ptrs = append(ptrs, s.filePtr)

	s.triplePtr, s.tripleLen, err = p.writeString(ctx, rec.TargetTriple)
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}
	ptrs = append(ptrs, s.triplePtr)

	recPtr, err := p.write(ctx, encodeRecord(rec, s))
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}
	ptrs = append(ptrs, recPtr)

	Logger().Debug("running plugin codegen",
		zap.String("output", out),
		zap.String("triple", rec.TargetTriple),
		zap.Int32("opt_level", rec.OptLevel),
	)

	res, err := p.fns[exportCodegen].Call(ctx,
		api.EncodeU32(uint32(hs[0])),
		api.EncodeU32(uint32(hs[1])),
		api.EncodeU32(uint32(hs[2])),
		api.EncodeU32(recPtr),
	)
	if err != nil {
		p.lastErr = err
		return backend.StatusFailed
	}
	st := backend.StatusFromCode(api.DecodeI32(res[0]))
	if !st.OK() {
		return p.fail(ctx, fmt.Errorf("plugin codegen returned %d", api.DecodeI32(res[0])))
	}
	return st
}

func (p *Plugin) DisposeModule(m *backend.Module) {
	payload, ok := backend.Release(m)
	if !ok {
		return
	}
	h, ok := payload.(handle)
	if !ok {
		return
	}
	if _, err := p.fns[exportDisposeModule].Call(context.Background(), api.EncodeU32(uint32(h))); err != nil {
		Logger().Warn("plugin failed to dispose module", zap.String("module", m.Name()), zap.Error(err))
	}
}

func (p *Plugin) alloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := p.fns[exportAlloc].Call(ctx, api.EncodeU32(size))
	if err != nil {
		return 0, fmt.Errorf("lto_alloc: %w", err)
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("lto_alloc: out of memory allocating %d bytes", size)
	}
	return ptr, nil
}

func (p *Plugin) free(ctx context.Context, ptr uint32) {
	if ptr == 0 {
		return
	}
	if _, err := p.fns[exportFree].Call(ctx, api.EncodeU32(ptr)); err != nil {
		Logger().Warn("lto_free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

// write copies data into freshly allocated guest memory.
func (p *Plugin) write(ctx context.Context, data []byte) (uint32, error) {
	ptr, err := p.alloc(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if !p.mem.Write(ptr, data) {
		p.free(ctx, ptr)
		return 0, fmt.Errorf("write %d bytes at %#x: out of range", len(data), ptr)
	}
	return ptr, nil
}

func (p *Plugin) writeString(ctx context.Context, s string) (uint32, uint32, error) {
	ptr, err := p.write(ctx, []byte(s))
	if err != nil {
		return 0, 0, err
	}
	return ptr, uint32(len(s)), nil
}

// readInto calls fill with a guest buffer and returns the string it wrote.
// fill returns the full length; a longer result is retried once with a
// buffer of that size.
func (p *Plugin) readInto(ctx context.Context, fill func(buf, capacity uint32) (uint32, error)) (string, error) {
	capacity := uint32(256)
	for attempt := 0; attempt < 2; attempt++ {
		buf, err := p.alloc(ctx, capacity)
		if err != nil {
			return "", err
		}
		n, err := fill(buf, capacity)
		if err != nil {
			p.free(ctx, buf)
			return "", err
		}
		if n <= capacity {
			data, ok := p.mem.Read(buf, n)
			out := string(data)
			p.free(ctx, buf)
			if !ok {
				return "", fmt.Errorf("read %d bytes at %#x: out of range", n, buf)
			}
			return out, nil
		}
		p.free(ctx, buf)
		capacity = n
	}
	return "", fmt.Errorf("guest string keeps growing")
}
