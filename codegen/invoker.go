package codegen

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/errors"
	"github.com/wippyai/ltolink/tempfiles"
)

// Outcome is the result of one codegen invocation.
type Outcome struct {
	// Err is the codegen failure, nil on success.
	Err error
	// ObjectPath is where the object was requested. It only holds a valid
	// object when Err is nil.
	ObjectPath string
	// Config is the configuration the backend was called with.
	Config backend.Config
}

// OK reports whether codegen produced the object file.
func (o *Outcome) OK() bool {
	return o.Err == nil
}

// Invoker runs whole-program codegen through a backend.
type Invoker struct {
	backend backend.Backend
	temps   tempfiles.Allocator
}

// NewInvoker creates an Invoker allocating the object path from temps.
func NewInvoker(b backend.Backend, temps tempfiles.Allocator) *Invoker {
	return &Invoker{backend: b, temps: temps}
}

// Invoke calls the backend's codegen exactly once. The target triple is taken
// from runtime; if runtime records none, cfg.TargetTriple is kept.
//
// A failure is logged and returned in Outcome.Err; Invoke itself never
// aborts the caller.
func (inv *Invoker) Invoke(ctx context.Context, program, runtime, stdlib *backend.Module, cfg backend.Config) *Outcome {
	log := Logger()

	if triple := inv.backend.TargetTriple(runtime); triple != "" {
		cfg = cfg.WithTargetTriple(triple)
	}

	out, err := inv.temps.Create("merged", ".o")
	if err != nil {
		cerr := errors.CodegenFailed("", err)
		log.Error("codegen failed", zap.Error(cerr))
		return &Outcome{Err: cerr, Config: cfg}
	}
	cfg = cfg.WithOutputPath(out)

	log.Debug("running LTO codegen",
		zap.String("triple", cfg.TargetTriple),
		zap.String("output", out),
		zap.Int("opt_level", cfg.OptLevel),
		zap.Int("size_level", cfg.SizeLevel),
		zap.Stringer("reloc", cfg.RelocMode),
	)

	if st := inv.backend.RunLTOCodegen(ctx, program, runtime, stdlib, cfg); !st.OK() {
		cerr := errors.CodegenFailed(out, backend.LastError(inv.backend))
		log.Error("codegen failed", zap.String("output", out), zap.Error(cerr))
		discard(out)
		return &Outcome{Err: cerr, ObjectPath: out, Config: cfg}
	}

	if err := checkObject(out); err != nil {
		cerr := errors.CodegenFailed(out, err)
		log.Error("codegen failed", zap.String("output", out), zap.Error(cerr))
		discard(out)
		return &Outcome{Err: cerr, ObjectPath: out, Config: cfg}
	}

	return &Outcome{ObjectPath: out, Config: cfg}
}

func checkObject(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return fmt.Errorf("backend reported success but %s is empty", path)
	}
	return nil
}

// discard removes a partial or empty object so a failed codegen leaves no
// file behind.
func discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		Logger().Warn("failed to remove partial object", zap.String("output", path), zap.Error(err))
	}
}
