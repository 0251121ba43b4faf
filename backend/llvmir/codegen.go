package llvmir

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"go.uber.org/zap"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/errors"
)

// invocation is the tool command lines derived from a backend.Config.
type invocation struct {
	opt []string // nil when opt does not run
	llc []string
}

// toolArgs converts cfg into opt and llc flags. Input and output paths are
// appended by the caller.
func toolArgs(cfg backend.Config, withOpt bool) invocation {
	var inv invocation

	if withOpt {
		var passes []string
		if !cfg.PreserveDebugInfo {
			passes = append(passes, "strip-debug")
		}
		if cfg.PerformLTO {
			level := "O" + strconv.Itoa(cfg.OptLevel)
			if cfg.SizeLevel > 0 {
				level = "Os"
			}
			passes = append(passes, "default<"+level+">")
		}
		if len(passes) > 0 {
			inv.opt = []string{"-S", "-passes=" + strings.Join(passes, ",")}
		}
	}

	inv.llc = []string{"-O" + strconv.Itoa(clamp(cfg.OptLevel, 0, 3))}
	if cfg.TargetTriple != "" {
		inv.llc = append(inv.llc, "-mtriple="+cfg.TargetTriple)
	}
	switch cfg.RelocMode {
	case backend.RelocStatic:
		inv.llc = append(inv.llc, "-relocation-model=static")
	case backend.RelocPIC:
		inv.llc = append(inv.llc, "-relocation-model=pic")
	}
	if cfg.OutputKind == backend.OutputAssemblyFile {
		inv.llc = append(inv.llc, "-filetype=asm")
	} else {
		inv.llc = append(inv.llc, "-filetype=obj")
	}
	if cfg.CompilingForHost {
		inv.llc = append(inv.llc, "-mcpu=native")
	}
	if cfg.Profile {
		inv.llc = append(inv.llc, "-time-passes")
	}
	return inv
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (b *Backend) RunLTOCodegen(ctx context.Context, program, runtime, stdlib *backend.Module, cfg backend.Config) backend.Status {
	b.lastErr = nil
	if err := b.codegen(ctx, program, runtime, stdlib, cfg); err != nil {
		b.lastErr = err
		return backend.StatusFailed
	}
	return backend.StatusOK
}

func (b *Backend) codegen(ctx context.Context, program, runtime, stdlib *backend.Module, cfg backend.Config) error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("no output path")
	}
	if b.tools.LLC == "" {
		return fmt.Errorf("llc is not configured")
	}

	merged, err := b.wholeProgram(program, runtime, stdlib)
	if err != nil {
		return err
	}
	if cfg.TargetTriple != "" {
		merged.TargetTriple = cfg.TargetTriple
	}

	log := Logger()
	inv := toolArgs(cfg, b.tools.Opt != "")

	input := cfg.OutputPath + ".ll"
	if err := os.WriteFile(input, []byte(merged.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", input, err)
	}
	intermediates := []string{input}
	defer func() {
		if b.tools.KeepIntermediate {
			return
		}
		for _, p := range intermediates {
			_ = os.Remove(p)
		}
	}()

	if inv.opt != nil {
		optimized := cfg.OutputPath + ".opt.ll"
		intermediates = append(intermediates, optimized)
		args := append(inv.opt, "-o", optimized, input)
		if _, err := run(ctx, b.tools.Opt, args); err != nil {
			return err
		}
		input = optimized
	}

	args := append(inv.llc, "-o", cfg.OutputPath, input)
	stderr, err := run(ctx, b.tools.LLC, args)
	if err != nil {
		return err
	}
	if cfg.Profile && stderr != "" {
		log.Info("llc pass timings", zap.String("output", cfg.OutputPath), zap.String("report", stderr))
	}
	return nil
}

// wholeProgram merges copies of runtime and stdlib into a copy of program.
// The handles themselves are left untouched.
func (b *Backend) wholeProgram(program, runtime, stdlib *backend.Module) (*ir.Module, error) {
	merged, err := clone(program)
	if err != nil {
		return nil, err
	}
	for _, m := range []*backend.Module{runtime, stdlib} {
		c, err := clone(m)
		if err != nil {
			return nil, err
		}
		if err := Merge(merged, c); err != nil {
			return nil, fmt.Errorf("link %s: %w", m.Name(), err)
		}
	}
	return merged, nil
}

func clone(m *backend.Module) (*ir.Module, error) {
	u, err := backend.Borrow[*unit](m, Name)
	if err != nil {
		return nil, err
	}
	c, err := asm.ParseBytes(u.path, []byte(u.mod.String()))
	if err != nil {
		return nil, fmt.Errorf("reparse %s: %w", u.path, err)
	}
	return c, nil
}

func (b *Backend) disassemble(ctx context.Context, path string) ([]byte, error) {
	if b.tools.LLVMDis == "" {
		return nil, fmt.Errorf("%s is bitcode and llvm-dis is not configured", path)
	}

	cmd := exec.CommandContext(ctx, b.tools.LLVMDis, "-o", "-", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, toolError(errors.PhaseLoad, b.tools.LLVMDis, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// run executes a tool and returns its stderr.
func run(ctx context.Context, tool string, args []string) (string, error) {
	Logger().Debug("running tool", zap.String("tool", tool), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", toolError(errors.PhaseCodegen, tool, err, stderr.String())
	}
	return stderr.String(), nil
}

// toolError reports a failed tool run with its trimmed stderr as detail.
func toolError(phase errors.Phase, tool string, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = tool + " failed"
	}
	return errors.New(phase, errors.KindToolFailed).
		Path(tool).
		Detail("%s", detail).
		Cause(err).
		Build()
}
