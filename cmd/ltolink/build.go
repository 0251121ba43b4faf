package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/backend/llvmir"
	"github.com/wippyai/ltolink/backend/wasmplugin"
	"github.com/wippyai/ltolink/errors"
	"github.com/wippyai/ltolink/lto"
	"github.com/wippyai/ltolink/phase"
	"github.com/wippyai/ltolink/tempfiles"
)

// buildReport is what a link run hands back to the display.
type buildReport struct {
	Result  *lto.Result
	Timings []phase.Timing
	Output  string
}

// openBackend creates the backend selected by the manifest. The returned
// close function releases it.
func openBackend(ctx context.Context, m *Manifest) (backend.Backend, func() error, error) {
	switch m.Backend.Kind {
	case BackendWasmPlugin:
		p, err := wasmplugin.LoadFile(ctx, m.Path(m.Backend.Plugin), wasmplugin.Config{
			Root:   m.Path(m.Backend.PluginRoot),
			Stdout: os.Stderr,
			Stderr: os.Stderr,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { return p.Close(ctx) }, nil
	default:
		return llvmir.New(m.Tools()), func() error { return nil }, nil
	}
}

// link runs the whole LTO stage described by m. listeners observe the two
// phases.
func link(ctx context.Context, m *Manifest, listeners ...phase.Listener) (report *buildReport, err error) {
	settings, err := m.Settings()
	if err != nil {
		return nil, err
	}
	disabled, err := m.Phases()
	if err != nil {
		return nil, err
	}

	b, closeBackend, err := openBackend(ctx, m)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, closeBackend()) }()

	program, err := b.LoadModule(ctx, m.Path(m.Program.Module))
	if err != nil {
		return nil, err
	}
	defer b.DisposeModule(program)

	runtime, err := b.LoadModule(ctx, m.Path(m.Program.Runtime))
	if err != nil {
		return nil, err
	}
	defer b.DisposeModule(runtime)

	opts := []phase.Option{
		phase.WithProfile(settings.ProfilePhases),
		phase.WithDisabled(disabled...),
	}
	for _, l := range listeners {
		opts = append(opts, phase.WithListener(l))
	}
	phases := phase.New(opts...)

	temps := &tempfiles.Dir{Parent: m.Path(m.Build.TempDir), KeepFiles: m.Build.KeepTemps}
	defer func() { err = multierr.Append(err, temps.Dispose()) }()

	driver := lto.New(b,
		lto.WithPhases(phases),
		lto.WithTempFiles(temps),
		lto.WithStrictCodegen(m.Build.StrictCodegen),
	)

	res, err := driver.Run(ctx, lto.Input{
		Program:         program,
		Runtime:         runtime,
		Libraries:       m.Descriptors(),
		NativeLibraries: m.NativeLibraries(),
		Settings:        settings,
	})
	report = &buildReport{Result: res, Timings: phases.Timings()}
	if err != nil {
		return report, err
	}

	if res.OK() {
		out := m.Path(m.Build.Output)
		if err := copyFile(res.ObjectPath, out); err != nil {
			return report, errors.Wrap(errors.PhaseCodegen, errors.KindCodegenFailed, err, "copy object to "+out)
		}
		report.Output = out
	}
	return report, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
