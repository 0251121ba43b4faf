package linker

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/errors"
)

// Linker merges link inputs into a program module through a backend.
// Not safe for concurrent use.
type Linker struct {
	backend backend.Backend
}

// New creates a Linker using b for loading and merging.
func New(b backend.Backend) *Linker {
	return &Linker{backend: b}
}

// Inputs returns the link order: native-interop libraries first, then
// library blobs. Neither argument is modified.
func Inputs(native, libraries []string) []string {
	out := make([]string, 0, len(native)+len(libraries))
	out = append(out, native...)
	out = append(out, libraries...)
	return out
}

// Link loads every input and merges it into program, in order. It stops at
// the first failure and returns an error naming that input.
func (l *Linker) Link(ctx context.Context, program *backend.Module, inputs []string) error {
	if !program.Live() {
		return errors.New(errors.PhaseLinking, errors.KindInvalidHandle).
			Path(program.Name()).
			Detail("program module is not live").
			Build()
	}

	log := Logger().With(zap.String("program", program.Name()))
	log.Debug("linking modules", zap.Int("inputs", len(inputs)))

	for i, input := range inputs {
		mod, err := l.backend.LoadModule(ctx, input)
		if err != nil {
			log.Error("failed to load link input",
				zap.String("input", input),
				zap.Int("index", i),
				zap.Error(err),
			)
			return errors.LoadFailed(errors.PhaseLinking, input, i, err)
		}

		if st := l.backend.MergeModules(ctx, program, mod); !st.OK() {
			cause := backend.LastError(l.backend)
			// MergeModules consumes mod even on failure; dispose in case a
			// backend rejected it before taking ownership.
			l.backend.DisposeModule(mod)
			log.Error("failed to link",
				zap.String("input", input),
				zap.Int("index", i),
				zap.Error(cause),
			)
			return errors.MergeFailed(input, i, cause)
		}

		log.Debug("linked module", zap.String("input", input), zap.Int("index", i))
	}

	return nil
}
