// Package codegen derives the codegen configuration from build settings and
// invokes the backend's whole-program codegen.
package codegen

import (
	"fmt"
	"slices"

	"github.com/wippyai/ltolink/backend"
	"github.com/wippyai/ltolink/errors"
	"github.com/wippyai/ltolink/target"
)

// Settings is the slice of the build configuration codegen depends on.
type Settings struct {
	Produce       target.OutputKind
	Target        target.Platform
	Host          target.Platform
	Optimize      bool
	DebugInfo     bool
	ProfilePhases bool
}

// Validate checks that Produce and Target are known values. Host may be
// empty when the driver runs on an unsupported host.
func (s Settings) Validate() error {
	// Exact match; callers normalize with target.ParseOutputKind.
	if !slices.Contains(target.OutputKinds(), s.Produce) {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid output kind %q", string(s.Produce)).
			Build()
	}
	if !s.Target.Valid() {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid target %q", string(s.Target)).
			Build()
	}
	if s.Host != "" && !s.Host.Valid() {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid host %q", string(s.Host)).
			Build()
	}
	return nil
}

func (s Settings) String() string {
	return fmt.Sprintf("produce=%s target=%s host=%s optimize=%t debug=%t profile=%t",
		s.Produce, s.Target, s.Host, s.Optimize, s.DebugInfo, s.ProfilePhases)
}

// BuildConfig derives the codegen configuration for s. It is a pure function
// of s. TargetTriple defaults to the target's triple and OutputPath is left
// empty; the Invoker fills in both.
func BuildConfig(s Settings) backend.Config {
	return backend.Config{
		TargetTriple:      s.Target.Triple(),
		OptLevel:          optLevel(s),
		SizeLevel:         sizeLevel(s),
		OutputKind:        backend.OutputObjectFile,
		RelocMode:         relocMode(s),
		PerformLTO:        s.Optimize,
		PreserveDebugInfo: s.DebugInfo,
		Profile:           s.ProfilePhases,
		CompilingForHost:  s.Host != "" && s.Target == s.Host,
	}
}

func optLevel(s Settings) int {
	switch {
	case s.Optimize:
		return 3
	case s.DebugInfo:
		return 0
	default:
		return 1
	}
}

func sizeLevel(s Settings) int {
	if s.Target.FavorsSize() {
		return 1
	}
	return 0
}

func relocMode(s Settings) backend.RelocMode {
	if s.Produce.Standalone() {
		return backend.RelocStatic
	}
	return backend.RelocPIC
}
