// Package linker merges IR modules into the program module ahead of
// whole-program codegen.
//
// # Link Order
//
//  1. Native-interop libraries requested by the build
//  2. Blobs of every non-stdlib library, in library order
//
// Each input is loaded and then merged into the program module; later merges
// see the effect of earlier ones.
//
// # Failure
//
// The first load or merge failure aborts the link with an error naming the
// input. Later inputs are never loaded. The program module may then be
// partially merged and must not be used further.
//
// # Example
//
//	l := linker.New(b)
//	err := l.Link(ctx, program, linker.Inputs(native, res.LinkInputs))
package linker
