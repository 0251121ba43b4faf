// Package errors provides structured error types for the LTO driver.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending input path, the library it belongs to,
// a human-readable detail and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLinking, errors.KindMergeFailed).
//		Path("build/mylib.bc").
//		Detail("backend reported failure").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MergeFailed("build/mylib.bc", 2, nil)
//	err := errors.StdlibAmbiguous("stdlib", 2)
//
// Three classes matter to callers of the driver:
//
//   - Configuration errors (PhaseResolve): the standard library or its entry
//     blob cannot be identified. Fatal, raised before linking.
//   - Link errors (PhaseLinking): a load or merge of a link input failed.
//     Fatal, names the failing input.
//   - Codegen failures (PhaseCodegen): the backend failed to produce the
//     object file. Reported; whether it is fatal is the caller's decision.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
