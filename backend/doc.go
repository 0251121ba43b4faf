// Package backend defines the capability surface of an optimization and code
// generation backend, as consumed by the LTO driver.
//
// # Main Types
//
//   - Backend: loads modules, merges them, reports target triples and runs
//     whole-program codegen
//   - Module: an ownership-tagged handle to a backend-owned IR module
//   - Config: the codegen configuration value
//   - Record: the integer-encoded form of Config handed across a foreign
//     calling convention
//   - Status: the typed success/failure result of merges and codegen
//
// # Handle Ownership
//
// A Module is created by LoadModule and belongs to the backend that created
// it. MergeModules consumes the source handle; a consumed or released handle
// cannot be used again. Handles passed to RunLTOCodegen are borrowed.
//
// # Thread Safety
//
// Backends and modules are NOT safe for concurrent use. The driver runs every
// backend call sequentially on the calling goroutine.
package backend
