// Package lto drives the link-time-optimization stage of a compilation.
//
// A Driver resolves the standard library among the link set, loads its
// program-entry module, merges every other input into the program module
// under the BITCODE_LINKER phase and runs whole-program codegen under the
// LLVM_CODEGEN phase.
//
// # States
//
// Every Run walks
//
//	Unlinked -> Linking -> Linked -> CodeGenerating -> Succeeded
//
// and may end in Failed from Linking or CodeGenerating. Result.History
// records every state visited.
//
// # Failure Policy
//
// Configuration errors (no unique standard library, no entry blob) are
// returned before any linking starts. Link errors are returned immediately
// and leave the program module unusable. A codegen failure is logged and
// reported in Result.CodegenErr without an error return, unless the Driver
// was created with WithStrictCodegen(true).
package lto
