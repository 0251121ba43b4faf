// Package ltolink is the link-time optimization stage of a compiler
// pipeline: it merges a program's bitcode with its libraries and hands the
// whole program to a backend for optimization and object code generation.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	ltolink/             Root package, documentation only
//	├── lto/             Driver running both phases and tracking run state
//	├── library/         Library descriptors and standard library resolution
//	├── linker/          Link order and sequential bitcode merging
//	├── codegen/         Codegen configuration and backend invocation
//	├── backend/         Backend capability, module handles, codegen config
//	│   ├── llvmir/      Backend over LLVM IR text and the llc/opt tools
//	│   └── wasmplugin/  Backend implemented by a sandboxed WebAssembly plugin
//	├── phase/           Named, timed, optionally disabled phases
//	├── target/          Target platforms and output kinds
//	├── tempfiles/       Temporary artifact allocation
//	├── errors/          Structured error types for debugging
//	└── cmd/ltolink/     Command line driver reading ltolink.toml
//
// # Quick Start
//
// Link a program against its libraries and generate an object file:
//
//	b := llvmir.New(llvmir.DefaultTools())
//	program, _ := b.LoadModule(ctx, "build/program.ll")
//	runtime, _ := b.LoadModule(ctx, "build/runtime.ll")
//
//	d := lto.New(b)
//	defer d.Close()
//
//	res, err := d.Run(ctx, lto.Input{
//	    Program:   program,
//	    Runtime:   runtime,
//	    Libraries: []library.Descriptor{
//	        library.New("stdlib", "lib/stdlib/program.kt.bc"),
//	        library.New("mylib", "lib/mylib.bc"),
//	    },
//	    Settings: codegen.Settings{
//	        Produce:  target.OutputProgram,
//	        Target:   target.LinuxX64,
//	        Host:     target.Host(),
//	        Optimize: true,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err) // configuration or link error
//	}
//	if !res.OK() {
//	    log.Print(res.CodegenErr) // codegen failed, no object
//	}
//
// # Failure Policy
//
// Configuration and link errors abort the run and are returned. A codegen
// failure leaves the run in the Failed state with no object file and is only
// returned as an error under lto.WithStrictCodegen.
//
// # Thread Safety
//
// A Driver, a Backend and the module handles it issues are NOT thread-safe.
// Independent compilations should use independent backends.
package ltolink
