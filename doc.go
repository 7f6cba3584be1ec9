// Package polkadotsdk hosts a blockchain node's state-transition logic as
// sandboxed wasm and executes it through pluggable execution engines.
//
// # Architecture Overview
//
// The repository is organized into packages with distinct responsibilities:
//
//	polkadot-sdk/        Root package with the shared Memory interface
//	├── executor/        Engine-agnostic module/instance contract, heap
//	│                    allocation strategies, call contexts, engine registry
//	├── allocator/       Host-side freeing-bump heap allocator with
//	│                    allocation accounting
//	├── engine/wazero/   Pure-Go backend (compiler and interpreter variants)
//	├── engine/wasmtime/ Cranelift JIT backend
//	├── wasm/            Core wasm binary inspection and assembly
//	├── config/          Node-facing executor configuration
//	├── errors/          Structured error taxonomy
//	└── cmd/execwasm/    CLI for invoking guest exports
//
// # Quick Start
//
//	ctx := context.Background()
//	mod, err := executor.NewModule(ctx, "wazero", code, executor.ModuleConfig{
//	    Heap: executor.DefaultHeapAllocStrategy(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close(ctx)
//
//	inst, err := mod.NewInstance(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Call(ctx, "Core_execute_block", input, executor.Onchain)
//
// # Execution model
//
// A Module is compiled once and shared; each concurrent execution slot owns
// its own Instance. Every call resets the instance to its post-instantiation
// baseline before dispatching, so no guest state leaks between calls. Guest
// faults are contained: they surface as trap-class errors and never escape
// the sandbox boundary.
//
// # Thread Safety
//
// Module is safe for concurrent use; NewInstance may be called from many
// goroutines. Instance is NOT thread-safe: it executes at most one call at
// a time and must be owned by a single caller for the call's duration.
package polkadotsdk
