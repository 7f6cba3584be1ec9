// Package executor defines the engine-agnostic contract between the node
// and a pluggable sandboxed wasm execution engine.
//
// A Module is guest bytecode compiled once under a HeapAllocStrategy and
// shared across threads; Instances are per-execution-slot handles exposing
// the call protocol. Every call resets the instance to its
// post-instantiation baseline first, so call N+1 can never observe state
// mutated by call N except through externally persisted storage.
//
// Engine backends (interpreter or JIT) register ModuleFactory values by
// name and implement exactly the Module/InstanceBackend capability sets;
// they are variants behind the same two interfaces, not a hierarchy.
//
// Input and output cross the sandbox boundary as opaque byte buffers with
// copy-in/copy-out semantics; the payload encoding belongs to the
// surrounding runtime protocol.
package executor
