// Package wasmtime backs the executor contract with the wasmtime runtime
// through Cranelift, with NaN canonicalization enabled so floating point
// results stay deterministic across hosts.
//
// Importing it registers the "wasmtime" engine. Unlike the wazero backend
// it requires the guest to export its linear memory, since wasmtime gives
// the host no view of unexported memories.
package wasmtime
