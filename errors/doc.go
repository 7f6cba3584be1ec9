// Package errors provides the structured error taxonomy for the executor.
//
// Errors are categorized by Phase (where in the module lifecycle the error
// occurred) and Kind (error class). Four classes matter to callers:
//
//   - invalid_bytecode / instantiation: fatal for the module or instance,
//     surfaced to the caller, never retried here
//   - method_not_found: per-call, recoverable (guest API mismatch)
//   - trap: a contained guest fault; the instance needs a reset or disposal
//   - out_of_memory: the heap strategy's ceiling was exceeded; distinct from
//     trap because consensus logic charges and rejects deterministically
//
// Use the convenience constructors and predicates:
//
//	err := errors.MethodNotFound("Core_version")
//	if errors.IsOutOfMemory(err) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
