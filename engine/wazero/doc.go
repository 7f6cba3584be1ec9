// Package wazero backs the executor contract with the wazero runtime.
//
// Importing it registers two engines: "wazero" (ahead-of-time compiler)
// and "wazero-interpreter". Both enforce the module's heap strategy through
// wazero's runtime-level page limit plus the host-side allocator's per-call
// byte ceiling, and restore the guest baseline by re-instantiating the
// compiled module between calls.
package wazero
