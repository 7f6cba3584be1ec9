package executor

import (
	"context"

	"go.uber.org/zap"
)

// CallContext marks one guest invocation as consensus-critical or auxiliary.
// The caller selects it once per call; it cannot change mid-call.
type CallContext uint8

const (
	// Onchain execution is bounded, deterministic and metered.
	Onchain CallContext = iota
	// Offchain execution may use the strategy's offchain override and
	// relaxed limits.
	Offchain
)

func (c CallContext) String() string {
	if c == Offchain {
		return "offchain"
	}
	return "onchain"
}

// AllocationStats is an immutable snapshot of a completed call's guest heap
// accounting. It is sampled once after the call returns and is only
// produced by backends that track it.
type AllocationStats struct {
	// BytesAllocated is the amount still allocated when the call ended.
	BytesAllocated uint64
	// BytesAllocatedPeak is the high-water mark over the call.
	BytesAllocatedPeak uint64
	// AddressSpaceUsed is how far the heap region was consumed, in bytes.
	AddressSpaceUsed uint64
}

// InstanceState is the lifecycle position of an Instance.
type InstanceState uint8

const (
	// StateInstantiated is a freshly created instance at its baseline.
	StateInstantiated InstanceState = iota
	// StateExecuting is an instance currently inside a call.
	StateExecuting
	// StateFaulted is an instance whose last call trapped; it must be reset
	// or discarded before reuse, per the module's FaultPolicy.
	StateFaulted
	// StateReset is an instance that returned normally and stands at (or
	// pending restoration to) its baseline; immediately callable again.
	StateReset
)

func (s InstanceState) String() string {
	switch s {
	case StateInstantiated:
		return "instantiated"
	case StateExecuting:
		return "executing"
	case StateFaulted:
		return "faulted"
	default:
		return "reset"
	}
}

// FaultPolicy decides what an engine permits after a trap.
type FaultPolicy uint8

const (
	// FaultReset allows an explicit Reset to restore the full guest-visible
	// baseline of a faulted instance, after which it may be reused.
	FaultReset FaultPolicy = iota
	// FaultDispose forbids reuse: a faulted instance can only be closed.
	FaultDispose
)

// Module is a compiled, shareable representation of guest bytecode bound to
// a HeapAllocStrategy. It is immutable after creation and safe to use from
// many goroutines, each creating independent instances.
type Module interface {
	// NewInstance creates an independent execution handle. It fails with a
	// compile/instantiation-class error when the engine cannot reserve the
	// page budget implied by the module's heap strategy.
	NewInstance(ctx context.Context) (*Instance, error)
	// Close releases the compiled module. Instances must be closed first.
	Close(ctx context.Context) error
}

// InstanceBackend is the engine-facing half of the instance contract.
// Engine backends implement only the canonical call operation; the
// convenience entry points live on Instance so they cannot drift.
type InstanceBackend interface {
	// CallWithAllocationStats resets the instance to its post-instantiation
	// baseline, dispatches to the named guest export with data copied into
	// guest memory, and returns the guest's output copied back out. Stats
	// are sampled once after completion, nil when untracked and on a
	// missing export.
	CallWithAllocationStats(ctx context.Context, method string, data []byte, callCtx CallContext) ([]byte, *AllocationStats, error)
	// Reset restores the exact post-instantiation baseline, including after
	// a fault when the module's FaultPolicy permits it.
	Reset(ctx context.Context) error
	// Close destroys the instance and its linear memory.
	Close(ctx context.Context) error
	// State reports the instance's lifecycle position.
	State() InstanceState
}

// Instance is a single execution handle bound to one instantiated module.
// It processes at most one call at a time and is exclusively owned by one
// caller for the duration of a call.
type Instance struct {
	backend InstanceBackend
}

// NewInstance wraps an engine backend in the canonical instance surface.
func NewInstance(backend InstanceBackend) *Instance {
	return &Instance{backend: backend}
}

// CallWithAllocationStats invokes a guest export. See InstanceBackend.
func (i *Instance) CallWithAllocationStats(ctx context.Context, method string, data []byte, callCtx CallContext) ([]byte, *AllocationStats, error) {
	return i.backend.CallWithAllocationStats(ctx, method, data, callCtx)
}

// Call invokes a guest export, discarding allocation stats. It is built
// strictly on CallWithAllocationStats and never diverges from it.
func (i *Instance) Call(ctx context.Context, method string, data []byte, callCtx CallContext) ([]byte, error) {
	out, _, err := i.backend.CallWithAllocationStats(ctx, method, data, callCtx)
	return out, err
}

// CallExport invokes a guest-exported entry point. Alias for Call.
func (i *Instance) CallExport(ctx context.Context, method string, data []byte, callCtx CallContext) ([]byte, error) {
	return i.Call(ctx, method, data, callCtx)
}

// Reset restores the instance to its exact post-instantiation baseline.
func (i *Instance) Reset(ctx context.Context) error {
	return i.backend.Reset(ctx)
}

// Close destroys the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.backend.Close(ctx)
}

// State reports the instance's lifecycle position.
func (i *Instance) State() InstanceState {
	return i.backend.State()
}

// ModuleConfig carries everything a backend needs besides the bytecode.
type ModuleConfig struct {
	// Heap bounds the guest's linear memory. The zero value is NOT the
	// operator default; use DefaultHeapAllocStrategy explicitly.
	Heap HeapAllocStrategy
	// OnFault selects the engine's behavior for faulted instances.
	OnFault FaultPolicy
	// Logger receives per-call debug records. Nil means no logging.
	Logger *zap.Logger
}

// NormalizedLogger returns the configured logger or a nop one.
func (c ModuleConfig) NormalizedLogger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
