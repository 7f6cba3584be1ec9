package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	polkadotsdk "github.com/gpestana/polkadot-sdk"
	"github.com/gpestana/polkadot-sdk/allocator"
	"github.com/gpestana/polkadot-sdk/errors"
	"github.com/gpestana/polkadot-sdk/executor"
)

// entrypointParams and entrypointResults are the required shape of a guest
// entry point: (ptr i32, len i32) -> packed i64.
var (
	entrypointParams  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	entrypointResults = []api.ValueType{api.ValueTypeI64}
)

// Instance is one execution handle over an instantiated wazero module.
// Callers own it exclusively for the duration of a call.
//
// Reset is lazy: a completed or reset call marks the instance dirty and the
// next call re-instantiates from the compiled module, which restores
// memory, globals and tables to the exact post-instantiation baseline.
type Instance struct {
	parent *Module
	mod    api.Module
	state  executor.InstanceState
	dirty  bool
}

func (i *Instance) State() executor.InstanceState {
	return i.state
}

func (i *Instance) CallWithAllocationStats(ctx context.Context, method string, data []byte, callCtx executor.CallContext) ([]byte, *executor.AllocationStats, error) {
	if i.state == executor.StateFaulted {
		return nil, nil, errors.Faulted(method)
	}
	if err := i.ensureBaseline(ctx); err != nil {
		return nil, nil, err
	}

	fn := i.mod.ExportedFunction(method)
	if fn == nil || !isEntrypoint(fn.Definition()) {
		return nil, nil, errors.MethodNotFound(method)
	}
	if !i.parent.info.HasMemory {
		return nil, nil, errors.TrapDetail(method, "module declares no linear memory")
	}

	i.state = executor.StateExecuting
	i.dirty = true

	out, stats, err := i.dispatch(ctx, fn, method, data, callCtx)
	if err != nil {
		i.state = executor.StateFaulted
		return nil, nil, err
	}
	i.state = executor.StateReset
	return out, stats, nil
}

func (i *Instance) dispatch(ctx context.Context, fn api.Function, method string, data []byte, callCtx executor.CallContext) (out []byte, stats *executor.AllocationStats, err error) {
	// Nothing unwinds across the sandbox boundary.
	defer func() {
		if r := recover(); r != nil {
			out, stats, err = nil, nil, errors.TrapDetail(method, "panic during guest call: %v", r)
		}
	}()
	mem := &guestMemory{mem: i.mod.Memory()}
	heap := allocator.New(i.heapBase(), i.ceiling(callCtx), i.maxAllocation(callCtx))

	inPtr, err := heap.Allocate(mem, uint32(len(data)))
	if err != nil {
		return nil, nil, err
	}
	if err := mem.Write(inPtr, data); err != nil {
		return nil, nil, errors.TrapDetail(method, "write call input: %v", err)
	}

	results, err := fn.Call(ctx, uint64(inPtr), uint64(len(data)))
	if err != nil {
		return nil, nil, errors.Trap(method, err)
	}

	packed := results[0]
	outPtr := uint32(packed)
	outLen := uint32(packed >> 32)
	view, err := mem.Read(outPtr, outLen)
	if err != nil {
		return nil, nil, errors.TrapDetail(method, "result %d+%d is outside guest memory", outPtr, outLen)
	}
	out = make([]byte, outLen)
	copy(out, view)

	snap := heap.Stats()
	i.parent.logger.Debug("guest call completed",
		zap.String("method", method),
		zap.Stringer("context", callCtx),
		zap.Int("input_bytes", len(data)),
		zap.Uint32("output_bytes", outLen),
		zap.Uint64("heap_peak_bytes", snap.BytesAllocatedPeak),
	)
	return out, &snap, nil
}

// Reset restores the post-instantiation baseline. On a faulted instance it
// is only permitted under FaultReset.
func (i *Instance) Reset(ctx context.Context) error {
	if i.state == executor.StateFaulted && i.parent.cfg.OnFault == executor.FaultDispose {
		return errors.Faulted("")
	}
	i.dirty = true
	i.state = executor.StateReset
	return nil
}

func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

// ensureBaseline re-instantiates after a previous call or reset so the
// guest sees a pristine memory and globals.
func (i *Instance) ensureBaseline(ctx context.Context) error {
	if !i.dirty {
		return nil
	}
	fresh, err := i.parent.instantiate(ctx)
	if err != nil {
		return err
	}
	_ = i.mod.Close(ctx)
	i.mod = fresh
	i.dirty = false
	return nil
}

// heapBase is where the host-managed heap starts: the guest's __heap_base
// global when exported, otherwise the end of the declared initial memory.
func (i *Instance) heapBase() uint32 {
	if g := i.mod.ExportedGlobal("__heap_base"); g != nil {
		return uint32(g.Get())
	}
	return i.parent.info.InitialPages * polkadotsdk.PageSize
}

func (i *Instance) ceiling(callCtx executor.CallContext) uint64 {
	return i.parent.cfg.Heap.ByteCeiling(i.parent.info.InitialPages, callCtx)
}

func (i *Instance) maxAllocation(callCtx executor.CallContext) uint32 {
	if callCtx == executor.Offchain {
		return i.parent.cfg.Heap.OffchainMaxAllocation()
	}
	return 0
}

func isEntrypoint(def api.FunctionDefinition) bool {
	return typesEqual(def.ParamTypes(), entrypointParams) &&
		typesEqual(def.ResultTypes(), entrypointResults)
}

func typesEqual(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
