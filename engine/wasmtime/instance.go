package wasmtime

import (
	"context"

	"github.com/bytecodealliance/wasmtime-go/v14"
	"go.uber.org/zap"

	polkadotsdk "github.com/gpestana/polkadot-sdk"
	"github.com/gpestana/polkadot-sdk/allocator"
	"github.com/gpestana/polkadot-sdk/errors"
	"github.com/gpestana/polkadot-sdk/executor"
)

// Instance is one execution handle over a wasmtime store. Resetting swaps
// in a fresh store and instance, which is how wasmtime restores the exact
// post-instantiation baseline; the swap happens lazily before the next
// call so back-to-back resets stay cheap.
type Instance struct {
	parent *Module
	store  *wasmtime.Store
	inst   *wasmtime.Instance
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
	if err := i.ensureBaseline(); err != nil {
		return nil, nil, err
	}

	fn := i.inst.GetFunc(i.store, method)
	if fn == nil || !isEntrypoint(fn.Type(i.store)) {
		return nil, nil, errors.MethodNotFound(method)
	}
	if i.parent.memExport == "" {
		return nil, nil, errors.TrapDetail(method, "module exports no linear memory")
	}

	i.state = executor.StateExecuting
	i.dirty = true

	out, stats, err := i.dispatch(fn, method, data, callCtx)
	if err != nil {
		i.state = executor.StateFaulted
		return nil, nil, err
	}
	i.state = executor.StateReset
	return out, stats, nil
}

func (i *Instance) dispatch(fn *wasmtime.Func, method string, data []byte, callCtx executor.CallContext) (out []byte, stats *executor.AllocationStats, err error) {
	// Nothing unwinds across the sandbox boundary.
	defer func() {
		if r := recover(); r != nil {
			out, stats, err = nil, nil, errors.TrapDetail(method, "panic during guest call: %v", r)
		}
	}()
	mem := &guestMemory{
		mem:   i.inst.GetExport(i.store, i.parent.memExport).Memory(),
		store: i.store,
	}
	heap := allocator.New(i.heapBase(), i.ceiling(callCtx), i.maxAllocation(callCtx))

	inPtr, err := heap.Allocate(mem, uint32(len(data)))
	if err != nil {
		return nil, nil, err
	}
	if err := mem.Write(inPtr, data); err != nil {
		return nil, nil, errors.TrapDetail(method, "write call input: %v", err)
	}

	res, err := fn.Call(i.store, int32(inPtr), int32(len(data)))
	if err != nil {
		return nil, nil, errors.Trap(method, err)
	}

	packed, ok := res.(int64)
	if !ok {
		return nil, nil, errors.TrapDetail(method, "entry point returned %T, want i64", res)
	}
	outPtr := uint32(uint64(packed))
	outLen := uint32(uint64(packed) >> 32)
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

func (i *Instance) Reset(ctx context.Context) error {
	if i.state == executor.StateFaulted && i.parent.cfg.OnFault == executor.FaultDispose {
		return errors.Faulted("")
	}
	i.dirty = true
	i.state = executor.StateReset
	return nil
}

func (i *Instance) Close(ctx context.Context) error {
	i.inst = nil
	i.store = nil
	return nil
}

func (i *Instance) ensureBaseline() error {
	if !i.dirty {
		return nil
	}
	store, inst, err := i.parent.instantiate()
	if err != nil {
		return err
	}
	i.store = store
	i.inst = inst
	i.dirty = false
	return nil
}

func (i *Instance) heapBase() uint32 {
	if ext := i.inst.GetExport(i.store, "__heap_base"); ext != nil {
		if g := ext.Global(); g != nil {
			v := g.Get(i.store)
			return uint32(v.I32())
		}
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

func isEntrypoint(ft *wasmtime.FuncType) bool {
	params := ft.Params()
	results := ft.Results()
	return len(params) == 2 && len(results) == 1 &&
		params[0].Kind() == wasmtime.KindI32 &&
		params[1].Kind() == wasmtime.KindI32 &&
		results[0].Kind() == wasmtime.KindI64
}
