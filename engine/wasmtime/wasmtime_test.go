package wasmtime

import (
	"bytes"
	"context"
	"testing"

	"github.com/gpestana/polkadot-sdk/errors"
	"github.com/gpestana/polkadot-sdk/executor"
	"github.com/gpestana/polkadot-sdk/wasm"
)

func testGuest(t *testing.T) []byte {
	t.Helper()
	echo := wasm.Body(
		wasm.LocalGet(0), wasm.Op(wasm.OpI64ExtendI32U),
		wasm.LocalGet(1), wasm.Op(wasm.OpI64ExtendI32U),
		wasm.I64Const(32), wasm.Op(wasm.OpI64Shl),
		wasm.Op(wasm.OpI64Or),
	)
	return wasm.NewModuleBuilder().
		WithMemory(1).
		ExportMemory("memory").
		WithHeapBase(1024).
		AddData(64, []byte("orig")).
		AddFunction("echo", wasm.EntrypointSig(), echo).
		AddFunction("trap", wasm.EntrypointSig(), wasm.Body(wasm.Op(wasm.OpUnreachable))).
		AddFunction("read_mark", wasm.EntrypointSig(), wasm.PackedReturn(64, 4)).
		AddFunction("write_mark", wasm.EntrypointSig(), wasm.Body(
			wasm.I32Const(64), wasm.I32Const(0x6b72616d), wasm.I32Store(2, 0),
			wasm.PackedReturn(64, 4),
		)).
		Build()
}

func newTestInstance(t *testing.T, cfg executor.ModuleConfig) *executor.Instance {
	t.Helper()
	ctx := context.Background()
	mod, err := executor.NewModule(ctx, "wasmtime", testGuest(t), cfg)
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	t.Cleanup(func() { mod.Close(ctx) })
	inst, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	t.Cleanup(func() { inst.Close(ctx) })
	return inst
}

func TestCall_Echo(t *testing.T) {
	inst := newTestInstance(t, executor.ModuleConfig{Heap: executor.StaticHeap(0)})
	in := bytes.Repeat([]byte{0x5a}, 1000)
	out, err := inst.Call(context.Background(), "echo", in, executor.Onchain)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("echo returned %d bytes, input was %d", len(out), len(in))
	}
}

func TestCall_StatsMatchWazeroAccounting(t *testing.T) {
	inst := newTestInstance(t, executor.ModuleConfig{Heap: executor.StaticHeap(0)})
	_, stats, err := inst.CallWithAllocationStats(context.Background(), "echo", make([]byte, 100), executor.Onchain)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	want := executor.AllocationStats{
		BytesAllocated:     136,
		BytesAllocatedPeak: 136,
		AddressSpaceUsed:   136,
	}
	if stats == nil || *stats != want {
		t.Fatalf("stats: got %+v, want %+v", stats, want)
	}
}

func TestCall_MethodNotFound(t *testing.T) {
	inst := newTestInstance(t, executor.ModuleConfig{Heap: executor.StaticHeap(0)})
	_, stats, err := inst.CallWithAllocationStats(context.Background(), "missing", nil, executor.Onchain)
	if !errors.IsMethodNotFound(err) {
		t.Fatalf("expected method-not-found, got %v", err)
	}
	if stats != nil {
		t.Fatal("expected nil stats")
	}
}

func TestCall_StaticCeilingOutOfMemory(t *testing.T) {
	inst := newTestInstance(t, executor.ModuleConfig{Heap: executor.StaticHeap(0)})
	_, err := inst.Call(context.Background(), "echo", make([]byte, 60000), executor.Onchain)
	if !errors.IsOutOfMemory(err) {
		t.Fatalf("expected out-of-memory, got %v", err)
	}
}

func TestCall_DynamicGrowsOnDemand(t *testing.T) {
	inst := newTestInstance(t, executor.ModuleConfig{Heap: executor.DynamicHeap(4)})
	in := make([]byte, 100000)
	out, err := inst.Call(context.Background(), "echo", in, executor.Onchain)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatal("echo output mismatch after growth")
	}
}

func TestCall_ResetsGuestStateBetweenCalls(t *testing.T) {
	inst := newTestInstance(t, executor.ModuleConfig{Heap: executor.StaticHeap(0)})
	ctx := context.Background()

	out, err := inst.Call(ctx, "write_mark", nil, executor.Onchain)
	if err != nil {
		t.Fatalf("write_mark: %v", err)
	}
	if string(out) != "mark" {
		t.Fatalf("write_mark returned %q", out)
	}
	out, err = inst.Call(ctx, "read_mark", nil, executor.Onchain)
	if err != nil {
		t.Fatalf("read_mark: %v", err)
	}
	if string(out) != "orig" {
		t.Fatalf("baseline not restored: read %q", out)
	}
}

func TestFault_TrapThenResetThenReuse(t *testing.T) {
	inst := newTestInstance(t, executor.ModuleConfig{Heap: executor.StaticHeap(0)})
	ctx := context.Background()

	if _, err := inst.Call(ctx, "trap", nil, executor.Onchain); !errors.IsTrap(err) {
		t.Fatalf("expected trap, got %v", err)
	}
	if st := inst.State(); st != executor.StateFaulted {
		t.Fatalf("state after trap: %v", st)
	}
	if err := inst.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	out, err := inst.Call(ctx, "echo", []byte("back"), executor.Onchain)
	if err != nil {
		t.Fatalf("call after reset: %v", err)
	}
	if string(out) != "back" {
		t.Fatalf("echo after reset returned %q", out)
	}
}

func TestNewModule_InvalidBytecode(t *testing.T) {
	_, err := executor.NewModule(context.Background(), "wasmtime", []byte("not wasm"), executor.ModuleConfig{Heap: executor.StaticHeap(0)})
	if !errors.IsCompileOrInstantiate(err) {
		t.Fatalf("expected compile-class error, got %v", err)
	}
}
