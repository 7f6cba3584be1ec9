package wazero

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/gpestana/polkadot-sdk/errors"
	"github.com/gpestana/polkadot-sdk/executor"
	"github.com/gpestana/polkadot-sdk/wasm"
)

// testGuest assembles a guest exposing the entry points the suite drives.
// Memory starts at one page, the managed heap at offset 1024, and the four
// bytes at offset 64 are seeded with "orig" so resets are observable.
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
		AddFunction("empty", wasm.EntrypointSig(), wasm.PackedReturn(0, 0)).
		AddFunction("read_mark", wasm.EntrypointSig(), wasm.PackedReturn(64, 4)).
		AddFunction("write_mark", wasm.EntrypointSig(), wasm.Body(
			wasm.I32Const(64), wasm.I32Const(0x6b72616d), wasm.I32Store(2, 0), // "mark"
			wasm.PackedReturn(64, 4),
		)).
		AddFunction("oob", wasm.EntrypointSig(), wasm.Body(
			wasm.I32Const(0x7ffffff0), wasm.I32Const(0), wasm.I32Store(2, 0),
			wasm.PackedReturn(0, 0),
		)).
		AddFunction("badsig", wasm.FuncSig{Results: []wasm.ValType{wasm.I32}}, wasm.I32Const(7)).
		Build()
}

func newTestInstance(t *testing.T, engine string, cfg executor.ModuleConfig) *executor.Instance {
	t.Helper()
	ctx := context.Background()
	mod, err := executor.NewModule(ctx, engine, testGuest(t), cfg)
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

func staticCfg(extraPages uint32) executor.ModuleConfig {
	return executor.ModuleConfig{Heap: executor.StaticHeap(extraPages)}
}

func TestCall_Echo(t *testing.T) {
	for _, engine := range []string{"wazero", "wazero-interpreter"} {
		t.Run(engine, func(t *testing.T) {
			inst := newTestInstance(t, engine, staticCfg(0))
			in := bytes.Repeat([]byte{0xa5}, 1000)
			out, err := inst.Call(context.Background(), "echo", in, executor.Onchain)
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if !bytes.Equal(out, in) {
				t.Fatalf("echo returned %d bytes, input was %d", len(out), len(in))
			}
		})
	}
}

func TestCall_EmptyInputAndOutput(t *testing.T) {
	inst := newTestInstance(t, "wazero", staticCfg(0))
	out, err := inst.Call(context.Background(), "empty", nil, executor.Onchain)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(out))
	}
}

func TestCall_AllocationStats(t *testing.T) {
	inst := newTestInstance(t, "wazero", staticCfg(0))
	ctx := context.Background()

	// 100 bytes round up to a 128 byte block plus its 8 byte header.
	_, stats, err := inst.CallWithAllocationStats(ctx, "echo", make([]byte, 100), executor.Onchain)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if stats == nil {
		t.Fatal("expected stats")
	}
	want := executor.AllocationStats{
		BytesAllocated:     136,
		BytesAllocatedPeak: 136,
		AddressSpaceUsed:   136,
	}
	if *stats != want {
		t.Fatalf("stats: got %+v, want %+v", *stats, want)
	}

	// Identical input must produce identical accounting on a reused handle.
	_, again, err := inst.CallWithAllocationStats(ctx, "echo", make([]byte, 100), executor.Onchain)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if *again != *stats {
		t.Fatalf("stats diverged across runs: %+v vs %+v", *again, *stats)
	}
}

func TestCall_MethodNotFound(t *testing.T) {
	inst := newTestInstance(t, "wazero", staticCfg(0))
	ctx := context.Background()

	for _, method := range []string{"missing", "badsig"} {
		out, stats, err := inst.CallWithAllocationStats(ctx, method, nil, executor.Onchain)
		if !errors.IsMethodNotFound(err) {
			t.Fatalf("%s: expected method-not-found, got %v", method, err)
		}
		if out != nil || stats != nil {
			t.Fatalf("%s: expected nil output and stats", method)
		}
	}

	// A missing export is not a fault; the instance stays usable.
	if st := inst.State(); st == executor.StateFaulted {
		t.Fatalf("state: got %v", st)
	}
	if _, err := inst.Call(ctx, "echo", []byte("ok"), executor.Onchain); err != nil {
		t.Fatalf("call after miss: %v", err)
	}
}

func TestCall_StaticCeilingOutOfMemory(t *testing.T) {
	// Static with no extra pages caps the heap at the single initial page.
	inst := newTestInstance(t, "wazero", staticCfg(0))
	ctx := context.Background()

	if _, err := inst.Call(ctx, "echo", make([]byte, 30000), executor.Onchain); err != nil {
		t.Fatalf("within ceiling: %v", err)
	}
	_, err := inst.Call(ctx, "echo", make([]byte, 60000), executor.Onchain)
	if !errors.IsOutOfMemory(err) {
		t.Fatalf("expected out-of-memory, got %v", err)
	}
}

func TestCall_DynamicGrowsOnDemand(t *testing.T) {
	inst := newTestInstance(t, "wazero", executor.ModuleConfig{Heap: executor.DynamicHeap(4)})
	in := make([]byte, 100000)
	for i := range in {
		in[i] = byte(i)
	}
	out, err := inst.Call(context.Background(), "echo", in, executor.Onchain)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatal("echo output mismatch after growth")
	}
}

func TestCall_DynamicCapOutOfMemory(t *testing.T) {
	inst := newTestInstance(t, "wazero", executor.ModuleConfig{Heap: executor.DynamicHeap(2)})
	_, err := inst.Call(context.Background(), "echo", make([]byte, 150000), executor.Onchain)
	if !errors.IsOutOfMemory(err) {
		t.Fatalf("expected out-of-memory, got %v", err)
	}
}

func TestCall_OffchainOverride(t *testing.T) {
	cfg := executor.ModuleConfig{
		Heap: executor.StaticHeap(0).WithOffchainMaxAllocation(1 << 20),
	}
	inst := newTestInstance(t, "wazero", cfg)
	ctx := context.Background()
	in := make([]byte, 400000)

	// Onchain keeps the page-derived ceiling.
	if _, err := inst.Call(ctx, "echo", in, executor.Onchain); !errors.IsOutOfMemory(err) {
		t.Fatalf("onchain: expected out-of-memory, got %v", err)
	}
	if err := inst.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// Offchain runs under the override instead.
	out, err := inst.Call(ctx, "echo", in, executor.Offchain)
	if err != nil {
		t.Fatalf("offchain: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatal("offchain echo output mismatch")
	}
}

func TestCall_ResetsGuestStateBetweenCalls(t *testing.T) {
	inst := newTestInstance(t, "wazero", staticCfg(0))
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

func TestInstances_AreIsolated(t *testing.T) {
	ctx := context.Background()
	mod, err := executor.NewModule(ctx, "wazero", testGuest(t), staticCfg(0))
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	defer mod.Close(ctx)

	a, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatalf("instance a: %v", err)
	}
	defer a.Close(ctx)
	b, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatalf("instance b: %v", err)
	}
	defer b.Close(ctx)

	if _, err := a.Call(ctx, "write_mark", nil, executor.Onchain); err != nil {
		t.Fatalf("write_mark: %v", err)
	}
	out, err := b.Call(ctx, "read_mark", nil, executor.Onchain)
	if err != nil {
		t.Fatalf("read_mark: %v", err)
	}
	if string(out) != "orig" {
		t.Fatalf("instance b observed instance a's write: %q", out)
	}
}

func TestFault_TrapThenResetThenReuse(t *testing.T) {
	for _, method := range []string{"trap", "oob"} {
		t.Run(method, func(t *testing.T) {
			inst := newTestInstance(t, "wazero", staticCfg(0))
			ctx := context.Background()

			_, err := inst.Call(ctx, method, nil, executor.Onchain)
			if !errors.IsTrap(err) {
				t.Fatalf("expected trap, got %v", err)
			}
			if st := inst.State(); st != executor.StateFaulted {
				t.Fatalf("state after trap: %v", st)
			}

			// Reuse without a reset is refused.
			_, err = inst.Call(ctx, "echo", nil, executor.Onchain)
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindFaulted}) {
				t.Fatalf("expected faulted error, got %v", err)
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
		})
	}
}

func TestFault_DisposePolicyForbidsReset(t *testing.T) {
	cfg := executor.ModuleConfig{
		Heap:    executor.StaticHeap(0),
		OnFault: executor.FaultDispose,
	}
	inst := newTestInstance(t, "wazero", cfg)
	ctx := context.Background()

	if _, err := inst.Call(ctx, "trap", nil, executor.Onchain); !errors.IsTrap(err) {
		t.Fatalf("expected trap, got %v", err)
	}
	if err := inst.Reset(ctx); err == nil {
		t.Fatal("expected reset to be refused under the dispose policy")
	}
}

func TestNewModule_InvalidBytecode(t *testing.T) {
	_, err := executor.NewModule(context.Background(), "wazero", []byte("not wasm"), staticCfg(0))
	if !errors.IsCompileOrInstantiate(err) {
		t.Fatalf("expected compile-class error, got %v", err)
	}
}

func TestNewModule_RejectsImportedMemory(t *testing.T) {
	code := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x02, 0x0f, // import section
		0x01,
		0x03, 'e', 'n', 'v',
		0x06, 'm', 'e', 'm', 'o', 'r', 'y',
		0x02, 0x00, 0x01,
	}
	_, err := executor.NewModule(context.Background(), "wazero", code, staticCfg(0))
	if !errors.IsCompileOrInstantiate(err) {
		t.Fatalf("expected compile-class error, got %v", err)
	}
}

func TestNewInstance_StaticReservationFailure(t *testing.T) {
	// The guest's declared maximum of 2 pages cannot satisfy a static
	// strategy demanding 10 extra pages.
	code := wasm.NewModuleBuilder().
		WithMemoryMax(1, 2).
		ExportMemory("memory").
		AddFunction("echo", wasm.EntrypointSig(), wasm.PackedReturn(0, 0)).
		Build()

	ctx := context.Background()
	mod, err := executor.NewModule(ctx, "wazero", code, staticCfg(10))
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	defer mod.Close(ctx)

	if _, err := mod.NewInstance(ctx); !errors.IsCompileOrInstantiate(err) {
		t.Fatalf("expected instantiation error, got %v", err)
	}
}
