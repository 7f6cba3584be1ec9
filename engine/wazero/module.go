package wazero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	polkadotsdk "github.com/gpestana/polkadot-sdk"
	"github.com/gpestana/polkadot-sdk/errors"
	"github.com/gpestana/polkadot-sdk/executor"
	"github.com/gpestana/polkadot-sdk/wasm"
)

func init() {
	executor.Register("wazero", executor.ModuleFactoryFunc(newCompilerModule))
	executor.Register("wazero-interpreter", executor.ModuleFactoryFunc(newInterpreterModule))
}

func newCompilerModule(ctx context.Context, code []byte, cfg executor.ModuleConfig) (executor.Module, error) {
	return newModule(ctx, code, cfg, wazero.NewRuntimeConfigCompiler())
}

func newInterpreterModule(ctx context.Context, code []byte, cfg executor.ModuleConfig) (executor.Module, error) {
	return newModule(ctx, code, cfg, wazero.NewRuntimeConfigInterpreter())
}

// Module is compiled guest bytecode bound to one wazero runtime whose
// memory limit is derived from the module's heap strategy. Each module owns
// its runtime so limits never leak between modules.
type Module struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	info     *wasm.ModuleInfo
	cfg      executor.ModuleConfig
	logger   *zap.Logger
}

func newModule(ctx context.Context, code []byte, cfg executor.ModuleConfig, runtimeCfg wazero.RuntimeConfig) (executor.Module, error) {
	info, err := wasm.Inspect(code)
	if err != nil {
		return nil, errors.InvalidBytecode(err)
	}
	if info.ImportsMemory {
		return nil, errors.InvalidBytecode(fmt.Errorf("imported linear memory is not supported"))
	}

	// The runtime-level page limit is the hard outer bound. The offchain
	// override may exceed the strategy's page-derived limit, so the bound
	// covers whichever is larger; per-call ceilings still apply underneath.
	limit := cfg.Heap.LimitPages(info.InitialPages)
	if ov := cfg.Heap.OffchainMaxAllocation(); ov > 0 {
		if p := pagesFor(uint64(ov)); p > limit {
			limit = p
		}
	}
	runtimeCfg = runtimeCfg.
		WithMemoryLimitPages(limit).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.InvalidBytecode(err)
	}

	return &Module{
		runtime:  runtime,
		compiled: compiled,
		info:     info,
		cfg:      cfg,
		logger:   cfg.NormalizedLogger(),
	}, nil
}

// NewInstance instantiates the compiled module. Under a static heap
// strategy the instance's memory is grown to the strategy's ceiling here,
// so page reservation failures surface as instantiation errors rather than
// mid-call surprises.
func (m *Module) NewInstance(ctx context.Context) (*executor.Instance, error) {
	mod, err := m.instantiate(ctx)
	if err != nil {
		return nil, err
	}
	return executor.NewInstance(&Instance{parent: m, mod: mod}), nil
}

func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

func (m *Module) instantiate(ctx context.Context) (api.Module, error) {
	mod, err := m.runtime.InstantiateModule(ctx, m.compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	if !m.cfg.Heap.AllowsGrowth() && m.info.HasMemory {
		target := m.cfg.Heap.LimitPages(m.info.InitialPages)
		mem := mod.Memory()
		cur := mem.Size() / polkadotsdk.PageSize
		if target > cur {
			if _, ok := mem.Grow(target - cur); !ok {
				_ = mod.Close(ctx)
				return nil, errors.InstantiationDetail("cannot reserve %d pages of guest memory", target)
			}
		}
	}
	return mod, nil
}

// pagesFor returns the page count covering n bytes, clamped to the wasm32
// address space.
func pagesFor(n uint64) uint32 {
	pages := (n + polkadotsdk.PageSize - 1) / polkadotsdk.PageSize
	if pages > polkadotsdk.MaxMemoryPages {
		return polkadotsdk.MaxMemoryPages
	}
	return uint32(pages)
}
