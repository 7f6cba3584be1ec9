package wasmtime

import (
	"context"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v14"
	"go.uber.org/zap"

	polkadotsdk "github.com/gpestana/polkadot-sdk"
	"github.com/gpestana/polkadot-sdk/errors"
	"github.com/gpestana/polkadot-sdk/executor"
	"github.com/gpestana/polkadot-sdk/wasm"
)

func init() {
	executor.Register("wasmtime", executor.ModuleFactoryFunc(newModule))
}

// Module is guest bytecode compiled once by a shared wasmtime engine.
// Instances each get their own store, so nothing is shared between them.
type Module struct {
	engine    *wasmtime.Engine
	module    *wasmtime.Module
	info      *wasm.ModuleInfo
	memExport string
	cfg       executor.ModuleConfig
	logger    *zap.Logger
}

func newModule(ctx context.Context, code []byte, cfg executor.ModuleConfig) (executor.Module, error) {
	info, err := wasm.Inspect(code)
	if err != nil {
		return nil, errors.InvalidBytecode(err)
	}
	if info.ImportsMemory {
		return nil, errors.InvalidBytecode(fmt.Errorf("imported linear memory is not supported"))
	}

	wcfg := wasmtime.NewConfig()
	wcfg.SetStrategy(wasmtime.StrategyCranelift)
	wcfg.SetCraneliftOptLevel(wasmtime.OptLevelSpeedAndSize)
	wcfg.SetCraneliftFlag("enable_nan_canonicalization", "true")

	engine := wasmtime.NewEngineWithConfig(wcfg)
	module, err := wasmtime.NewModule(engine, code)
	if err != nil {
		return nil, errors.InvalidBytecode(err)
	}

	m := &Module{
		engine: engine,
		module: module,
		info:   info,
		cfg:    cfg,
		logger: cfg.NormalizedLogger(),
	}
	for _, e := range info.Exports {
		if e.Kind == wasm.KindMemory {
			m.memExport = e.Name
			break
		}
	}
	return m, nil
}

func (m *Module) NewInstance(ctx context.Context) (*executor.Instance, error) {
	store, inst, err := m.instantiate()
	if err != nil {
		return nil, err
	}
	return executor.NewInstance(&Instance{parent: m, store: store, inst: inst}), nil
}

// Close drops the compiled module. wasmtime resources are finalizer
// managed, so releasing the references is sufficient.
func (m *Module) Close(ctx context.Context) error {
	m.module = nil
	m.engine = nil
	return nil
}

// instantiate creates a fresh store and instance. The store's resource
// limiter is the hard outer memory bound, mirroring how the heap strategy
// caps the runtime-level page limit elsewhere.
func (m *Module) instantiate() (*wasmtime.Store, *wasmtime.Instance, error) {
	limit := m.cfg.Heap.LimitPages(m.info.InitialPages)
	if ov := m.cfg.Heap.OffchainMaxAllocation(); ov > 0 {
		if p := pagesFor(uint64(ov)); p > limit {
			limit = p
		}
	}

	store := wasmtime.NewStore(m.engine)
	store.Limiter(int64(limit)*polkadotsdk.PageSize, -1, -1, -1, -1)

	inst, err := wasmtime.NewInstance(store, m.module, nil)
	if err != nil {
		return nil, nil, errors.Instantiation(err)
	}

	if !m.cfg.Heap.AllowsGrowth() && m.memExport != "" {
		target := m.cfg.Heap.LimitPages(m.info.InitialPages)
		mem := inst.GetExport(store, m.memExport).Memory()
		if cur := uint32(mem.Size(store)); target > cur {
			if _, err := mem.Grow(store, uint64(target-cur)); err != nil {
				return nil, nil, errors.InstantiationDetail("cannot reserve %d pages of guest memory", target)
			}
		}
	}
	return store, inst, nil
}

func pagesFor(n uint64) uint32 {
	pages := (n + polkadotsdk.PageSize - 1) / polkadotsdk.PageSize
	if pages > polkadotsdk.MaxMemoryPages {
		return polkadotsdk.MaxMemoryPages
	}
	return uint32(pages)
}
