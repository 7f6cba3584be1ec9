package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gpestana/polkadot-sdk/config"
	"github.com/gpestana/polkadot-sdk/executor"
	"github.com/gpestana/polkadot-sdk/wasm"

	_ "github.com/gpestana/polkadot-sdk/engine/wazero"
	_ "github.com/gpestana/polkadot-sdk/engine/wasmtime"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to guest wasm file")
		method      = flag.String("method", "", "Exported entry point to call")
		input       = flag.String("input", "", "Call input as hex")
		callCtx     = flag.String("context", "onchain", "Call context: onchain or offchain")
		engine      = flag.String("engine", "", "Engine backend (default from config, else wazero)")
		configFile  = flag.String("config", "", "YAML configuration file")
		strategy    = flag.String("strategy", "", "Heap strategy override: static or dynamic")
		extraPages  = flag.Uint("extra-pages", 0, "Static heap pages above the guest's initial memory")
		maxPages    = flag.Uint("max-pages", 0, "Dynamic heap page cap (0 = 4GiB)")
		offchainMax = flag.Uint("offchain-max", 0, "Offchain byte-ceiling override")
		list        = flag.Bool("list", false, "List exports and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: execwasm -wasm <file.wasm> -method <name> [-input hex] [-context onchain|offchain]")
		fmt.Fprintln(os.Stderr, "       execwasm -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       execwasm -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	opts := runOptions{
		wasmFile:    *wasmFile,
		method:      *method,
		inputHex:    *input,
		callCtx:     *callCtx,
		engine:      *engine,
		configFile:  *configFile,
		strategy:    *strategy,
		extraPages:  uint32(*extraPages),
		maxPages:    uint32(*maxPages),
		offchainMax: uint32(*offchainMax),
		verbose:     *verbose,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	wasmFile    string
	method      string
	inputHex    string
	callCtx     string
	engine      string
	configFile  string
	strategy    string
	extraPages  uint32
	maxPages    uint32
	offchainMax uint32
	verbose     bool
}

// resolve turns flags and the optional config file into an engine name,
// call context and module configuration. Flags win over the file.
func (o runOptions) resolve() (string, executor.CallContext, executor.ModuleConfig, error) {
	engine := config.DefaultEngine
	var heap executor.HeapAllocStrategy

	callCtx := executor.Onchain
	switch o.callCtx {
	case "", "onchain":
	case "offchain":
		callCtx = executor.Offchain
	default:
		return "", 0, executor.ModuleConfig{}, fmt.Errorf("unknown call context %q", o.callCtx)
	}

	if o.configFile != "" {
		cfg, err := config.Load(o.configFile)
		if err != nil {
			return "", 0, executor.ModuleConfig{}, err
		}
		engine = cfg.Engine
		if callCtx == executor.Offchain {
			heap = cfg.OffchainStrategy()
		} else {
			heap = cfg.OnchainStrategy()
		}
	} else if callCtx == executor.Offchain {
		heap = executor.DefaultOffchainHeapAllocStrategy()
	} else {
		heap = executor.DefaultHeapAllocStrategy()
	}

	switch o.strategy {
	case "":
	case "static":
		heap = executor.StaticHeap(o.extraPages)
	case "dynamic":
		heap = executor.DynamicHeap(o.maxPages)
	default:
		return "", 0, executor.ModuleConfig{}, fmt.Errorf("unknown heap strategy %q", o.strategy)
	}
	if o.offchainMax > 0 {
		heap = heap.WithOffchainMaxAllocation(o.offchainMax)
	}
	if o.engine != "" {
		engine = o.engine
	}

	logger := zap.NewNop()
	if o.verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return "", 0, executor.ModuleConfig{}, err
		}
	}

	return engine, callCtx, executor.ModuleConfig{Heap: heap, Logger: logger}, nil
}

func run(opts runOptions, listOnly bool) error {
	ctx := context.Background()

	code, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	info, err := wasm.Inspect(code)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	fmt.Printf("Module: %s\n", opts.wasmFile)
	if info.HasMemory {
		if info.HasMaximum {
			fmt.Printf("Memory: %d..%d pages\n", info.InitialPages, info.MaximumPages)
		} else {
			fmt.Printf("Memory: %d pages, no declared maximum\n", info.InitialPages)
		}
	}
	fmt.Printf("\nExported functions:\n")
	for _, name := range info.ExportedFunctions() {
		fmt.Printf("  %s\n", name)
	}

	if listOnly {
		return nil
	}
	if opts.method == "" {
		return fmt.Errorf("no method specified; use -method or -list")
	}

	data, err := decodeHexInput(opts.inputHex)
	if err != nil {
		return err
	}

	engine, callCtx, modCfg, err := opts.resolve()
	if err != nil {
		return err
	}

	mod, err := executor.NewModule(ctx, engine, code, modCfg)
	if err != nil {
		return fmt.Errorf("load module: %w", err)
	}
	defer mod.Close(ctx)

	inst, err := mod.NewInstance(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	fmt.Printf("\nCalling %s (%s, engine %s, heap %s)...\n", opts.method, callCtx, engine, modCfg.Heap)
	out, stats, err := inst.CallWithAllocationStats(ctx, opts.method, data, callCtx)
	if err != nil {
		return err
	}

	if len(out) == 0 {
		fmt.Printf("Output: (empty)\n")
	} else {
		fmt.Printf("Output: 0x%s\n", hex.EncodeToString(out))
	}
	if stats != nil {
		fmt.Printf("Heap:   %d bytes allocated, %d peak, %d address space used\n",
			stats.BytesAllocated, stats.BytesAllocatedPeak, stats.AddressSpaceUsed)
	}
	return nil
}

func decodeHexInput(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("input is not hex: %w", err)
	}
	return data, nil
}
