package config

import (
	"testing"

	"github.com/gpestana/polkadot-sdk/executor"
)

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
engine: wasmtime
onchain:
  strategy: static
  extra_pages: 512
offchain:
  strategy: dynamic
  maximum_pages: 8192
  offchain_max_allocation: 1073741824
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Engine != "wasmtime" {
		t.Fatalf("engine: got %q", cfg.Engine)
	}

	on := cfg.OnchainStrategy()
	if on.Kind() != executor.HeapStatic || on.ExtraPages() != 512 {
		t.Fatalf("onchain strategy: got %v", on)
	}
	off := cfg.OffchainStrategy()
	if off.Kind() != executor.HeapDynamic || off.MaximumPages() != 8192 {
		t.Fatalf("offchain strategy: got %v", off)
	}
	if off.OffchainMaxAllocation() != 1073741824 {
		t.Fatalf("offchain max allocation: got %d", off.OffchainMaxAllocation())
	}
}

func TestParse_DefaultsWhenAbsent(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Engine != DefaultEngine {
		t.Fatalf("engine: got %q, want %q", cfg.Engine, DefaultEngine)
	}
	if got, want := cfg.OnchainStrategy(), executor.DefaultHeapAllocStrategy(); got != want {
		t.Fatalf("onchain default: got %v, want %v", got, want)
	}
	if got, want := cfg.OffchainStrategy(), executor.DefaultOffchainHeapAllocStrategy(); got != want {
		t.Fatalf("offchain default: got %v, want %v", got, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad strategy", "onchain:\n  strategy: elastic\n"},
		{"static with maximum", "onchain:\n  strategy: static\n  maximum_pages: 10\n"},
		{"dynamic with extra", "offchain:\n  strategy: dynamic\n  extra_pages: 10\n"},
		{"not yaml", "engine: [unclosed"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Parse([]byte(c.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
