package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gpestana/polkadot-sdk/executor"
)

// Config is the executor section of a node configuration file.
type Config struct {
	// Engine selects a registered engine backend. Empty means DefaultEngine.
	Engine string `yaml:"engine"`
	// Onchain configures the heap strategy for consensus-critical calls.
	Onchain *HeapConfig `yaml:"onchain"`
	// Offchain configures the heap strategy for auxiliary calls.
	Offchain *HeapConfig `yaml:"offchain"`
}

// HeapConfig is the serialized form of a heap allocation strategy.
type HeapConfig struct {
	// Strategy is "static" or "dynamic".
	Strategy string `yaml:"strategy"`
	// ExtraPages is the static headroom above the guest's declared initial
	// memory.
	ExtraPages uint32 `yaml:"extra_pages"`
	// MaximumPages caps a dynamic heap; 0 means the 4 GiB address space.
	MaximumPages uint32 `yaml:"maximum_pages"`
	// OffchainMaxAllocation, when non-zero, replaces the page-derived
	// ceiling for offchain calls, in bytes.
	OffchainMaxAllocation uint32 `yaml:"offchain_max_allocation"`
}

// DefaultEngine is used when the configuration names none.
const DefaultEngine = "wazero"

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for role, hc := range map[string]*HeapConfig{"onchain": c.Onchain, "offchain": c.Offchain} {
		if hc == nil {
			continue
		}
		switch hc.Strategy {
		case "static", "dynamic":
		default:
			return fmt.Errorf("%s: unknown heap strategy %q", role, hc.Strategy)
		}
		if hc.Strategy == "static" && hc.MaximumPages != 0 {
			return fmt.Errorf("%s: maximum_pages is a dynamic-only setting", role)
		}
		if hc.Strategy == "dynamic" && hc.ExtraPages != 0 {
			return fmt.Errorf("%s: extra_pages is a static-only setting", role)
		}
	}
	return nil
}

// OnchainStrategy returns the configured onchain heap strategy, or the
// operator default when the section is absent.
func (c *Config) OnchainStrategy() executor.HeapAllocStrategy {
	if c.Onchain == nil {
		return executor.DefaultHeapAllocStrategy()
	}
	return c.Onchain.strategy()
}

// OffchainStrategy returns the configured offchain heap strategy, or the
// operator default when the section is absent.
func (c *Config) OffchainStrategy() executor.HeapAllocStrategy {
	if c.Offchain == nil {
		return executor.DefaultOffchainHeapAllocStrategy()
	}
	return c.Offchain.strategy()
}

func (hc *HeapConfig) strategy() executor.HeapAllocStrategy {
	var s executor.HeapAllocStrategy
	if hc.Strategy == "dynamic" {
		s = executor.DynamicHeap(hc.MaximumPages)
	} else {
		s = executor.StaticHeap(hc.ExtraPages)
	}
	if hc.OffchainMaxAllocation > 0 {
		s = s.WithOffchainMaxAllocation(hc.OffchainMaxAllocation)
	}
	return s
}
