package executor

import (
	"fmt"

	polkadotsdk "github.com/gpestana/polkadot-sdk"
)

// Default heap allocation pages for onchain execution.
const DefaultHeapAllocPages uint32 = 2048

// Default extra heap pages for offchain execution, 30x the onchain default.
const DefaultOffchainHeapPages uint32 = 61440

// Default maximum heap allocation for offchain execution, 3 GiB.
const DefaultOffchainHeapMaxAllocation uint32 = 3221225472

// HeapKind selects between the two heap sizing policies.
type HeapKind uint8

const (
	// HeapStatic allocates a fixed number of heap pages at instantiation.
	HeapStatic HeapKind = iota
	// HeapDynamic lets the heap grow on demand up to a maximum.
	HeapDynamic
)

// HeapAllocStrategy describes how a guest module's heap may size and grow.
//
// A heap page is 64 KiB of linear memory. The strategy is fixed at
// instantiation and never mutated afterward.
//
// Static guarantees bit-identical resource-exhaustion outcomes across
// independently built hosts, which consensus requires. Dynamic trades that
// determinism for flexibility and is only appropriate for work that does
// not participate in consensus.
type HeapAllocStrategy struct {
	kind                      HeapKind
	extraPages                uint32
	maximumPages              uint32
	offchainHeapMaxAllocation uint32
}

// StaticHeap returns a strategy whose heap ceiling is the module's declared
// initial pages plus extraPages, with no growth after instantiation.
func StaticHeap(extraPages uint32) HeapAllocStrategy {
	return HeapAllocStrategy{kind: HeapStatic, extraPages: extraPages}
}

// DynamicHeap returns a strategy that starts at the module's declared
// initial pages and grows on demand up to maximumPages. A maximumPages of
// zero means the wasm32 limit of 4 GiB.
func DynamicHeap(maximumPages uint32) HeapAllocStrategy {
	return HeapAllocStrategy{kind: HeapDynamic, maximumPages: maximumPages}
}

// WithOffchainMaxAllocation returns a copy of the strategy whose heap byte
// ceiling is overridden to maxBytes for offchain-context calls only.
// Onchain determinism is untouched. Zero removes the override.
func (s HeapAllocStrategy) WithOffchainMaxAllocation(maxBytes uint32) HeapAllocStrategy {
	s.offchainHeapMaxAllocation = maxBytes
	return s
}

// DefaultHeapAllocStrategy is the strategy used for onchain execution when
// the operator supplies no override.
func DefaultHeapAllocStrategy() HeapAllocStrategy {
	return StaticHeap(DefaultHeapAllocPages)
}

// DefaultOffchainHeapAllocStrategy is the strategy used for offchain
// execution when the operator supplies no override.
func DefaultOffchainHeapAllocStrategy() HeapAllocStrategy {
	return StaticHeap(DefaultOffchainHeapPages).
		WithOffchainMaxAllocation(DefaultOffchainHeapMaxAllocation)
}

// Kind returns the heap sizing policy.
func (s HeapAllocStrategy) Kind() HeapKind { return s.kind }

// ExtraPages returns the pages added on top of the module's declared
// initial pages. Meaningful for HeapStatic only.
func (s HeapAllocStrategy) ExtraPages() uint32 { return s.extraPages }

// MaximumPages returns the growth ceiling in pages for HeapDynamic;
// zero means the wasm32 4 GiB limit.
func (s HeapAllocStrategy) MaximumPages() uint32 { return s.maximumPages }

// OffchainMaxAllocation returns the offchain byte-ceiling override,
// or zero when unset.
func (s HeapAllocStrategy) OffchainMaxAllocation() uint32 {
	return s.offchainHeapMaxAllocation
}

// AllowsGrowth reports whether the heap may grow after instantiation.
func (s HeapAllocStrategy) AllowsGrowth() bool { return s.kind == HeapDynamic }

// LimitPages returns the linear memory page ceiling for a module declaring
// initialPages, clamped to the wasm32 maximum.
func (s HeapAllocStrategy) LimitPages(initialPages uint32) uint32 {
	var limit uint64
	switch s.kind {
	case HeapStatic:
		limit = uint64(initialPages) + uint64(s.extraPages)
	case HeapDynamic:
		limit = uint64(s.maximumPages)
		if s.maximumPages == 0 {
			limit = polkadotsdk.MaxMemoryPages
		}
		if limit < uint64(initialPages) {
			limit = uint64(initialPages)
		}
	}
	if limit > polkadotsdk.MaxMemoryPages {
		limit = polkadotsdk.MaxMemoryPages
	}
	return uint32(limit)
}

// ByteCeiling returns the effective heap byte ceiling for one call. For
// offchain calls the strategy's offchain override, when set, replaces the
// page-derived ceiling entirely.
func (s HeapAllocStrategy) ByteCeiling(initialPages uint32, callCtx CallContext) uint64 {
	if callCtx == Offchain && s.offchainHeapMaxAllocation > 0 {
		return uint64(s.offchainHeapMaxAllocation)
	}
	return uint64(s.LimitPages(initialPages)) * polkadotsdk.PageSize
}

func (s HeapAllocStrategy) String() string {
	switch s.kind {
	case HeapStatic:
		return fmt.Sprintf("static(extra_pages=%d, offchain_max=%d)",
			s.extraPages, s.offchainHeapMaxAllocation)
	default:
		return fmt.Sprintf("dynamic(maximum_pages=%d, offchain_max=%d)",
			s.maximumPages, s.offchainHeapMaxAllocation)
	}
}
