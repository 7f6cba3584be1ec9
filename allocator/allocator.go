package allocator

import (
	"math"
	"math/bits"

	polkadotsdk "github.com/gpestana/polkadot-sdk"
	"github.com/gpestana/polkadot-sdk/errors"
	"github.com/gpestana/polkadot-sdk/executor"
)

const (
	// headerSize is the bookkeeping prefix of every block, in bytes.
	headerSize = 8
	// minBlockSize is the smallest allocatable block, in bytes.
	minBlockSize = 8
	// DefaultMaxAllocation caps a single allocation at 32 MiB unless the
	// heap strategy's offchain override raises it.
	DefaultMaxAllocation uint32 = 8 << 22

	// nilMarker terminates a free list.
	nilMarker = math.MaxUint32

	// occupiedTag marks a block header as live; the low word then holds
	// the block's order. A free header holds the next free block's address.
	occupiedTag = uint64(1) << 32
)

// FreeingBump is a host-side heap allocator over guest linear memory.
//
// Blocks are powers of two from 8 bytes up to the configured maximum, each
// prefixed by an 8-byte header inside guest memory. Freed blocks go on a
// per-order free list and are reused before the bump pointer advances.
// The bump pointer itself is monotonic for the allocator's lifetime; an
// instance reset discards the whole arena, so one allocator serves exactly
// one call.
//
// Any inconsistency observed in guest memory poisons the allocator: every
// later operation fails, so a corrupted heap cannot be silently reused.
type FreeingBump struct {
	freeLists []uint32
	heapBase  uint32
	bumper    uint64
	ceiling   uint64
	maxAlloc  uint32
	poisoned  bool

	bytesAllocated     uint64
	bytesAllocatedPeak uint64
}

// New creates an allocator whose arena starts at heapBase and may extend to
// ceiling bytes of guest address space. maxAllocation bounds a single
// request; zero means DefaultMaxAllocation.
func New(heapBase uint32, ceiling uint64, maxAllocation uint32) *FreeingBump {
	if maxAllocation == 0 {
		maxAllocation = DefaultMaxAllocation
	}
	base := (uint64(heapBase) + 7) &^ 7

	orders := 1 + order(nextBlockSize(maxAllocation))
	lists := make([]uint32, orders)
	for i := range lists {
		lists[i] = nilMarker
	}

	return &FreeingBump{
		freeLists: lists,
		heapBase:  uint32(base),
		bumper:    base,
		ceiling:   ceiling,
		maxAlloc:  maxAllocation,
	}
}

// nextBlockSize rounds size up to the next power of two, at least
// minBlockSize.
func nextBlockSize(size uint32) uint64 {
	if size <= minBlockSize {
		return minBlockSize
	}
	return 1 << bits.Len64(uint64(size)-1)
}

// order maps a power-of-two block size onto its free-list index.
func order(blockSize uint64) int {
	return bits.TrailingZeros64(blockSize) - bits.TrailingZeros64(minBlockSize)
}

// Allocate reserves size bytes in mem and returns the guest address of the
// usable region. Exhausting the arena ceiling or exceeding the single
// allocation cap fails with an out-of-memory error, deterministically.
func (a *FreeingBump) Allocate(mem polkadotsdk.Memory, size uint32) (uint32, error) {
	if a.poisoned {
		return 0, errors.TrapDetail("", "heap allocator poisoned by an earlier fault")
	}
	if size > a.maxAlloc {
		a.poisoned = true
		return 0, errors.OutOfMemory("requested allocation of %d bytes exceeds the %d byte maximum", size, a.maxAlloc)
	}

	blockSize := nextBlockSize(size)
	ord := order(blockSize)

	var headerPtr uint64
	if head := a.freeLists[ord]; head != nilMarker {
		header, err := mem.ReadU64(head)
		if err != nil || header&occupiedTag != 0 {
			a.poisoned = true
			return 0, errors.TrapDetail("", "corrupted free list head at %d", head)
		}
		a.freeLists[ord] = uint32(header)
		headerPtr = uint64(head)
	} else {
		headerPtr = a.bumper
		end := headerPtr + headerSize + blockSize
		if end > a.ceiling {
			a.poisoned = true
			return 0, errors.OutOfMemory("allocating %d bytes would exceed the heap ceiling of %d bytes", size, a.ceiling)
		}
		if err := a.ensure(mem, end); err != nil {
			a.poisoned = true
			return 0, err
		}
		a.bumper = end
	}

	if err := mem.WriteU64(uint32(headerPtr), occupiedTag|uint64(ord)); err != nil {
		a.poisoned = true
		return 0, errors.TrapDetail("", "writing block header at %d", headerPtr)
	}

	a.bytesAllocated += headerSize + blockSize
	if a.bytesAllocated > a.bytesAllocatedPeak {
		a.bytesAllocatedPeak = a.bytesAllocated
	}

	return uint32(headerPtr) + headerSize, nil
}

// Deallocate releases a block previously returned by Allocate.
func (a *FreeingBump) Deallocate(mem polkadotsdk.Memory, ptr uint32) error {
	if a.poisoned {
		return errors.TrapDetail("", "heap allocator poisoned by an earlier fault")
	}
	if ptr < a.heapBase+headerSize {
		a.poisoned = true
		return errors.TrapDetail("", "deallocation pointer %d below the heap base", ptr)
	}

	headerPtr := ptr - headerSize
	header, err := mem.ReadU64(headerPtr)
	if err != nil || header&occupiedTag == 0 {
		a.poisoned = true
		return errors.TrapDetail("", "deallocating unallocated block at %d", ptr)
	}
	ord := int(uint32(header))
	if ord >= len(a.freeLists) {
		a.poisoned = true
		return errors.TrapDetail("", "corrupted block header at %d", headerPtr)
	}

	if err := mem.WriteU64(headerPtr, uint64(a.freeLists[ord])); err != nil {
		a.poisoned = true
		return errors.TrapDetail("", "writing free-list link at %d", headerPtr)
	}
	a.freeLists[ord] = headerPtr

	a.bytesAllocated -= headerSize + (uint64(minBlockSize) << ord)
	return nil
}

// ensure grows mem so that at least end bytes are addressable. A denied
// growth is resource exhaustion, not a fault.
func (a *FreeingBump) ensure(mem polkadotsdk.Memory, end uint64) error {
	size := uint64(mem.Size())
	if end <= size {
		return nil
	}
	deltaPages := (end - size + polkadotsdk.PageSize - 1) / polkadotsdk.PageSize
	if _, err := mem.Grow(uint32(deltaPages)); err != nil {
		return errors.OutOfMemory("growing memory by %d pages: %v", deltaPages, err)
	}
	return nil
}

// Stats returns a snapshot of the allocator's accounting. Counters are
// maintained inline during Allocate/Deallocate, so sampling is free and
// does not perturb the measurement.
func (a *FreeingBump) Stats() executor.AllocationStats {
	return executor.AllocationStats{
		BytesAllocated:     a.bytesAllocated,
		BytesAllocatedPeak: a.bytesAllocatedPeak,
		AddressSpaceUsed:   a.bumper - uint64(a.heapBase),
	}
}

// Poisoned reports whether the allocator observed a fault and refuses
// further use.
func (a *FreeingBump) Poisoned() bool { return a.poisoned }
