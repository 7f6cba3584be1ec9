package wasmtime

import (
	"encoding/binary"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v14"
)

// guestMemory adapts a wasmtime memory to the host memory contract.
// UnsafeData views stay valid only until the next growth, so every
// operation re-derives the backing slice.
type guestMemory struct {
	mem   *wasmtime.Memory
	store *wasmtime.Store
}

func (g *guestMemory) Size() uint32 {
	return uint32(g.mem.DataSize(g.store))
}

func (g *guestMemory) Grow(deltaPages uint32) (uint32, error) {
	prev, err := g.mem.Grow(g.store, uint64(deltaPages))
	if err != nil {
		return 0, fmt.Errorf("memory growth by %d pages denied: %w", deltaPages, err)
	}
	return uint32(prev), nil
}

func (g *guestMemory) Read(offset, length uint32) ([]byte, error) {
	data := g.mem.UnsafeData(g.store)
	if uint64(offset)+uint64(length) > uint64(len(data)) {
		return nil, fmt.Errorf("read %d+%d out of bounds", offset, length)
	}
	return data[offset : offset+length], nil
}

func (g *guestMemory) Write(offset uint32, data []byte) error {
	mem := g.mem.UnsafeData(g.store)
	if uint64(offset)+uint64(len(data)) > uint64(len(mem)) {
		return fmt.Errorf("write %d+%d out of bounds", offset, len(data))
	}
	copy(mem[offset:], data)
	return nil
}

func (g *guestMemory) ReadU64(offset uint32) (uint64, error) {
	b, err := g.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (g *guestMemory) WriteU64(offset uint32, value uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], value)
	return g.Write(offset, b[:])
}
