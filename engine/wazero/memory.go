package wazero

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// guestMemory adapts wazero's api.Memory to the host memory contract.
// Read returns a direct view into guest memory; callers copy anything that
// must survive past the next memory operation.
type guestMemory struct {
	mem api.Memory
}

func (g *guestMemory) Size() uint32 {
	return g.mem.Size()
}

func (g *guestMemory) Grow(deltaPages uint32) (uint32, error) {
	prev, ok := g.mem.Grow(deltaPages)
	if !ok {
		return 0, fmt.Errorf("memory growth by %d pages denied", deltaPages)
	}
	return prev, nil
}

func (g *guestMemory) Read(offset, length uint32) ([]byte, error) {
	b, ok := g.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read %d+%d out of bounds", offset, length)
	}
	return b, nil
}

func (g *guestMemory) Write(offset uint32, data []byte) error {
	if !g.mem.Write(offset, data) {
		return fmt.Errorf("write %d+%d out of bounds", offset, len(data))
	}
	return nil
}

func (g *guestMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := g.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read u64 at %d out of bounds", offset)
	}
	return v, nil
}

func (g *guestMemory) WriteU64(offset uint32, value uint64) error {
	if !g.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("write u64 at %d out of bounds", offset)
	}
	return nil
}
