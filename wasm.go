package polkadotsdk

// PageSize is the size of one wasm linear memory page in bytes.
const PageSize = 65536

// MaxMemoryPages is the largest linear memory wasm32 can address,
// expressed in pages (4 GiB).
const MaxMemoryPages = 65536

// Memory represents a guest's linear memory as seen by the host.
// Offsets and lengths are guest addresses; all accesses are bounds checked
// against the current memory size.
type Memory interface {
	// Size returns the current memory size in bytes.
	Size() uint32
	// Grow extends memory by deltaPages and returns the previous size in
	// pages. Growth beyond the engine's configured limit must fail without
	// side effects.
	Grow(deltaPages uint32) (uint32, error)
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU64(offset uint32) (uint64, error)
	WriteU64(offset uint32, value uint64) error
}
