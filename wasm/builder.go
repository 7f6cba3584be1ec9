package wasm

// ValType is a wasm value type byte.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

// Selected opcodes, enough to assemble small guests.
const (
	OpUnreachable   byte = 0x00
	OpNop           byte = 0x01
	OpEnd           byte = 0x0b
	OpDrop          byte = 0x1a
	OpLocalGet      byte = 0x20
	OpGlobalGet     byte = 0x23
	OpI32Store      byte = 0x36
	OpMemorySize    byte = 0x3f
	OpMemoryGrow    byte = 0x40
	OpI32Const      byte = 0x41
	OpI64Const      byte = 0x42
	OpI64Or         byte = 0x84
	OpI64Shl        byte = 0x86
	OpI64ExtendI32S byte = 0xac
	OpI64ExtendI32U byte = 0xad
)

// FuncSig is a function signature.
type FuncSig struct {
	Params  []ValType
	Results []ValType
}

// EntrypointSig is the executor's guest ABI: (ptr i32, len i32) -> i64
// with the result packing the output pointer and length.
func EntrypointSig() FuncSig {
	return FuncSig{Params: []ValType{I32, I32}, Results: []ValType{I64}}
}

type builderFunc struct {
	name string
	sig  FuncSig
	body []byte
}

type builderGlobal struct {
	name    string
	valType ValType
	init    []byte
	mutable bool
}

type dataSegment struct {
	data   []byte
	offset uint32
}

// ModuleBuilder assembles a minimal valid wasm module from parts. It backs
// the executor's test fixtures; it performs no validation of its own.
type ModuleBuilder struct {
	funcs     []builderFunc
	globals   []builderGlobal
	data      []dataSegment
	memExport string
	memMin    uint32
	memMax    uint32
	hasMemMax bool
	hasMemory bool
}

func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{}
}

// WithMemory declares a memory of minPages with no maximum.
func (b *ModuleBuilder) WithMemory(minPages uint32) *ModuleBuilder {
	b.hasMemory = true
	b.memMin = minPages
	b.hasMemMax = false
	return b
}

// WithMemoryMax declares a memory of minPages growable to maxPages.
func (b *ModuleBuilder) WithMemoryMax(minPages, maxPages uint32) *ModuleBuilder {
	b.hasMemory = true
	b.memMin = minPages
	b.memMax = maxPages
	b.hasMemMax = true
	return b
}

// ExportMemory exports the memory under name ("memory" by convention).
func (b *ModuleBuilder) ExportMemory(name string) *ModuleBuilder {
	b.memExport = name
	return b
}

// WithHeapBase exports an immutable i32 global "__heap_base" marking where
// the host-managed heap region starts.
func (b *ModuleBuilder) WithHeapBase(addr uint32) *ModuleBuilder {
	return b.AddGlobal("__heap_base", I32, false, I32Const(int32(addr)))
}

// AddGlobal declares an exported global with the given const initializer.
func (b *ModuleBuilder) AddGlobal(name string, t ValType, mutable bool, init []byte) *ModuleBuilder {
	b.globals = append(b.globals, builderGlobal{name: name, valType: t, mutable: mutable, init: init})
	return b
}

// AddFunction declares an exported function. body holds instructions
// without the trailing end opcode and without local declarations.
func (b *ModuleBuilder) AddFunction(name string, sig FuncSig, body []byte) *ModuleBuilder {
	b.funcs = append(b.funcs, builderFunc{name: name, sig: sig, body: body})
	return b
}

// AddData places bytes at offset in memory at instantiation.
func (b *ModuleBuilder) AddData(offset uint32, data []byte) *ModuleBuilder {
	b.data = append(b.data, dataSegment{offset: offset, data: data})
	return b
}

// Build encodes the module to the WebAssembly binary format.
func (b *ModuleBuilder) Build() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Type section, one entry per function.
	if len(b.funcs) > 0 {
		var sec []byte
		sec = AppendLEB128u(sec, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			sec = append(sec, 0x60)
			sec = AppendLEB128u(sec, uint32(len(f.sig.Params)))
			for _, p := range f.sig.Params {
				sec = append(sec, byte(p))
			}
			sec = AppendLEB128u(sec, uint32(len(f.sig.Results)))
			for _, r := range f.sig.Results {
				sec = append(sec, byte(r))
			}
		}
		out = appendSection(out, SectionType, sec)

		sec = nil
		sec = AppendLEB128u(sec, uint32(len(b.funcs)))
		for i := range b.funcs {
			sec = AppendLEB128u(sec, uint32(i))
		}
		out = appendSection(out, SectionFunction, sec)
	}

	if b.hasMemory {
		var sec []byte
		sec = AppendLEB128u(sec, 1)
		if b.hasMemMax {
			sec = append(sec, 0x01)
			sec = AppendLEB128u(sec, b.memMin)
			sec = AppendLEB128u(sec, b.memMax)
		} else {
			sec = append(sec, 0x00)
			sec = AppendLEB128u(sec, b.memMin)
		}
		out = appendSection(out, SectionMemory, sec)
	}

	if len(b.globals) > 0 {
		var sec []byte
		sec = AppendLEB128u(sec, uint32(len(b.globals)))
		for _, g := range b.globals {
			sec = append(sec, byte(g.valType))
			if g.mutable {
				sec = append(sec, 0x01)
			} else {
				sec = append(sec, 0x00)
			}
			sec = append(sec, g.init...)
			sec = append(sec, OpEnd)
		}
		out = appendSection(out, SectionGlobal, sec)
	}

	exports := uint32(len(b.funcs) + len(b.globals))
	if b.memExport != "" {
		exports++
	}
	if exports > 0 {
		var sec []byte
		sec = AppendLEB128u(sec, exports)
		for i, f := range b.funcs {
			sec = appendName(sec, f.name)
			sec = append(sec, byte(KindFunc))
			sec = AppendLEB128u(sec, uint32(i))
		}
		if b.memExport != "" {
			sec = appendName(sec, b.memExport)
			sec = append(sec, byte(KindMemory))
			sec = AppendLEB128u(sec, 0)
		}
		for i, g := range b.globals {
			sec = appendName(sec, g.name)
			sec = append(sec, byte(KindGlobal))
			sec = AppendLEB128u(sec, uint32(i))
		}
		out = appendSection(out, SectionExport, sec)
	}

	if len(b.funcs) > 0 {
		var sec []byte
		sec = AppendLEB128u(sec, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body []byte
			body = AppendLEB128u(body, 0) // no local declarations
			body = append(body, f.body...)
			body = append(body, OpEnd)
			sec = AppendLEB128u(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, SectionCode, sec)
	}

	if len(b.data) > 0 {
		var sec []byte
		sec = AppendLEB128u(sec, uint32(len(b.data)))
		for _, d := range b.data {
			sec = AppendLEB128u(sec, 0) // active segment, memory 0
			sec = append(sec, I32Const(int32(d.offset))...)
			sec = append(sec, OpEnd)
			sec = AppendLEB128u(sec, uint32(len(d.data)))
			sec = append(sec, d.data...)
		}
		out = appendSection(out, SectionData, sec)
	}

	return out
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = AppendLEB128u(out, uint32(len(body)))
	return append(out, body...)
}

func appendName(dst []byte, name string) []byte {
	dst = AppendLEB128u(dst, uint32(len(name)))
	return append(dst, name...)
}

// Instruction helpers for composing function bodies.

// Body concatenates instruction fragments.
func Body(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Op wraps single opcodes for use inside Body.
func Op(opcodes ...byte) []byte { return opcodes }

func I32Const(v int32) []byte {
	return AppendLEB128s([]byte{OpI32Const}, v)
}

func I64Const(v int64) []byte {
	return AppendLEB128s64([]byte{OpI64Const}, v)
}

func LocalGet(idx uint32) []byte {
	return AppendLEB128u([]byte{OpLocalGet}, idx)
}

func I32Store(align, offset uint32) []byte {
	out := AppendLEB128u([]byte{OpI32Store}, align)
	return AppendLEB128u(out, offset)
}

func MemoryGrow() []byte { return []byte{OpMemoryGrow, 0x00} }

func MemorySize() []byte { return []byte{OpMemorySize, 0x00} }

// PackedReturn emits instructions returning ptr and length packed into one
// i64 as uint64(length)<<32 | uint64(ptr), the executor's guest ABI.
func PackedReturn(ptr, length uint32) []byte {
	packed := int64(uint64(length)<<32 | uint64(ptr))
	return I64Const(packed)
}
