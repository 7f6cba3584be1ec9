package wasm

import (
	"bytes"
	"fmt"
	"io"
)

// Binary format constants
const (
	Magic   uint32 = 0x6d736100 // "\0asm"
	Version uint32 = 1
)

// Section IDs
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionTable    byte = 4
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionStart    byte = 8
	SectionElement  byte = 9
	SectionCode     byte = 10
	SectionData     byte = 11
)

// ExportKind identifies what an export entry refers to.
type ExportKind byte

const (
	KindFunc   ExportKind = 0
	KindTable  ExportKind = 1
	KindMemory ExportKind = 2
	KindGlobal ExportKind = 3
)

// Export is one entry of a module's export section.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// ModuleInfo is the slice of module metadata the executor needs before
// handing bytecode to an engine: the declared memory shape drives the heap
// strategy arithmetic, and the export list backs method lookup surfaces.
type ModuleInfo struct {
	Exports       []Export
	InitialPages  uint32
	MaximumPages  uint32
	HasMaximum    bool
	HasMemory     bool
	ImportsMemory bool
}

// ExportedFunctions returns the names of function exports, in declaration
// order.
func (info *ModuleInfo) ExportedFunctions() []string {
	var names []string
	for _, e := range info.Exports {
		if e.Kind == KindFunc {
			names = append(names, e.Name)
		}
	}
	return names
}

// ExportsFunction reports whether name is an exported function.
func (info *ModuleInfo) ExportsFunction(name string) bool {
	for _, e := range info.Exports {
		if e.Kind == KindFunc && e.Name == name {
			return true
		}
	}
	return false
}

// ExportsGlobal reports whether name is an exported global.
func (info *ModuleInfo) ExportsGlobal(name string) bool {
	for _, e := range info.Exports {
		if e.Kind == KindGlobal && e.Name == name {
			return true
		}
	}
	return false
}

// Inspect scans code's section structure and returns the module metadata.
// It validates framing (magic, version, section bounds) but not function
// bodies; full validation belongs to the engine.
func Inspect(code []byte) (*ModuleInfo, error) {
	r := bytes.NewReader(code)

	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24
	version := uint32(header[4]) | uint32(header[5])<<8 | uint32(header[6])<<16 | uint32(header[7])<<24
	if magic != Magic {
		return nil, fmt.Errorf("invalid magic number %#x", magic)
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported binary version %d", version)
	}

	info := &ModuleInfo{}
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading section id: %w", err)
		}
		size, err := ReadLEB128u(r)
		if err != nil {
			return nil, fmt.Errorf("reading section size: %w", err)
		}
		if uint64(size) > uint64(r.Len()) {
			return nil, fmt.Errorf("section %d of %d bytes overruns module", id, size)
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("reading section %d: %w", id, err)
		}

		switch id {
		case SectionImport:
			if err := info.scanImports(bytes.NewReader(body)); err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
		case SectionMemory:
			if err := info.scanMemories(bytes.NewReader(body)); err != nil {
				return nil, fmt.Errorf("memory section: %w", err)
			}
		case SectionExport:
			if err := info.scanExports(bytes.NewReader(body)); err != nil {
				return nil, fmt.Errorf("export section: %w", err)
			}
		}
	}
	return info, nil
}

func (info *ModuleInfo) scanImports(r *bytes.Reader) error {
	count, err := ReadLEB128u(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if _, err := readName(r); err != nil { // module
			return err
		}
		if _, err := readName(r); err != nil { // field
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch ExportKind(kind) {
		case KindFunc:
			if _, err := ReadLEB128u(r); err != nil {
				return err
			}
		case KindTable:
			if _, err := r.ReadByte(); err != nil { // reftype
				return err
			}
			if _, _, _, err := readLimits(r); err != nil {
				return err
			}
		case KindMemory:
			min, max, hasMax, err := readLimits(r)
			if err != nil {
				return err
			}
			info.ImportsMemory = true
			info.HasMemory = true
			info.InitialPages = min
			info.MaximumPages = max
			info.HasMaximum = hasMax
		case KindGlobal:
			if _, err := r.ReadByte(); err != nil { // valtype
				return err
			}
			if _, err := r.ReadByte(); err != nil { // mutability
				return err
			}
		default:
			return fmt.Errorf("unknown import kind %d", kind)
		}
	}
	return nil
}

func (info *ModuleInfo) scanMemories(r *bytes.Reader) error {
	count, err := ReadLEB128u(r)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	min, max, hasMax, err := readLimits(r)
	if err != nil {
		return err
	}
	info.HasMemory = true
	info.InitialPages = min
	info.MaximumPages = max
	info.HasMaximum = hasMax
	return nil
}

func (info *ModuleInfo) scanExports(r *bytes.Reader) error {
	count, err := ReadLEB128u(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := ReadLEB128u(r)
		if err != nil {
			return err
		}
		info.Exports = append(info.Exports, Export{Name: name, Kind: ExportKind(kind), Index: idx})
	}
	return nil
}

func readName(r *bytes.Reader) (string, error) {
	length, err := ReadLEB128u(r)
	if err != nil {
		return "", err
	}
	if uint64(length) > uint64(r.Len()) {
		return "", fmt.Errorf("name of %d bytes overruns section", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readLimits(r *bytes.Reader) (min, max uint32, hasMax bool, err error) {
	flags, err := ReadLEB128u(r)
	if err != nil {
		return 0, 0, false, err
	}
	min, err = ReadLEB128u(r)
	if err != nil {
		return 0, 0, false, err
	}
	if flags&1 != 0 {
		max, err = ReadLEB128u(r)
		if err != nil {
			return 0, 0, false, err
		}
		hasMax = true
	}
	return min, max, hasMax, nil
}
