// Package wasmbin is a small, purpose-built binary WebAssembly reader and
// writer. It only understands the subset of the format the cartridge codec
// needs: the MVP module shape plus sign-extension, bulk-memory
// copy/fill, trunc-sat, and call_indirect — the "instruction whitelist" from
// spec.md's glossary. It is not a general wasm toolchain; wazero (the actual
// execution engine) does its own, complete validation at instantiation time.
package wasmbin

import "fmt"

// ValType is a wasm value type encoded as its single-byte wire tag.
type ValType byte

const (
	ValI32 ValType = 0x7f
	ValI64 ValType = 0x7e
	ValF32 ValType = 0x7d
	ValF64 ValType = 0x7c
	ValV128 ValType = 0x7b
)

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// FuncType is a WebAssembly function signature. The base module only ever
// has zero or one results, matching spec.md's "arity 0-5, result
// void/I32/F32" base type table, but the decoder accepts any parameter and
// result count so a hand-authored cartridge source module isn't artificially
// restricted before the base-type-reuse check runs (Pack's validation pass
// rejects types with more than one result).
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (t FuncType) equalShape(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// SectionID is a top-level module section identifier, in the order the
// format requires them to appear.
type SectionID byte

const (
	SecCustom   SectionID = 0
	SecType     SectionID = 1
	SecImport   SectionID = 2
	SecFunction SectionID = 3
	SecTable    SectionID = 4
	SecMemory   SectionID = 5
	SecGlobal   SectionID = 6
	SecExport   SectionID = 7
	SecStart    SectionID = 8
	SecElement  SectionID = 9
	SecCode     SectionID = 10
	SecData     SectionID = 11
)

// ExternKind tags an import or export as referring to a function, table,
// memory, or global.
type ExternKind byte

const (
	ExternFunc   ExternKind = 0
	ExternTable  ExternKind = 1
	ExternMemory ExternKind = 2
	ExternGlobal ExternKind = 3
)

// Import describes a single imported item. Func, Memory and Global imports
// are meaningful for the base ABI (spec.md §3); the Table case (funcref
// element type, limits kept in Mem) is carried so a verbatim-copied import
// section round-trips, even though Pack rejects source modules that import
// a table.
type Import struct {
	Module string
	Field  string
	Kind   ExternKind
	// Type is the type-section index for ExternFunc, unused otherwise.
	Type uint32
	Mem  MemType
	// GlobalType/GlobalMutable only apply to ExternGlobal imports.
	GlobalType    ValType
	GlobalMutable bool
}

// MemType is a memory's limits. MicroW8 memories are never 64-bit and never
// shared (spec.md §4.1 step 2 rejects both).
type MemType struct {
	Min     uint32
	Max     uint32
	HasMax  bool
	Shared  bool
	Is64    bool
}

// Export names an exported item. MicroW8 cartridges export at most
// upd/snd/start (spec.md §6); exporting tables, memories, or globals is
// outside the ABI and the codec rejects it (see Pack's validation pass). The
// platform and loader modules, which are never packed, also export memory
// and globals.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// Global is a module-private global definition (not an import). The base
// module defines none; the generated platform module defines its reserved
// constants and its RNG, text-cursor, colour and previous-gamepad state; a
// cartridge source module may define its own, which the packer carries
// through.
type Global struct {
	Type    ValType
	Mutable bool
	Init    []Instr
}

// Element is an active element segment populating table 0 with function
// indices, constrained to spec.md §4.1's "active only, funcref, constant i32
// offset, table 0".
type Element struct {
	TableIndex uint32
	Offset     []Instr
	Funcs      []uint32
}

// Data is an active data segment, used by the platform module to seed the
// default palette/font bytes and by packed cartridges for static memory
// initializers.
type Data struct {
	MemIndex uint32
	Offset   []Instr
	Bytes    []byte
}

// Code is one function body: its locals (grouped by run, as the format
// requires) and its instruction stream.
type Code struct {
	Locals []LocalGroup
	Body   []Instr
}

type LocalGroup struct {
	Count uint32
	Type  ValType
}

// Table is a single table definition. MicroW8's instruction whitelist only
// ever needs a funcref table for call_indirect dispatch (spec.md §4.1 step
// 2: "at most one table, funcref").
type Table struct {
	ElemType ValType // always a reftype tag (funcref = 0x70) in practice
	Limits   MemType
}
