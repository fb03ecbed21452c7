package wasmbin

import "fmt"

var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6d}
var wasmVersion = [4]byte{0x01, 0x00, 0x00, 0x00}

// Decode parses a complete wasm binary module. It is deliberately stricter
// than a full validator needs to be about section order (the format
// requires sections 1-11 to appear in ascending id order, with any number of
// interleaved custom sections) and deliberately looser about instruction
// legality (wazero validates that at instantiation time); Decode's job is
// just to get every byte into a Go value the packer can remap and re-emit.
func Decode(data []byte) (*Module, error) {
	m, _, err := DecodeSections(data)
	return m, err
}

// DecodeSections is Decode plus a set recording exactly which section ids
// were physically present in the stream. The cartridge codec's section
// merge needs this: a Module's zero-value slices can't distinguish "this
// diff has an empty export section" from "this diff has no export section
// at all, inherit the base's" (spec.md §4.1's section-merge step), but the
// presence set can.
func DecodeSections(data []byte) (*Module, map[SectionID]bool, error) {
	r := newReader(data)

	magic, err := r.bytes(4)
	if err != nil {
		return nil, nil, fmt.Errorf("wasmbin: reading magic: %w", err)
	}
	for i := range wasmMagic {
		if magic[i] != wasmMagic[i] {
			return nil, nil, fmt.Errorf("wasmbin: not a wasm module (bad magic)")
		}
	}
	ver, err := r.bytes(4)
	if err != nil {
		return nil, nil, fmt.Errorf("wasmbin: reading version: %w", err)
	}
	for i := range wasmVersion {
		if ver[i] != wasmVersion[i] {
			return nil, nil, fmt.Errorf("wasmbin: unsupported wasm version")
		}
	}

	return decodeSectionStream(r)
}

// DecodeSectionsNoHeader decodes a bare section stream with no leading
// magic/version header — exactly the shape of a cartridge diff payload
// (spec.md §3: "the payload omits the 8-byte WebAssembly header").
func DecodeSectionsNoHeader(data []byte) (*Module, map[SectionID]bool, error) {
	return decodeSectionStream(newReader(data))
}

func decodeSectionStream(r *reader) (*Module, map[SectionID]bool, error) {
	m := &Module{}
	present := map[SectionID]bool{}
	var funcSigIndices []uint32
	var lastID byte

	for r.remaining() > 0 {
		id, err := r.byte()
		if err != nil {
			return nil, nil, fmt.Errorf("wasmbin: reading section id: %w", err)
		}
		if SectionID(id) != SecCustom {
			if id <= lastID {
				return nil, nil, fmt.Errorf("wasmbin: section %d out of order (after section %d)", id, lastID)
			}
			lastID = id
		}
		size, err := r.u32()
		if err != nil {
			return nil, nil, fmt.Errorf("wasmbin: reading section %d size: %w", id, err)
		}
		body, err := r.bytes(int(size))
		if err != nil {
			return nil, nil, fmt.Errorf("wasmbin: reading section %d body: %w", id, err)
		}
		sr := newReader(body)
		present[SectionID(id)] = true

		switch SectionID(id) {
		case SecCustom:
			// dropped intentionally
		case SecType:
			if m.Types, err = decodeTypeSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: type section: %w", err)
			}
		case SecImport:
			if m.Imports, err = decodeImportSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: import section: %w", err)
			}
		case SecFunction:
			if funcSigIndices, err = decodeFunctionSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: function section: %w", err)
			}
		case SecTable:
			if m.Tables, err = decodeTableSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: table section: %w", err)
			}
		case SecMemory:
			if m.Memories, err = decodeMemorySection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: memory section: %w", err)
			}
		case SecGlobal:
			if m.Globals, err = decodeGlobalSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: global section: %w", err)
			}
		case SecExport:
			if m.Exports, err = decodeExportSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: export section: %w", err)
			}
		case SecStart:
			idx, err := sr.u32()
			if err != nil {
				return nil, nil, fmt.Errorf("wasmbin: start section: %w", err)
			}
			m.HasStart = true
			m.Start = idx
		case SecElement:
			if m.Elements, err = decodeElementSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: element section: %w", err)
			}
		case SecCode:
			if m.Code, err = decodeCodeSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: code section: %w", err)
			}
		case SecData:
			if m.Data, err = decodeDataSection(sr); err != nil {
				return nil, nil, fmt.Errorf("wasmbin: data section: %w", err)
			}
		default:
			return nil, nil, fmt.Errorf("wasmbin: unknown section id %d", id)
		}
	}

	m.FuncTypes = funcSigIndices
	if len(m.FuncTypes) != len(m.Code) {
		return nil, nil, fmt.Errorf("wasmbin: function section declares %d functions but code section has %d bodies", len(m.FuncTypes), len(m.Code))
	}
	return m, present, nil
}

func decodeTypeSection(r *reader) ([]FuncType, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]FuncType, n)
	for i := range out {
		tag, err := r.byte()
		if err != nil {
			return nil, err
		}
		if tag != 0x60 {
			return nil, fmt.Errorf("wasmbin: expected functype tag 0x60, got 0x%02x", tag)
		}
		pc, err := r.u32()
		if err != nil {
			return nil, err
		}
		params := make([]ValType, pc)
		for j := range params {
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			params[j] = ValType(b)
		}
		rc, err := r.u32()
		if err != nil {
			return nil, err
		}
		results := make([]ValType, rc)
		for j := range results {
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			results[j] = ValType(b)
		}
		out[i] = FuncType{Params: params, Results: results}
	}
	return out, nil
}

func decodeLimits(r *reader) (MemType, error) {
	flags, err := r.byte()
	if err != nil {
		return MemType{}, err
	}
	var mt MemType
	mt.Shared = flags&0x02 != 0
	mt.Is64 = flags&0x04 != 0
	min, err := r.u32()
	if err != nil {
		return MemType{}, err
	}
	mt.Min = min
	if flags&0x01 != 0 {
		mt.HasMax = true
		if mt.Max, err = r.u32(); err != nil {
			return MemType{}, err
		}
	}
	return mt, nil
}

func decodeImportSection(r *reader) ([]Import, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Import, n)
	for i := range out {
		mod, err := r.name()
		if err != nil {
			return nil, err
		}
		field, err := r.name()
		if err != nil {
			return nil, err
		}
		kindByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		imp := Import{Module: mod, Field: field, Kind: ExternKind(kindByte)}
		switch imp.Kind {
		case ExternFunc:
			if imp.Type, err = r.u32(); err != nil {
				return nil, err
			}
		case ExternTable:
			if _, err := r.byte(); err != nil { // elem type
				return nil, err
			}
			if imp.Mem, err = decodeLimits(r); err != nil {
				return nil, err
			}
		case ExternMemory:
			if imp.Mem, err = decodeLimits(r); err != nil {
				return nil, err
			}
		case ExternGlobal:
			vt, err := r.byte()
			if err != nil {
				return nil, err
			}
			mut, err := r.byte()
			if err != nil {
				return nil, err
			}
			imp.GlobalType = ValType(vt)
			imp.GlobalMutable = mut != 0
		default:
			return nil, fmt.Errorf("wasmbin: unknown import kind %d", kindByte)
		}
		out[i] = imp
	}
	return out, nil
}

func decodeFunctionSection(r *reader) ([]uint32, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = r.u32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeTableSection(r *reader) ([]Table, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Table, n)
	for i := range out {
		et, err := r.byte()
		if err != nil {
			return nil, err
		}
		lim, err := decodeLimits(r)
		if err != nil {
			return nil, err
		}
		out[i] = Table{ElemType: ValType(et), Limits: lim}
	}
	return out, nil
}

func decodeMemorySection(r *reader) ([]MemType, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]MemType, n)
	for i := range out {
		if out[i], err = decodeLimits(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeGlobalSection(r *reader) ([]Global, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Global, n)
	for i := range out {
		vt, err := r.byte()
		if err != nil {
			return nil, err
		}
		mut, err := r.byte()
		if err != nil {
			return nil, err
		}
		init, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		out[i] = Global{Type: ValType(vt), Mutable: mut != 0, Init: init}
	}
	return out, nil
}

func decodeExportSection(r *reader) ([]Export, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Export, n)
	for i := range out {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		kind, err := r.byte()
		if err != nil {
			return nil, err
		}
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		out[i] = Export{Name: name, Kind: ExternKind(kind), Index: idx}
	}
	return out, nil
}

func decodeElementSection(r *reader) ([]Element, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Element, n)
	for i := range out {
		flags, err := r.u32()
		if err != nil {
			return nil, err
		}
		if flags != 0 {
			return nil, fmt.Errorf("wasmbin: unsupported element segment flags %d (only active funcref segments against table 0 are supported)", flags)
		}
		offset, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		cnt, err := r.u32()
		if err != nil {
			return nil, err
		}
		funcs := make([]uint32, cnt)
		for j := range funcs {
			if funcs[j], err = r.u32(); err != nil {
				return nil, err
			}
		}
		out[i] = Element{TableIndex: 0, Offset: offset, Funcs: funcs}
	}
	return out, nil
}

func decodeCodeSection(r *reader) ([]Code, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Code, n)
	for i := range out {
		size, err := r.u32()
		if err != nil {
			return nil, err
		}
		body, err := r.bytes(int(size))
		if err != nil {
			return nil, err
		}
		cr := newReader(body)
		localCount, err := cr.u32()
		if err != nil {
			return nil, err
		}
		groups := make([]LocalGroup, localCount)
		for j := range groups {
			cnt, err := cr.u32()
			if err != nil {
				return nil, err
			}
			vt, err := cr.byte()
			if err != nil {
				return nil, err
			}
			groups[j] = LocalGroup{Count: cnt, Type: ValType(vt)}
		}
		instrs, _, err := decodeInstrSeq(cr)
		if err != nil {
			return nil, err
		}
		out[i] = Code{Locals: groups, Body: instrs}
	}
	return out, nil
}

func decodeDataSection(r *reader) ([]Data, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Data, n)
	for i := range out {
		flags, err := r.u32()
		if err != nil {
			return nil, err
		}
		if flags != 0 {
			return nil, fmt.Errorf("wasmbin: unsupported data segment flags %d (only active segments against memory 0 are supported)", flags)
		}
		offset, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		n2, err := r.u32()
		if err != nil {
			return nil, err
		}
		bytes, err := r.bytes(int(n2))
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(bytes))
		copy(cp, bytes)
		out[i] = Data{MemIndex: 0, Offset: offset, Bytes: cp}
	}
	return out, nil
}
