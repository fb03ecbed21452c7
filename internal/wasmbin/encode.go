package wasmbin

// Encode serializes a Module back to a wasm binary, re-emitting sections in
// the canonical ascending order. Sections with zero entries are omitted
// entirely, matching how a real wasm producer (and the base module
// generator) behaves — an empty element or global section is simply absent.
func (m *Module) Encode() []byte {
	w := &writer{}
	w.bytes(wasmMagic[:])
	w.bytes(wasmVersion[:])
	w.bytes(m.EncodeSections(nil))
	return w.buf
}

// EncodeSections writes only the section stream (no magic/version header),
// the shape a cartridge diff payload takes. present, if non-nil, restricts
// output to exactly those section ids (used by the packer to omit sections
// whose content is already supplied by the base module); a nil present
// writes every non-empty section, same as a complete module encode.
func (m *Module) EncodeSections(present map[SectionID]bool) []byte {
	w := &writer{}
	include := func(id SectionID) bool {
		if present == nil {
			return true
		}
		return present[id]
	}

	if include(SecType) && len(m.Types) > 0 {
		writeSection(w, SecType, func(w *writer) { encodeTypeSection(w, m.Types) })
	}
	if include(SecImport) && len(m.Imports) > 0 {
		writeSection(w, SecImport, func(w *writer) { encodeImportSection(w, m.Imports) })
	}
	if include(SecFunction) && len(m.FuncTypes) > 0 {
		writeSection(w, SecFunction, func(w *writer) {
			writeVec(w, len(m.FuncTypes), func(w *writer, i int) { w.u32(m.FuncTypes[i]) })
		})
	}
	if include(SecTable) && len(m.Tables) > 0 {
		writeSection(w, SecTable, func(w *writer) { encodeTableSection(w, m.Tables) })
	}
	if include(SecMemory) && len(m.Memories) > 0 {
		writeSection(w, SecMemory, func(w *writer) {
			writeVec(w, len(m.Memories), func(w *writer, i int) { encodeLimits(w, m.Memories[i]) })
		})
	}
	if include(SecGlobal) && len(m.Globals) > 0 {
		writeSection(w, SecGlobal, func(w *writer) { encodeGlobalSection(w, m.Globals) })
	}
	if include(SecExport) && len(m.Exports) > 0 {
		writeSection(w, SecExport, func(w *writer) { encodeExportSection(w, m.Exports) })
	}
	if include(SecStart) && m.HasStart {
		writeSection(w, SecStart, func(w *writer) { w.u32(m.Start) })
	}
	if include(SecElement) && len(m.Elements) > 0 {
		writeSection(w, SecElement, func(w *writer) { encodeElementSection(w, m.Elements) })
	}
	if include(SecCode) && len(m.Code) > 0 {
		writeSection(w, SecCode, func(w *writer) { encodeCodeSection(w, m.Code) })
	}
	if include(SecData) && len(m.Data) > 0 {
		writeSection(w, SecData, func(w *writer) { encodeDataSection(w, m.Data) })
	}

	return w.buf
}

func writeSection(w *writer, id SectionID, body func(w *writer)) {
	w.byte(byte(id))
	withSizePrefix(w, body)
}

func encodeTypeSection(w *writer, types []FuncType) {
	writeVec(w, len(types), func(w *writer, i int) {
		t := types[i]
		w.byte(0x60)
		writeVec(w, len(t.Params), func(w *writer, j int) { w.byte(byte(t.Params[j])) })
		writeVec(w, len(t.Results), func(w *writer, j int) { w.byte(byte(t.Results[j])) })
	})
}

func encodeLimits(w *writer, mt MemType) {
	var flags byte
	if mt.HasMax {
		flags |= 0x01
	}
	if mt.Shared {
		flags |= 0x02
	}
	if mt.Is64 {
		flags |= 0x04
	}
	w.byte(flags)
	w.u32(mt.Min)
	if mt.HasMax {
		w.u32(mt.Max)
	}
}

func encodeImportSection(w *writer, imports []Import) {
	writeVec(w, len(imports), func(w *writer, i int) {
		imp := imports[i]
		w.name(imp.Module)
		w.name(imp.Field)
		w.byte(byte(imp.Kind))
		switch imp.Kind {
		case ExternFunc:
			w.u32(imp.Type)
		case ExternTable:
			w.byte(0x70) // funcref
			encodeLimits(w, imp.Mem)
		case ExternMemory:
			encodeLimits(w, imp.Mem)
		case ExternGlobal:
			w.byte(byte(imp.GlobalType))
			if imp.GlobalMutable {
				w.byte(1)
			} else {
				w.byte(0)
			}
		}
	})
}

func encodeTableSection(w *writer, tables []Table) {
	writeVec(w, len(tables), func(w *writer, i int) {
		w.byte(byte(tables[i].ElemType))
		encodeLimits(w, tables[i].Limits)
	})
}

func encodeGlobalSection(w *writer, globals []Global) {
	writeVec(w, len(globals), func(w *writer, i int) {
		g := globals[i]
		w.byte(byte(g.Type))
		if g.Mutable {
			w.byte(1)
		} else {
			w.byte(0)
		}
		encodeExpr(w, g.Init)
	})
}

func encodeExportSection(w *writer, exports []Export) {
	writeVec(w, len(exports), func(w *writer, i int) {
		e := exports[i]
		w.name(e.Name)
		w.byte(byte(e.Kind))
		w.u32(e.Index)
	})
}

func encodeElementSection(w *writer, elems []Element) {
	writeVec(w, len(elems), func(w *writer, i int) {
		e := elems[i]
		w.u32(0) // flags: active, table 0, funcref
		encodeExpr(w, e.Offset)
		writeVec(w, len(e.Funcs), func(w *writer, j int) { w.u32(e.Funcs[j]) })
	})
}

func encodeCodeSection(w *writer, code []Code) {
	writeVec(w, len(code), func(w *writer, i int) {
		c := code[i]
		withSizePrefix(w, func(w *writer) {
			writeVec(w, len(c.Locals), func(w *writer, j int) {
				w.u32(c.Locals[j].Count)
				w.byte(byte(c.Locals[j].Type))
			})
			encodeInstrSeq(w, c.Body)
		})
	})
}

func encodeDataSection(w *writer, data []Data) {
	writeVec(w, len(data), func(w *writer, i int) {
		d := data[i]
		w.u32(0) // flags: active, memory 0
		encodeExpr(w, d.Offset)
		w.u32(uint32(len(d.Bytes)))
		w.bytes(d.Bytes)
	})
}
