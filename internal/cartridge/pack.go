package cartridge

import (
	"microw8/internal/basemodule"
	"microw8/internal/rangecoder"
	"microw8/internal/wasmbin"
)

// PackOptions controls the output format Pack produces.
type PackOptions struct {
	// Compress requests a tag 0x02 range-coded diff; false produces an
	// uncompressed tag 0x01 diff.
	Compress bool
	// Level is the range coder's adaption-speed level, 0-9 (spec.md §6's
	// -l/--level), ignored when Compress is false.
	Level int
}

// Pack converts a source wasm module (as produced by a compiler like
// curlywas — out of scope here, spec.md §1) into a .uw8 cartridge: it
// diffs the module against the base module, reorders functions so exported
// ones lead, and optionally range-codes the result (spec.md §4.1).
func Pack(srcWasm []byte, opts PackOptions) ([]byte, error) {
	src, err := wasmbin.Decode(srcWasm)
	if err != nil {
		return nil, packErrorf("parsing source module: %v", err)
	}
	if err := validateSource(src); err != nil {
		return nil, err
	}

	base := basemodule.Module()
	maps, usingBaseTypes, usingBaseFuncs, usingBaseGlobals := buildIndexMaps(src, base)
	diff, present := buildDiffModule(src, base, maps, usingBaseTypes, usingBaseFuncs, usingBaseGlobals)

	payload := diff.EncodeSections(present)

	if !opts.Compress {
		return append([]byte{1}, payload...), nil
	}
	coded := rangecoder.Encode(payload, opts.Level)
	out := make([]byte, 0, len(coded)+7)
	out = append(out, 2, byte(opts.Level))
	out = append(out, encodeU32LE(uint32(len(payload)))...)
	out = append(out, coded...)
	return out, nil
}

func encodeU32LE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// funcImportCount/globalImportCount count how many of a module's Import
// entries are of that kind; used to find the boundary between the imported
// and defined index-space ranges.
func funcImportCount(m *wasmbin.Module) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == wasmbin.ExternFunc {
			n++
		}
	}
	return n
}

func globalImportCount(m *wasmbin.Module) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == wasmbin.ExternGlobal {
			n++
		}
	}
	return n
}

func funcTypeEqual(a, b wasmbin.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// buildIndexMaps implements spec.md §4.1 step 3: decide whether types,
// function imports, and global imports can reuse base-module indices (and
// so be omitted from the diff), or must be remapped identically and
// emitted verbatim.
func buildIndexMaps(src, base *wasmbin.Module) (maps indexMaps, usingBaseTypes, usingBaseFuncs, usingBaseGlobals bool) {
	// Types: every source type must match some base type by shape.
	typeIdx := make([]uint32, len(src.Types))
	usingBaseTypes = true
	for i, t := range src.Types {
		found := -1
		for j, bt := range base.Types {
			if funcTypeEqual(t, bt) {
				found = j
				break
			}
		}
		if found < 0 {
			usingBaseTypes = false
			break
		}
		typeIdx[i] = uint32(found)
	}
	if !usingBaseTypes {
		for i := range typeIdx {
			typeIdx[i] = uint32(i)
		}
	}

	// Function imports: attempt to match each to a base function import by
	// (module, field, type), gated on types having been reused (spec.md
	// §4.1 step 3: "if using base types, require every function import to
	// match...").
	nFuncImports := funcImportCount(src)
	funcImportIdx := make([]uint32, nFuncImports)
	usingBaseFuncs = usingBaseTypes
	if usingBaseFuncs {
		fi := 0
		for _, imp := range src.Imports {
			if imp.Kind != wasmbin.ExternFunc {
				continue
			}
			match := -1
			for j := 0; j < basemodule.TotalFuncImports; j++ {
				if base.Imports[j].Module == imp.Module && base.Imports[j].Field == imp.Field &&
					base.Imports[j].Type == typeIdx[imp.Type] {
					match = j
					break
				}
			}
			if match < 0 {
				usingBaseFuncs = false
				break
			}
			funcImportIdx[fi] = uint32(match)
			fi++
		}
	}
	if !usingBaseFuncs {
		fi := 0
		for i, imp := range src.Imports {
			if imp.Kind != wasmbin.ExternFunc {
				continue
			}
			_ = i
			funcImportIdx[fi] = uint32(fi)
			fi++
		}
	}

	// Global imports: same policy as function imports.
	nGlobalImports := globalImportCount(src)
	globalImportIdx := make([]uint32, nGlobalImports)
	usingBaseGlobals = usingBaseTypes
	baseGlobalImports := baseGlobalImportRange(base)
	if usingBaseGlobals {
		gi := 0
		for _, imp := range src.Imports {
			if imp.Kind != wasmbin.ExternGlobal {
				continue
			}
			match := -1
			for _, j := range baseGlobalImports {
				if base.Imports[j].Module == imp.Module && base.Imports[j].Field == imp.Field &&
					base.Imports[j].GlobalType == imp.GlobalType {
					match = j
					break
				}
			}
			if match < 0 {
				usingBaseGlobals = false
				break
			}
			globalImportIdx[gi] = uint32(globalImportPosition(base, match))
			gi++
		}
	}
	if !usingBaseGlobals {
		gi := 0
		for _, imp := range src.Imports {
			if imp.Kind != wasmbin.ExternGlobal {
				continue
			}
			globalImportIdx[gi] = uint32(gi)
			gi++
		}
	}

	newFuncImportCount := nFuncImports
	if usingBaseFuncs {
		newFuncImportCount = basemodule.TotalFuncImports
	}
	newGlobalImportCount := nGlobalImports
	if usingBaseGlobals {
		newGlobalImportCount = basemodule.NumReservedGlobals
	}

	// Defined functions are reordered so exported ones lead (step 3:
	// "function body order"). Build the permutation, then the full
	// func-index map (imports via funcImportIdx, defined via the
	// permutation's inverse).
	order := exportFirstOrder(src)
	funcIdx := make([]uint32, src.FuncCount())
	fi := 0
	for i, imp := range src.Imports {
		_ = i
		if imp.Kind == wasmbin.ExternFunc {
			funcIdx[fi] = funcImportIdx[fi]
			fi++
		}
	}
	for newPos, oldDefinedIdx := range order {
		oldAbs := nFuncImports + oldDefinedIdx
		funcIdx[oldAbs] = uint32(newFuncImportCount + newPos)
	}

	// Defined globals keep relative order, shifted by the new import count.
	nGlobalDefs := len(src.Globals)
	globalIdx := make([]uint32, nGlobalImports+nGlobalDefs)
	copy(globalIdx, globalImportIdx)
	for i := 0; i < nGlobalDefs; i++ {
		globalIdx[nGlobalImports+i] = uint32(newGlobalImportCount + i)
	}

	maps = indexMaps{typeIdx: typeIdx, funcIdx: funcIdx, globalIdx: globalIdx}
	return maps, usingBaseTypes, usingBaseFuncs, usingBaseGlobals
}

func baseGlobalImportRange(base *wasmbin.Module) []int {
	var out []int
	for i, imp := range base.Imports {
		if imp.Kind == wasmbin.ExternGlobal {
			out = append(out, i)
		}
	}
	return out
}

func globalImportPosition(base *wasmbin.Module, importIdx int) int {
	pos := 0
	for i, imp := range base.Imports {
		if i == importIdx {
			return pos
		}
		if imp.Kind == wasmbin.ExternGlobal {
			pos++
		}
	}
	return pos
}

// exportFirstOrder returns, for the module's defined (non-imported)
// functions, a permutation of their original indices (0-based within the
// defined range) with exported functions moved to the front, relative
// order preserved within each group — spec.md §4.1 step 3's "function body
// order" rule, which gives exported functions the lowest indices and so
// compresses better (low LEB128 values).
func exportFirstOrder(src *wasmbin.Module) []int {
	nDefined := len(src.FuncTypes)
	exported := make([]bool, nDefined)
	nImports := funcImportCount(src)
	for _, e := range src.Exports {
		if e.Kind == wasmbin.ExternFunc {
			if idx := int(e.Index) - nImports; idx >= 0 && idx < nDefined {
				exported[idx] = true
			}
		}
	}
	var order []int
	for i := 0; i < nDefined; i++ {
		if exported[i] {
			order = append(order, i)
		}
	}
	for i := 0; i < nDefined; i++ {
		if !exported[i] {
			order = append(order, i)
		}
	}
	return order
}

// buildDiffModule assembles the packed Module and the set of section ids
// that must actually be emitted (spec.md §4.1 step 4's "drop sections
// whose content equals the base's content").
func buildDiffModule(src, base *wasmbin.Module, maps indexMaps, usingBaseTypes, usingBaseFuncs, usingBaseGlobals bool) (*wasmbin.Module, map[wasmbin.SectionID]bool) {
	out := &wasmbin.Module{}
	present := map[wasmbin.SectionID]bool{}

	if !usingBaseTypes {
		out.Types = src.Types
		present[wasmbin.SecType] = true
	}

	reuseWholeImportSection := usingBaseFuncs && usingBaseGlobals && memoryImportMatchesBase(src, base)
	if !reuseWholeImportSection {
		out.Imports = remapImports(src, maps)
		present[wasmbin.SecImport] = true
	}

	// Defined functions, reordered.
	order := reorderedDefinedIndices(src)
	out.FuncTypes = make([]uint32, len(order))
	out.Code = make([]wasmbin.Code, len(order))
	for newPos, oldIdx := range order {
		out.FuncTypes[newPos] = maps.typeIdx[src.FuncTypes[oldIdx]]
		c := src.Code[oldIdx]
		out.Code[newPos] = wasmbin.Code{Locals: c.Locals, Body: remapExpr(c.Body, maps)}
	}
	present[wasmbin.SecFunction] = true
	present[wasmbin.SecCode] = true

	if len(src.Tables) > 0 {
		out.Tables = src.Tables
		present[wasmbin.SecTable] = true
	}

	out.Globals = make([]wasmbin.Global, len(src.Globals))
	for i, g := range src.Globals {
		out.Globals[i] = wasmbin.Global{Type: g.Type, Mutable: g.Mutable, Init: remapExpr(g.Init, maps)}
	}
	if len(out.Globals) > 0 {
		present[wasmbin.SecGlobal] = true
	}

	out.Exports = remapExports(src, maps)
	if !exportsEqualBaseUpd(out.Exports) {
		present[wasmbin.SecExport] = true
	}

	if src.HasStart {
		out.HasStart = true
		out.Start = maps.funcIdx[src.Start]
		present[wasmbin.SecStart] = true
	}

	if len(src.Elements) > 0 {
		out.Elements = make([]wasmbin.Element, len(src.Elements))
		for i, e := range src.Elements {
			funcs := make([]uint32, len(e.Funcs))
			for j, f := range e.Funcs {
				funcs[j] = maps.funcIdx[f]
			}
			out.Elements[i] = wasmbin.Element{TableIndex: 0, Offset: remapExpr(e.Offset, maps), Funcs: funcs}
		}
		present[wasmbin.SecElement] = true
	}

	if len(src.Data) > 0 {
		out.Data = make([]wasmbin.Data, len(src.Data))
		for i, d := range src.Data {
			out.Data[i] = wasmbin.Data{MemIndex: 0, Offset: remapExpr(d.Offset, maps), Bytes: d.Bytes}
		}
		present[wasmbin.SecData] = true
	}

	return out, present
}

func reorderedDefinedIndices(src *wasmbin.Module) []int { return exportFirstOrder(src) }

func memoryImportMatchesBase(src, base *wasmbin.Module) bool {
	var srcMem, baseMem *wasmbin.Import
	for i := range src.Imports {
		if src.Imports[i].Kind == wasmbin.ExternMemory {
			srcMem = &src.Imports[i]
		}
	}
	for i := range base.Imports {
		if base.Imports[i].Kind == wasmbin.ExternMemory {
			baseMem = &base.Imports[i]
		}
	}
	if srcMem == nil || baseMem == nil {
		return false
	}
	return srcMem.Mem == baseMem.Mem
}

func remapImports(src *wasmbin.Module, maps indexMaps) []wasmbin.Import {
	out := make([]wasmbin.Import, len(src.Imports))
	fi, gi := 0, 0
	for i, imp := range src.Imports {
		switch imp.Kind {
		case wasmbin.ExternFunc:
			out[i] = wasmbin.Import{Module: imp.Module, Field: imp.Field, Kind: imp.Kind, Type: maps.typeIdx[imp.Type]}
			fi++
		case wasmbin.ExternGlobal:
			out[i] = imp
			gi++
		default:
			out[i] = imp
		}
	}
	return out
}

func remapExports(src *wasmbin.Module, maps indexMaps) []wasmbin.Export {
	out := make([]wasmbin.Export, len(src.Exports))
	for i, e := range src.Exports {
		ne := e
		if e.Kind == wasmbin.ExternFunc {
			ne.Index = maps.funcIdx[e.Index]
		} else if e.Kind == wasmbin.ExternGlobal {
			ne.Index = maps.globalIdx[e.Index]
		}
		out[i] = ne
	}
	return out
}

// exportsEqualBaseUpd reports whether exports is exactly the single-entry
// {"upd", func, basemodule.UpdFuncIndex()} the base module itself declares
// — the one export-section shape spec.md §4.1 step 4 calls out as safe to
// drop because the merged module inherits an identical one from the base.
func exportsEqualBaseUpd(exports []wasmbin.Export) bool {
	if len(exports) != 1 {
		return false
	}
	e := exports[0]
	return e.Name == "upd" && e.Kind == wasmbin.ExternFunc && int(e.Index) == basemodule.UpdFuncIndex()
}
