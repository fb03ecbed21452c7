package cartridge

import "microw8/internal/wasmbin"

// indexMaps bundles every index-space remapping Pack computes before
// re-emitting code: old indices (as decoded from the source module) to new
// indices (as they'll appear in the packed diff, whether base-reused or
// identity).
type indexMaps struct {
	typeIdx   []uint32 // source type index -> new type index
	funcIdx   []uint32 // source function index (imports+defined, in decode order) -> new function index
	globalIdx []uint32 // source global index (imports+defined, in decode order) -> new global index
}

// remapExpr rewrites every FuncIdx/TypeIdx(call_indirect only)/GlobalIdx
// reference in an instruction sequence (recursing into block/loop/if
// bodies), leaving local indices, constants, and everything else alone.
func remapExpr(body []wasmbin.Instr, m indexMaps) []wasmbin.Instr {
	out := make([]wasmbin.Instr, len(body))
	for i, ins := range body {
		out[i] = remapInstr(ins, m)
	}
	return out
}

func remapInstr(ins wasmbin.Instr, m indexMaps) wasmbin.Instr {
	switch ins.Op {
	case wasmbin.OpCall:
		ins.FuncIdx = m.funcIdx[ins.FuncIdx]
	case wasmbin.OpCallIndirect:
		ins.TypeIdx = m.typeIdx[ins.TypeIdx]
	case wasmbin.OpGlobalGet, wasmbin.OpGlobalSet:
		ins.GlobalIdx = m.globalIdx[ins.GlobalIdx]
	}
	if ins.Then != nil {
		ins.Then = remapExpr(ins.Then, m)
	}
	if ins.Else != nil {
		ins.Else = remapExpr(ins.Else, m)
	}
	return ins
}
