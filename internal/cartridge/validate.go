package cartridge

import "microw8/internal/wasmbin"

// validateSource checks the structural constraints spec.md §4.1 step 2
// requires of a source module before packing: a single imported (never
// defined) env.memory of the right shape, at most one funcref table, and
// every instruction drawn from the whitelist.
func validateSource(m *wasmbin.Module) error {
	if len(m.Memories) != 0 {
		return packErrorf("source module defines %d memories; memory must be imported, not defined", len(m.Memories))
	}

	for i, t := range m.Types {
		if len(t.Results) > 1 {
			return packErrorf("type %d has %d results; multi-value is not supported", i, len(t.Results))
		}
	}
	for _, e := range m.Exports {
		if e.Kind != wasmbin.ExternFunc {
			return packErrorf("export %q is not a function; only function exports are supported", e.Name)
		}
	}

	var memImport *wasmbin.Import
	for i := range m.Imports {
		if m.Imports[i].Kind == wasmbin.ExternMemory {
			if memImport != nil {
				return packErrorf("source module imports more than one memory")
			}
			memImport = &m.Imports[i]
		}
	}
	if memImport == nil {
		return packErrorf("source module imports no memory (env.memory is required)")
	}
	if memImport.Module != "env" || memImport.Field != "memory" {
		return packErrorf("memory import must be env.memory, got %s.%s", memImport.Module, memImport.Field)
	}
	if memImport.Mem.Shared {
		return packErrorf("env.memory must not be shared")
	}
	if memImport.Mem.Is64 {
		return packErrorf("env.memory must not be a 64-bit memory")
	}
	if memImport.Mem.Min > 4 {
		return packErrorf("env.memory initial size %d pages exceeds the base memory size (4 pages)", memImport.Mem.Min)
	}

	if len(m.Tables) > 1 {
		return packErrorf("source module defines %d tables, at most one is allowed", len(m.Tables))
	}
	for _, t := range m.Tables {
		if t.ElemType != 0x70 {
			return packErrorf("table element type must be funcref")
		}
	}
	for _, imp := range m.Imports {
		if imp.Kind == wasmbin.ExternTable {
			return packErrorf("source module imports a table; tables must be defined locally")
		}
	}
	for _, e := range m.Elements {
		if e.TableIndex != 0 {
			return packErrorf("element segment targets table %d, only table 0 is supported", e.TableIndex)
		}
		if !isConstI32Expr(e.Offset) {
			return packErrorf("element segment offset must be a constant i32 expression")
		}
	}
	for _, d := range m.Data {
		if d.MemIndex != 0 {
			return packErrorf("data segment targets memory %d, only memory 0 is supported", d.MemIndex)
		}
		if !isConstI32Expr(d.Offset) {
			return packErrorf("data segment offset must be a constant i32 expression")
		}
	}

	for i, c := range m.Code {
		if err := checkInstrSeqWhitelisted(c.Body); err != nil {
			return packErrorf("function %d: %w", i, err)
		}
	}
	for i, g := range m.Globals {
		if err := checkInstrSeqWhitelisted(g.Init); err != nil {
			return packErrorf("global %d initializer: %w", i, err)
		}
	}

	return nil
}

func isConstI32Expr(expr []wasmbin.Instr) bool {
	return len(expr) == 1 && (expr[0].Op == wasmbin.OpI32Const || expr[0].Op == wasmbin.OpGlobalGet)
}

// checkInstrSeqWhitelisted rejects any instruction outside the "instruction
// whitelist" the glossary names: MVP integer/float core, sign-extension,
// trunc-sat, bulk-memory copy/fill, SIMD128, and call_indirect. In practice
// that's everything wasmbin's decoder itself understands except
// multi-memory and multi-value, both rejected by validateSource: the latter
// by refusing any type-table entry with more than one result. Block types
// are not inspected here, so a block whose type index names a type with
// parameters (but at most one result) passes.
func checkInstrSeqWhitelisted(body []wasmbin.Instr) error {
	for _, ins := range body {
		if err := checkInstrWhitelisted(ins); err != nil {
			return err
		}
	}
	return nil
}

func checkInstrWhitelisted(ins wasmbin.Instr) error {
	switch ins.Op {
	case wasmbin.OpPrefixFC:
		switch ins.Sub {
		case 0, 1, 2, 3, 4, 5, 6, 7, wasmbin.SubMemoryCopy, wasmbin.SubMemoryFill:
		default:
			return packErrorf("unsupported bulk-memory/trunc-sat sub-opcode %d", ins.Sub)
		}
	case wasmbin.OpPrefixFD:
		// The whole SIMD128 encoding space is whitelisted.
	}
	if err := checkInstrSeqWhitelisted(ins.Then); err != nil {
		return err
	}
	if err := checkInstrSeqWhitelisted(ins.Else); err != nil {
		return err
	}
	return nil
}
