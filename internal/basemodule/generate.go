package basemodule

import (
	"sync"

	"microw8/internal/memmap"
	"microw8/internal/wasmbin"
)

// Build regenerates the base module from the descriptor in descriptor.go.
// It is deterministic: calling it twice yields byte-identical output, which
// is the property the cartridge codec's section-merge and the in-sandbox
// loader both depend on (spec.md §9 "Section-merge encoding").
func Build() *wasmbin.Module {
	m := &wasmbin.Module{Types: append([]wasmbin.FuncType(nil), Types...)}

	for i := 0; i < TotalFuncImports; i++ {
		m.Imports = append(m.Imports, wasmbin.Import{
			Module: "env",
			Field:  FuncImportName(i),
			Kind:   wasmbin.ExternFunc,
			Type:   uint32(funcImportType(i)),
		})
	}

	m.Imports = append(m.Imports, wasmbin.Import{
		Module: "env",
		Field:  "memory",
		Kind:   wasmbin.ExternMemory,
		Mem:    wasmbin.MemType{Min: memmap.NumPages, HasMax: true, Max: memmap.NumPages},
	})

	for i := 0; i < NumReservedGlobals; i++ {
		m.Imports = append(m.Imports, wasmbin.Import{
			Module:        "env",
			Field:         "g_reserved" + reservedGlobalSuffix(i),
			Kind:          wasmbin.ExternGlobal,
			GlobalType:    wasmbin.ValI32,
			GlobalMutable: false,
		})
	}

	// A single defined function, the base module's "upd" export: an empty
	// body. Real cartridges always replace it; the base module only needs
	// one to have a valid, instantiable sanity artifact (spec.md §2).
	m.FuncTypes = []uint32{TypeVoid}
	m.Code = []wasmbin.Code{{}}
	m.Exports = []wasmbin.Export{{Name: "upd", Kind: wasmbin.ExternFunc, Index: uint32(UpdFuncIndex())}}

	return m
}

func funcImportType(i int) int {
	if i < len(NamedImports) {
		return NamedImports[i].Type
	}
	return TypeVoid
}

func reservedGlobalSuffix(i int) string {
	// Matches descriptor.reservedName's plain decimal formatting without
	// importing strconv twice; kept tiny and local to this file.
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}

// UpdFuncIndex is the function index of the base module's own defined "upd"
// function, i.e. the first index in the defined-function range (after every
// imported function).
func UpdFuncIndex() int { return TotalFuncImports }

// GlobalBaseIndex is the global index of g_reserved0, i.e. the start of the
// imported-global index space (there are no other global imports).
const GlobalBaseIndex = 0

// MemoryImportIndex is always 0: the base ABI declares exactly one memory
// import.
const MemoryImportIndex = 0

var (
	cachedOnce   sync.Once
	cachedModule *wasmbin.Module
	cachedBytes  []byte
)

// Module returns the shared, memoized base Module value. Callers must treat
// it as read-only; Build() is available directly for callers (like tests)
// that need their own independent copy to mutate.
func Module() *wasmbin.Module {
	cachedOnce.Do(func() {
		cachedModule = Build()
		cachedBytes = cachedModule.Encode()
	})
	return cachedModule
}

// Bytes returns the canonical wasm encoding of the base module, used both
// as the decoder prior for section-merge and as a host-side sanity artifact
// (it must itself decode and validate as a wasm module).
func Bytes() []byte {
	Module()
	return cachedBytes
}
