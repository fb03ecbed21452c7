package wasmbin

// Module is the fully parsed, in-memory form of a wasm binary: every section
// decoded into Go slices, ready for the index-remapping and section-merge
// operations the cartridge codec performs. Custom sections (names, producer
// info) are dropped on decode and never re-emitted — cartridges don't carry
// DWARF-style metadata and the base module doesn't either.
type Module struct {
	Types   []FuncType
	Imports []Import

	// FuncTypes holds, for each *defined* (non-imported) function in order,
	// the index into Types. len(FuncTypes) == len(Code).
	FuncTypes []uint32
	Code      []Code

	Tables  []Table
	Memories []MemType
	Globals []Global
	Exports []Export

	HasStart bool
	Start    uint32

	Elements []Element
	Data     []Data
}

// FuncCount returns the total number of functions in the function index
// space: imported functions first, then defined ones, matching the module
// linking order the format requires.
func (m *Module) FuncCount() int {
	n := len(m.FuncTypes)
	for _, imp := range m.Imports {
		if imp.Kind == ExternFunc {
			n++
		}
	}
	return n
}

// ImportedFuncCount returns how many of the function index space's entries
// are imports, i.e. the index the first locally defined function occupies.
func (m *Module) ImportedFuncCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternFunc {
			n++
		}
	}
	return n
}

// ImportedGlobalCount mirrors ImportedFuncCount for the global index space.
func (m *Module) ImportedGlobalCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternGlobal {
			n++
		}
	}
	return n
}
