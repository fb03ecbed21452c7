package cartridge

import "microw8/internal/wasmbin"

// mergeSections combines a diff module's physically-present sections with
// the base module's sections for everything the diff omitted — spec.md
// §4.1 step 4's "section-merge decoding": the loader never assembles a
// whole new module field by field, it just takes each section wholesale
// from whichever side actually declared it.
func mergeSections(base, diff *wasmbin.Module, present map[wasmbin.SectionID]bool) *wasmbin.Module {
	out := &wasmbin.Module{}

	if present[wasmbin.SecType] {
		out.Types = diff.Types
	} else {
		out.Types = base.Types
	}

	if present[wasmbin.SecImport] {
		out.Imports = diff.Imports
	} else {
		out.Imports = base.Imports
	}

	if present[wasmbin.SecFunction] {
		out.FuncTypes = diff.FuncTypes
	} else {
		out.FuncTypes = base.FuncTypes
	}

	if present[wasmbin.SecTable] {
		out.Tables = diff.Tables
	} else {
		out.Tables = base.Tables
	}

	if present[wasmbin.SecGlobal] {
		out.Globals = diff.Globals
	} else {
		out.Globals = base.Globals
	}

	if present[wasmbin.SecExport] {
		out.Exports = diff.Exports
	} else {
		out.Exports = base.Exports
	}

	if present[wasmbin.SecStart] {
		out.HasStart = diff.HasStart
		out.Start = diff.Start
	} else {
		out.HasStart = base.HasStart
		out.Start = base.Start
	}

	if present[wasmbin.SecElement] {
		out.Elements = diff.Elements
	} else {
		out.Elements = base.Elements
	}

	if present[wasmbin.SecCode] {
		out.Code = diff.Code
	} else {
		out.Code = base.Code
	}

	if present[wasmbin.SecData] {
		out.Data = diff.Data
	} else {
		out.Data = base.Data
	}

	return out
}
