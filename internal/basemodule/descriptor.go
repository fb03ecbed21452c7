// Package basemodule holds the canonical, format-version-keyed description
// of the MicroW8 platform ABI: the function types, named function imports,
// the 16 reserved global imports, and the memory import every cartridge is
// compiled against (spec.md §2, §3). It is the decoder prior the cartridge
// codec diffs against and the ABI contract the sandbox host links every
// cartridge to. Nothing here is hand-authored wasm: Build regenerates the
// module bytes deterministically from this descriptor, the way the
// teacher's own code never hand-writes binary formats it can derive from a
// single source of truth (nitro-core-dx's rom format constants in
// internal/memory/cartridge.go play the same "single source of truth" role
// for cartridge headers).
package basemodule

import (
	"strconv"

	"microw8/internal/wasmbin"
)

// Version identifies the layout this descriptor encodes. spec.md §9's open
// question ("pick one ABI per format version") is resolved here: Version 1
// is the only version this runtime implements, and it is the upd/start +
// fixed-offset-time-register ABI, never the older tic(time) ABI.
const Version = 1

// FuncImport names one function import under module "env" together with
// the Go-level signature shape used to look it up in the Types table below.
type FuncImport struct {
	Name string
	Type int // index into Types
}

// Types is the base type table, built up so that every FuncImport below
// references one of these by index. Kept in first-use order so Build's
// output is byte-stable across versions that only append imports.
var Types = []wasmbin.FuncType{
	{}, // 0: () -> ()
	{Params: []wasmbin.ValType{wasmbin.ValF32}, Results: []wasmbin.ValType{wasmbin.ValF32}},                     // 1: (f32) -> f32
	{Params: []wasmbin.ValType{wasmbin.ValF32, wasmbin.ValF32}, Results: []wasmbin.ValType{wasmbin.ValF32}},     // 2: (f32, f32) -> f32
	{Results: []wasmbin.ValType{wasmbin.ValI32}},                                                                // 3: () -> i32
	{Results: []wasmbin.ValType{wasmbin.ValF32}},                                                                // 4: () -> f32
	{Params: i32s(1)},                                                                                           // 5: (i32) -> ()
	{Params: i32s(3)},                                                                                           // 6: (i32,i32,i32) -> ()
	{Params: i32s(2), Results: []wasmbin.ValType{wasmbin.ValI32}},                                               // 7: (i32,i32) -> i32
	{Params: i32s(4)},                                                                                           // 8: (i32,i32,i32,i32) -> ()
	{Params: i32s(5)},                                                                                           // 9: (i32,i32,i32,i32,i32) -> ()
	{Params: i32s(1), Results: []wasmbin.ValType{wasmbin.ValI32}},                                               // 10: (i32) -> i32
	{Params: i32s(2)},                                                                                           // 11: (i32,i32) -> ()
}

func i32s(n int) []wasmbin.ValType {
	out := make([]wasmbin.ValType, n)
	for i := range out {
		out[i] = wasmbin.ValI32
	}
	return out
}

const (
	TypeVoid        = 0
	TypeF32ToF32    = 1
	TypeF32F32ToF32 = 2
	TypeToI32       = 3
	TypeToF32       = 4
	TypeI32ToVoid   = 5
	TypeI32x3ToVoid = 6
	TypeI32x2ToI32  = 7
	TypeI32x4ToVoid = 8
	TypeI32x5ToVoid = 9
	TypeI32ToI32    = 10
	TypeI32x2ToVoid = 11
)

// NamedImports is every function import the platform exposes to cartridges,
// in function-index order starting at 0. Indices here double as the fixed
// function-table slot the host wires native implementations (or the
// generated platform module) to: the ABI promises the *name* is stable,
// and since this implementation regenerates the whole base module from this
// slice there is no separate "real" index to drift from it.
var NamedImports = []FuncImport{
	{"sin", TypeF32ToF32},
	{"cos", TypeF32ToF32},
	{"tan", TypeF32ToF32},
	{"asin", TypeF32ToF32},
	{"acos", TypeF32ToF32},
	{"atan", TypeF32ToF32},
	{"atan2", TypeF32F32ToF32},
	{"pow", TypeF32F32ToF32},
	{"log", TypeF32ToF32},
	{"fmod", TypeF32F32ToF32},
	{"exp", TypeF32ToF32},

	{"random", TypeToI32},
	{"randomf", TypeToF32},
	{"randomSeed", TypeI32ToVoid},

	{"cls", TypeI32ToVoid},
	{"setPixel", TypeI32x3ToVoid},
	{"getPixel", TypeI32x2ToI32},
	{"hline", TypeI32x4ToVoid},
	{"rectangle", TypeI32x5ToVoid},
	{"rectangle_outline", TypeI32x5ToVoid},
	{"circle", TypeI32x4ToVoid},
	{"circle_outline", TypeI32x4ToVoid},
	{"line", TypeI32x5ToVoid},

	{"time", TypeToI32},
	{"isButtonPressed", TypeI32ToI32},
	{"isButtonTriggered", TypeI32ToI32},

	{"printChar", TypeI32ToVoid},
	{"printString", TypeI32ToVoid},
	{"printInt", TypeI32ToVoid},
	{"setTextColor", TypeI32ToVoid},
	{"setBackgroundColor", TypeI32ToVoid},
	{"setCursorPosition", TypeI32x2ToVoid},

	{"playNote", TypeI32x2ToVoid},

	{"logChar", TypeI32ToVoid},
}

// TotalFuncImports is the padded-to-64 function import table size spec.md
// §3 describes ("reservedN pads up to 64"). Every slot at or above
// len(NamedImports) is a reservedN no-op import.
const TotalFuncImports = 64

// NumReservedGlobals is the count of "16 reserved constant I32 global
// imports" spec.md §3 mandates.
const NumReservedGlobals = 16

// FuncImportName returns the env.<name> a given function-import index binds
// to, synthesizing "reservedN" for indices past the named table.
func FuncImportName(i int) string {
	if i < len(NamedImports) {
		return NamedImports[i].Name
	}
	return reservedName(i)
}

func reservedName(i int) string {
	return "reserved" + strconv.Itoa(i)
}
