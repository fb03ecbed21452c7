// Package platform generates the stand-in MicroW8 platform module: the
// concrete wasm module the sandbox host links under the "env" import
// namespace every cartridge resolves its env.* imports against (spec.md §3,
// §5). Math transcendentals and character-output logging come from a small
// Go host module ("native"); everything else — memory, globals, graphics,
// text, input, and audio register primitives — is hand-assembled wasm
// bytecode built with internal/wasmbin, the way basemodule regenerates the
// base ABI module from its own descriptor rather than shipping a checked-in
// binary.
package platform

import (
	"strconv"
	"sync"

	"microw8/internal/basemodule"
	"microw8/internal/memmap"
	"microw8/internal/wasmbin"
)

// Native function indices: the platform module imports exactly these 12
// functions from module "native" (spec.md's 11 transcendentals plus
// logChar). The transcendentals sit at their own NamedImports indices so
// funcIdxForNamed below can reuse basemodule's table directly; logChar,
// the last NamedImports entry, follows them at index 11.
const (
	nativeSin = iota
	nativeCos
	nativeTan
	nativeAsin
	nativeAcos
	nativeAtan
	nativeAtan2
	nativePow
	nativeLog
	nativeFmod
	nativeExp
	nativeLogChar
	numNativeImports
)

// Defined-function indices, starting right after the native imports. Order
// matches the sequence Build assembles Code entries in below.
const (
	fRandomNext = numNativeImports + iota
	fRandom
	fRandomF
	fRandomSeed
	fCls
	fSetPixel
	fGetPixel
	fHline
	fRectangle
	fRectangleOutline
	fCircle
	fCircleOutline
	fLine
	fTime
	fIsButtonPressed
	fIsButtonTriggered
	fPrintChar
	fPrintString
	fPrintInt
	fSetTextColor
	fSetBackgroundColor
	fSetCursorPosition
	fPlayNote
	fEndFrame
	fSndGes
	numDefinedBeforeReserved
)

var numReservedFuncs = basemodule.TotalFuncImports - len(basemodule.NamedImports)

// fReservedBase is the function index of reserved34, the first padding
// no-op after the 34 named imports.
const fReservedBase = numDefinedBeforeReserved

// Global indices. The 16 immutable reserved globals come first (so they sit
// at the same global indices the cartridge ABI imports them at), followed
// by the platform's own private mutable state.
const (
	gRng = basemodule.NumReservedGlobals + iota
	gCursorX
	gCursorY
	gTextColor
	gBackgroundColor
	gPrevGamepad
)

// NativeFuncName returns the module="native" import name for a platform
// math/logChar import index, reusing basemodule's naming so the host module
// registering these under wazero can share the same string table.
func NativeFuncName(i int) string {
	return basemodule.NamedImports[nativeNamedIndex(i)].Name
}

// nativeNamedIndex maps a native import index to its NamedImports entry.
func nativeNamedIndex(i int) int {
	if i == nativeLogChar {
		return len(basemodule.NamedImports) - 1
	}
	return i
}

// funcIdxForNamed returns, for a base-ABI named-import index i (0..63), the
// function index within the generated platform module that implements it:
// either a pass-through export of a native import, or one of the hand
// assembled functions below.
func funcIdxForNamed(i int) uint32 {
	switch i {
	case 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10:
		return uint32(i) // native math imports keep their own index
	case 11:
		return fRandom
	case 12:
		return fRandomF
	case 13:
		return fRandomSeed
	case 14:
		return fCls
	case 15:
		return fSetPixel
	case 16:
		return fGetPixel
	case 17:
		return fHline
	case 18:
		return fRectangle
	case 19:
		return fRectangleOutline
	case 20:
		return fCircle
	case 21:
		return fCircleOutline
	case 22:
		return fLine
	case 23:
		return fTime
	case 24:
		return fIsButtonPressed
	case 25:
		return fIsButtonTriggered
	case 26:
		return fPrintChar
	case 27:
		return fPrintString
	case 28:
		return fPrintInt
	case 29:
		return fSetTextColor
	case 30:
		return fSetBackgroundColor
	case 31:
		return fSetCursorPosition
	case 32:
		return fPlayNote
	case 33:
		return nativeLogChar
	default:
		return uint32(fReservedBase + (i - len(basemodule.NamedImports)))
	}
}

// loopBreak builds the Block(Loop(...)) shape every bounded loop in this
// package uses: breakCond is evaluated first each iteration and, if
// truthy, exits the loop (br 1 out to the wrapping block); otherwise body
// runs and control loops back (br 0).
func loopBreak(breakCond, body []wasmbin.Instr) wasmbin.Instr {
	return wasmbin.Block(wasmbin.BlockTypeEmpty, wasmbin.Seq(
		wasmbin.Loop(wasmbin.BlockTypeEmpty, wasmbin.Concat(
			breakCond,
			wasmbin.Seq(wasmbin.BrIf(1)),
			body,
			wasmbin.Seq(wasmbin.Br(0)),
		)),
	))
}

func locals(count uint32, t wasmbin.ValType) []wasmbin.LocalGroup {
	if count == 0 {
		return nil
	}
	return []wasmbin.LocalGroup{{Count: count, Type: t}}
}

// typeI32ToF32 is the signature sndGes needs ((i32) -> f32, matching the
// cartridge snd ABI) that has no counterpart in the base type table: the
// base ABI never calls into sndGes itself, only the host audio engine does,
// so it's appended to this module's own private type list instead of
// basemodule's shared one.
var typeI32ToF32 = wasmbin.FuncType{Params: []wasmbin.ValType{wasmbin.ValI32}, Results: []wasmbin.ValType{wasmbin.ValF32}}

// Build regenerates the platform module. Deterministic, like
// basemodule.Build: same inputs, same bytes, every time.
func Build() *wasmbin.Module {
	m := &wasmbin.Module{Types: append([]wasmbin.FuncType(nil), basemodule.Types...)}
	sndGesType := len(m.Types)
	m.Types = append(m.Types, typeI32ToF32)

	for i := 0; i < numNativeImports; i++ {
		m.Imports = append(m.Imports, wasmbin.Import{
			Module: "native",
			Field:  NativeFuncName(i),
			Kind:   wasmbin.ExternFunc,
			Type:   uint32(basemodule.NamedImports[nativeNamedIndex(i)].Type),
		})
	}

	m.Memories = []wasmbin.MemType{{Min: memmap.NumPages, HasMax: true, Max: memmap.NumPages}}

	for i := 0; i < basemodule.NumReservedGlobals; i++ {
		m.Globals = append(m.Globals, wasmbin.Global{
			Type: wasmbin.ValI32, Mutable: false,
			Init: wasmbin.Seq(wasmbin.I32Const(0)),
		})
	}
	m.Globals = append(m.Globals,
		wasmbin.Global{Type: wasmbin.ValI32, Mutable: true, Init: wasmbin.Seq(wasmbin.I32Const(0x2545f491))}, // gRng
		wasmbin.Global{Type: wasmbin.ValI32, Mutable: true, Init: wasmbin.Seq(wasmbin.I32Const(0))},          // gCursorX
		wasmbin.Global{Type: wasmbin.ValI32, Mutable: true, Init: wasmbin.Seq(wasmbin.I32Const(0))},          // gCursorY
		wasmbin.Global{Type: wasmbin.ValI32, Mutable: true, Init: wasmbin.Seq(wasmbin.I32Const(10))},         // gTextColor
		wasmbin.Global{Type: wasmbin.ValI32, Mutable: true, Init: wasmbin.Seq(wasmbin.I32Const(0))},          // gBackgroundColor
		wasmbin.Global{Type: wasmbin.ValI32, Mutable: true, Init: wasmbin.Seq(wasmbin.I32Const(0))},          // gPrevGamepad
	)

	appendFunc := func(typ int, loc []wasmbin.LocalGroup, body []wasmbin.Instr) {
		m.FuncTypes = append(m.FuncTypes, uint32(typ))
		m.Code = append(m.Code, wasmbin.Code{Locals: loc, Body: body})
	}

	appendFunc(basemodule.TypeToI32, locals(1, wasmbin.ValI32), randomNextBody())
	appendFunc(basemodule.TypeToI32, nil, wasmbin.Seq(wasmbin.Call(fRandomNext)))
	appendFunc(basemodule.TypeToF32, nil, randomFBody())
	appendFunc(basemodule.TypeI32ToVoid, nil, randomSeedBody())
	appendFunc(basemodule.TypeI32ToVoid, nil, clsBody())
	appendFunc(basemodule.TypeI32x3ToVoid, nil, setPixelBody())
	appendFunc(basemodule.TypeI32x2ToI32, nil, getPixelBody())
	appendFunc(basemodule.TypeI32x4ToVoid, nil, hlineBody())
	appendFunc(basemodule.TypeI32x5ToVoid, locals(1, wasmbin.ValI32), rectangleBody())
	appendFunc(basemodule.TypeI32x5ToVoid, locals(1, wasmbin.ValI32), rectangleOutlineBody())
	appendFunc(basemodule.TypeI32x4ToVoid, locals(2, wasmbin.ValI32), circleBody())
	appendFunc(basemodule.TypeI32x4ToVoid, locals(4, wasmbin.ValI32), circleOutlineBody())
	appendFunc(basemodule.TypeI32x5ToVoid, locals(8, wasmbin.ValI32), lineBody())
	appendFunc(basemodule.TypeToI32, nil, timeBody())
	appendFunc(basemodule.TypeI32ToI32, nil, isButtonPressedBody())
	appendFunc(basemodule.TypeI32ToI32, locals(2, wasmbin.ValI32), isButtonTriggeredBody())
	appendFunc(basemodule.TypeI32ToVoid, locals(3, wasmbin.ValI32), printCharBody())
	appendFunc(basemodule.TypeI32ToVoid, locals(2, wasmbin.ValI32), printStringBody())
	appendFunc(basemodule.TypeI32ToVoid, nil, printIntBody())
	appendFunc(basemodule.TypeI32ToVoid, nil, wasmbin.Seq(wasmbin.LocalGet(0), wasmbin.GlobalSet(gTextColor)))
	appendFunc(basemodule.TypeI32ToVoid, nil, wasmbin.Seq(wasmbin.LocalGet(0), wasmbin.GlobalSet(gBackgroundColor)))
	appendFunc(basemodule.TypeI32x2ToVoid, nil, wasmbin.Seq(
		wasmbin.LocalGet(0), wasmbin.GlobalSet(gCursorX),
		wasmbin.LocalGet(1), wasmbin.GlobalSet(gCursorY),
	))
	appendFunc(basemodule.TypeI32x2ToVoid, nil, playNoteBody())
	appendFunc(basemodule.TypeVoid, nil, endFrameBody())
	appendFunc(sndGesType, locals(2, wasmbin.ValI32), sndGesBody())

	for i := 0; i < numReservedFuncs; i++ {
		appendFunc(basemodule.TypeVoid, nil, nil)
	}

	m.Data = append(m.Data,
		wasmbin.Data{Offset: wasmbin.Seq(wasmbin.I32Const(memmap.PaletteOffset)), Bytes: defaultPalette()},
		wasmbin.Data{Offset: wasmbin.Seq(wasmbin.I32Const(memmap.FontOffset)), Bytes: defaultFont()},
	)

	for i := 0; i < basemodule.TotalFuncImports; i++ {
		m.Exports = append(m.Exports, wasmbin.Export{
			Name: basemodule.FuncImportName(i), Kind: wasmbin.ExternFunc, Index: funcIdxForNamed(i),
		})
	}
	m.Exports = append(m.Exports, wasmbin.Export{Name: "memory", Kind: wasmbin.ExternMemory, Index: 0})
	for i := 0; i < basemodule.NumReservedGlobals; i++ {
		m.Exports = append(m.Exports, wasmbin.Export{
			Name: "g_reserved" + strconv.Itoa(i), Kind: wasmbin.ExternGlobal, Index: uint32(i),
		})
	}
	m.Exports = append(m.Exports, wasmbin.Export{Name: "endFrame", Kind: wasmbin.ExternFunc, Index: fEndFrame})
	m.Exports = append(m.Exports, wasmbin.Export{Name: "sndGes", Kind: wasmbin.ExternFunc, Index: fSndGes})

	return m
}

var (
	cachedOnce   sync.Once
	cachedModule *wasmbin.Module
	cachedBytes  []byte
)

// Module returns the shared, memoized platform Module value.
func Module() *wasmbin.Module {
	cachedOnce.Do(func() {
		cachedModule = Build()
		cachedBytes = cachedModule.Encode()
	})
	return cachedModule
}

// Bytes returns the canonical wasm encoding of the platform module, what
// the sandbox host compiles and instantiates under import name "env".
func Bytes() []byte {
	Module()
	return cachedBytes
}
