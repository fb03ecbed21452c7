package wasmbin

// This file is a tiny instruction-sequence builder on top of the Instr IR.
// internal/platform and internal/loader use it to hand-assemble the few
// small wasm functions this repo needs to emit directly (the stand-in
// platform module's drawing/text/synth primitives) without going through the
// curlywas compiler toolchain, which spec.md scopes out as an external
// collaborator. It is deliberately minimal: just enough of the MVP
// instruction set, expressed as plain Go functions returning Instr values,
// to write straight-line code, bounded loops, and if/else bodies by hand.

// BlockTypeEmpty/I32/F32 are the negative-LEB blocktype encodings the format
// uses for a block with no result, an i32 result, or an f32 result.
const (
	BlockTypeEmpty int64 = -64 // 0x40
	BlockTypeI32   int64 = -1  // 0x7f
	BlockTypeF32   int64 = -3  // 0x7d
)

func I32Const(v int32) Instr { return Instr{Op: OpI32Const, I32: v} }
func F32Const(v float32) Instr { return Instr{Op: OpF32Const, F32: v} }

func LocalGet(idx uint32) Instr { return Instr{Op: OpLocalGet, LocalIdx: idx} }
func LocalSet(idx uint32) Instr { return Instr{Op: OpLocalSet, LocalIdx: idx} }
func LocalTee(idx uint32) Instr { return Instr{Op: OpLocalTee, LocalIdx: idx} }
func GlobalGet(idx uint32) Instr { return Instr{Op: OpGlobalGet, GlobalIdx: idx} }
func GlobalSet(idx uint32) Instr { return Instr{Op: OpGlobalSet, GlobalIdx: idx} }

func Call(funcIdx uint32) Instr { return Instr{Op: OpCall, FuncIdx: funcIdx} }

func Drop() Instr   { return Instr{Op: OpDrop} }
func Return() Instr { return Instr{Op: OpReturn} }
func Nop() Instr    { return Instr{Op: OpNop} }
func Unreachable() Instr { return Instr{Op: OpUnreachable} }

func Br(label uint32) Instr   { return Instr{Op: OpBr, LabelIdx: label} }
func BrIf(label uint32) Instr { return Instr{Op: OpBrIf, LabelIdx: label} }

// Block/Loop/If build structured control instructions from an already
// assembled body. Label indices inside body/elseBody must be relative to
// their own nesting depth per the wasm spec (0 = innermost enclosing
// block/loop), same as if hand-written in the text format.
func Block(bt int64, body []Instr) Instr { return Instr{Op: OpBlock, BlockType: bt, Then: body} }
func Loop(bt int64, body []Instr) Instr  { return Instr{Op: OpLoop, BlockType: bt, Then: body} }
func If(bt int64, then, els []Instr) Instr {
	return Instr{Op: OpIf, BlockType: bt, Then: then, Else: els}
}

// Plain numeric/comparison opcodes used by the platform module. Named
// individually (rather than via isKnownControlOrImmediate's table) because
// callers reference them by mnemonic when assembling function bodies.
const (
	OpI32Eqz  byte = 0x45
	OpI32Eq   byte = 0x46
	OpI32Ne   byte = 0x47
	OpI32LtS  byte = 0x48
	OpI32LtU  byte = 0x49
	OpI32GtS  byte = 0x4a
	OpI32GtU  byte = 0x4b
	OpI32LeS  byte = 0x4c
	OpI32LeU  byte = 0x4d
	OpI32GeS  byte = 0x4e
	OpI32GeU  byte = 0x4f

	OpI32Add  byte = 0x6a
	OpI32Sub  byte = 0x6b
	OpI32Mul  byte = 0x6c
	OpI32DivS byte = 0x6d
	OpI32DivU byte = 0x6e
	OpI32RemS byte = 0x6f
	OpI32RemU byte = 0x70
	OpI32And  byte = 0x71
	OpI32Or   byte = 0x72
	OpI32Xor  byte = 0x73
	OpI32Shl  byte = 0x74
	OpI32ShrS byte = 0x75
	OpI32ShrU byte = 0x76

	OpF32Eq  byte = 0x5b
	OpF32Lt  byte = 0x5d
	OpF32Gt  byte = 0x5e
	OpF32Add byte = 0x92
	OpF32Sub byte = 0x93
	OpF32Mul byte = 0x94
	OpF32Div byte = 0x95
	OpF32Min byte = 0x96
	OpF32Max byte = 0x97
	OpF32Neg byte = 0x8c
	OpF32Abs byte = 0x8b
	OpF32Floor byte = 0x8e

	OpF32ConvertI32S byte = 0xb2
	OpI32TruncF32S   byte = 0xa8

	OpI32Load8U  byte = 0x2d
	OpI32Load8S  byte = 0x2c
	OpI32Store8  byte = 0x3a
	OpI32Load    byte = 0x28
	OpI32Store   byte = 0x36
	OpF32Load    byte = 0x2a
	OpF32Store   byte = 0x38
)

func op(b byte) Instr { return Instr{Op: b} }

func I32Eqz() Instr { return op(OpI32Eqz) }
func I32Eq() Instr  { return op(OpI32Eq) }
func I32Ne() Instr  { return op(OpI32Ne) }
func I32LtS() Instr { return op(OpI32LtS) }
func I32GeS() Instr { return op(OpI32GeS) }
func I32GtS() Instr { return op(OpI32GtS) }
func I32LeS() Instr { return op(OpI32LeS) }
func I32Add() Instr { return op(OpI32Add) }
func I32Sub() Instr { return op(OpI32Sub) }
func I32Mul() Instr { return op(OpI32Mul) }
func I32DivS() Instr { return op(OpI32DivS) }
func I32RemS() Instr { return op(OpI32RemS) }
func I32And() Instr { return op(OpI32And) }
func I32Or() Instr  { return op(OpI32Or) }
func I32Shl() Instr { return op(OpI32Shl) }
func I32ShrS() Instr { return op(OpI32ShrS) }
func I32ShrU() Instr { return op(OpI32ShrU) }
func I32Xor() Instr { return op(OpI32Xor) }
func I32DivU() Instr { return op(OpI32DivU) }

func F32ConvertI32S() Instr { return op(OpF32ConvertI32S) }
func I32TruncF32S() Instr   { return op(OpI32TruncF32S) }

func F32Add() Instr { return op(OpF32Add) }
func F32Sub() Instr { return op(OpF32Sub) }
func F32Mul() Instr { return op(OpF32Mul) }
func F32Div() Instr { return op(OpF32Div) }

// memArg returns a load/store instruction with natural alignment and the
// given constant byte offset, the shape every platform memory access uses
// (MicroW8 has no dynamic base beyond the already-added address operand).
func memArg(op byte, align, offset uint32) Instr {
	return Instr{Op: op, MemAlign: align, MemOffset: offset}
}

func I32Load(offset uint32) Instr   { return memArg(OpI32Load, 2, offset) }
func I32Store(offset uint32) Instr  { return memArg(OpI32Store, 2, offset) }
func I32Load8U(offset uint32) Instr { return memArg(OpI32Load8U, 0, offset) }
func I32Load8S(offset uint32) Instr { return memArg(OpI32Load8S, 0, offset) }
func I32Store8(offset uint32) Instr { return memArg(OpI32Store8, 0, offset) }
func F32Load(offset uint32) Instr   { return memArg(OpF32Load, 2, offset) }
func F32Store(offset uint32) Instr  { return memArg(OpF32Store, 2, offset) }

func MemoryFill() Instr { return Instr{Op: OpPrefixFC, Sub: SubMemoryFill} }
func MemoryCopy() Instr { return Instr{Op: OpPrefixFC, Sub: SubMemoryCopy} }

// Seq is a convenience variadic flattener so callers can write
// Seq(LocalGet(0), I32Const(1), I32Add(), LocalSet(0)) instead of building a
// slice literal by hand.
func Seq(instrs ...Instr) []Instr { return instrs }

// Concat appends several already-built instruction sequences, used to
// compose larger function bodies out of named sub-sequences.
func Concat(seqs ...[]Instr) []Instr {
	var out []Instr
	for _, s := range seqs {
		out = append(out, s...)
	}
	return out
}
