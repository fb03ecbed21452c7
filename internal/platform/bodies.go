package platform

import (
	"microw8/internal/memmap"
	"microw8/internal/wasmbin"
)

// randomNextBody advances the xorshift32 generator stored in gRng and
// leaves the new state on the stack. Local 0 holds the working value.
func randomNextBody() []wasmbin.Instr {
	return wasmbin.Seq(
		wasmbin.GlobalGet(gRng), wasmbin.LocalSet(0),
		wasmbin.LocalGet(0), wasmbin.LocalGet(0), wasmbin.I32Const(13), wasmbin.I32Shl(), wasmbin.I32Xor(), wasmbin.LocalSet(0),
		wasmbin.LocalGet(0), wasmbin.LocalGet(0), wasmbin.I32Const(17), wasmbin.I32ShrU(), wasmbin.I32Xor(), wasmbin.LocalSet(0),
		wasmbin.LocalGet(0), wasmbin.LocalGet(0), wasmbin.I32Const(5), wasmbin.I32Shl(), wasmbin.I32Xor(), wasmbin.LocalSet(0),
		wasmbin.LocalGet(0), wasmbin.GlobalSet(gRng),
		wasmbin.LocalGet(0),
	)
}

// randomFBody masks the next xorshift word to 31 bits (keeping the integer
// to float conversion a plain signed one) and scales it to [0, 1).
func randomFBody() []wasmbin.Instr {
	return wasmbin.Seq(
		wasmbin.Call(fRandomNext),
		wasmbin.I32Const(0x7fffffff), wasmbin.I32And(),
		wasmbin.F32ConvertI32S(),
		wasmbin.F32Const(1.0/2147483648.0), wasmbin.F32Mul(),
	)
}

// randomSeedBody forces the low bit of the seed on: xorshift32 never
// recovers from an all-zero state, and this is the cheapest way to avoid it
// without branching.
func randomSeedBody() []wasmbin.Instr {
	return wasmbin.Seq(wasmbin.LocalGet(0), wasmbin.I32Const(1), wasmbin.I32Or(), wasmbin.GlobalSet(gRng))
}

func clsBody() []wasmbin.Instr {
	return wasmbin.Seq(
		wasmbin.I32Const(memmap.FramebufferOffset),
		wasmbin.LocalGet(0),
		wasmbin.I32Const(memmap.FramebufferSize),
		wasmbin.MemoryFill(),
	)
}

// boundsCheckReturn emits "if <cond> then return" with no value, used by
// setPixel's x/y range guards.
func boundsCheckReturn(cond []wasmbin.Instr) []wasmbin.Instr {
	return wasmbin.Concat(cond, wasmbin.Seq(wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(wasmbin.Return()), nil)))
}

func setPixelBody() []wasmbin.Instr {
	return wasmbin.Concat(
		boundsCheckReturn(wasmbin.Seq(wasmbin.LocalGet(0), wasmbin.I32Const(0), wasmbin.I32LtS())),
		boundsCheckReturn(wasmbin.Seq(wasmbin.LocalGet(0), wasmbin.I32Const(memmap.FramebufferWidth), wasmbin.I32GeS())),
		boundsCheckReturn(wasmbin.Seq(wasmbin.LocalGet(1), wasmbin.I32Const(0), wasmbin.I32LtS())),
		boundsCheckReturn(wasmbin.Seq(wasmbin.LocalGet(1), wasmbin.I32Const(memmap.FramebufferHeight), wasmbin.I32GeS())),
		wasmbin.Seq(
			wasmbin.LocalGet(1), wasmbin.I32Const(memmap.FramebufferWidth), wasmbin.I32Mul(), wasmbin.LocalGet(0), wasmbin.I32Add(),
			wasmbin.LocalGet(2),
			wasmbin.I32Store8(memmap.FramebufferOffset),
		),
	)
}

func getPixelBody() []wasmbin.Instr {
	return wasmbin.Seq(
		wasmbin.LocalGet(0), wasmbin.I32Const(0), wasmbin.I32LtS(),
		wasmbin.LocalGet(0), wasmbin.I32Const(memmap.FramebufferWidth), wasmbin.I32GeS(), wasmbin.I32Or(),
		wasmbin.LocalGet(1), wasmbin.I32Const(0), wasmbin.I32LtS(), wasmbin.I32Or(),
		wasmbin.LocalGet(1), wasmbin.I32Const(memmap.FramebufferHeight), wasmbin.I32GeS(), wasmbin.I32Or(),
		wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(wasmbin.I32Const(-1), wasmbin.Return()), nil),
		wasmbin.LocalGet(1), wasmbin.I32Const(memmap.FramebufferWidth), wasmbin.I32Mul(), wasmbin.LocalGet(0), wasmbin.I32Add(),
		wasmbin.I32Load8U(memmap.FramebufferOffset),
	)
}

// hlineBody only range-checks y: x/len are not checked, here or in
// rectangle/rectangle_outline, which pass their x and width through
// unchanged, so a span past the right edge continues into the following
// framebuffer bytes.
func hlineBody() []wasmbin.Instr {
	return wasmbin.Concat(
		boundsCheckReturn(wasmbin.Seq(wasmbin.LocalGet(1), wasmbin.I32Const(0), wasmbin.I32LtS())),
		boundsCheckReturn(wasmbin.Seq(wasmbin.LocalGet(1), wasmbin.I32Const(memmap.FramebufferHeight), wasmbin.I32GeS())),
		wasmbin.Seq(
			wasmbin.I32Const(memmap.FramebufferOffset),
			wasmbin.LocalGet(1), wasmbin.I32Const(memmap.FramebufferWidth), wasmbin.I32Mul(), wasmbin.LocalGet(0), wasmbin.I32Add(), wasmbin.I32Add(),
			wasmbin.LocalGet(3),
			wasmbin.LocalGet(2),
			wasmbin.MemoryFill(),
		),
	)
}

// rectangleBody loops row 0..h-1 calling hline(x, y+row, w, color). Local 5
// is the row counter.
func rectangleBody() []wasmbin.Instr {
	const row = 5
	return wasmbin.Seq(
		wasmbin.I32Const(0), wasmbin.LocalSet(row),
		loopBreak(
			wasmbin.Seq(wasmbin.LocalGet(row), wasmbin.LocalGet(3), wasmbin.I32GeS()),
			wasmbin.Seq(
				wasmbin.LocalGet(0), wasmbin.LocalGet(1), wasmbin.LocalGet(row), wasmbin.I32Add(), wasmbin.LocalGet(2), wasmbin.LocalGet(4), wasmbin.Call(fHline),
				wasmbin.LocalGet(row), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(row),
			),
		),
	)
}

// rectangleOutlineBody draws the top/bottom edges with hline and the two
// side edges with a setPixel loop. Local 5 is the row counter.
func rectangleOutlineBody() []wasmbin.Instr {
	const row = 5
	return wasmbin.Seq(
		wasmbin.LocalGet(0), wasmbin.LocalGet(1), wasmbin.LocalGet(2), wasmbin.LocalGet(4), wasmbin.Call(fHline),
		wasmbin.LocalGet(0), wasmbin.LocalGet(1), wasmbin.LocalGet(3), wasmbin.I32Const(1), wasmbin.I32Sub(), wasmbin.I32Add(), wasmbin.LocalGet(2), wasmbin.LocalGet(4), wasmbin.Call(fHline),
		wasmbin.I32Const(0), wasmbin.LocalSet(row),
		loopBreak(
			wasmbin.Seq(wasmbin.LocalGet(row), wasmbin.LocalGet(3), wasmbin.I32GeS()),
			wasmbin.Seq(
				wasmbin.LocalGet(0), wasmbin.LocalGet(1), wasmbin.LocalGet(row), wasmbin.I32Add(), wasmbin.LocalGet(4), wasmbin.Call(fSetPixel),
				wasmbin.LocalGet(0), wasmbin.LocalGet(2), wasmbin.I32Const(1), wasmbin.I32Sub(), wasmbin.I32Add(), wasmbin.LocalGet(1), wasmbin.LocalGet(row), wasmbin.I32Add(), wasmbin.LocalGet(4), wasmbin.Call(fSetPixel),
				wasmbin.LocalGet(row), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(row),
			),
		),
	)
}

// circleBody is a brute-force bounding-box disc fill: every point in
// [-r,r]x[-r,r] within radius r of the centre is plotted. Chosen over a
// midpoint-circle algorithm for straightforward hand-assembly, at the cost
// of O(r^2) work instead of O(r). Locals 4/5 are dx/dy.
func circleBody() []wasmbin.Instr {
	const dx, dy = 4, 5
	return wasmbin.Seq(
		wasmbin.LocalGet(2), wasmbin.I32Const(-1), wasmbin.I32Mul(), wasmbin.LocalSet(dy),
		loopBreak(
			wasmbin.Seq(wasmbin.LocalGet(dy), wasmbin.LocalGet(2), wasmbin.I32GtS()),
			wasmbin.Seq(
				wasmbin.LocalGet(2), wasmbin.I32Const(-1), wasmbin.I32Mul(), wasmbin.LocalSet(dx),
				loopBreak(
					wasmbin.Seq(wasmbin.LocalGet(dx), wasmbin.LocalGet(2), wasmbin.I32GtS()),
					wasmbin.Seq(
						wasmbin.LocalGet(dx), wasmbin.LocalGet(dx), wasmbin.I32Mul(),
						wasmbin.LocalGet(dy), wasmbin.LocalGet(dy), wasmbin.I32Mul(), wasmbin.I32Add(),
						wasmbin.LocalGet(2), wasmbin.LocalGet(2), wasmbin.I32Mul(),
						wasmbin.I32LeS(),
						wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
							wasmbin.LocalGet(0), wasmbin.LocalGet(dx), wasmbin.I32Add(),
							wasmbin.LocalGet(1), wasmbin.LocalGet(dy), wasmbin.I32Add(),
							wasmbin.LocalGet(3),
							wasmbin.Call(fSetPixel),
						), nil),
						wasmbin.LocalGet(dx), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(dx),
					),
				),
				wasmbin.LocalGet(dy), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(dy),
			),
		),
	)
}

// circleOutlineBody is circleBody's ring variant: a point plots only if its
// squared distance falls in (( r-1)^2, r^2]. Locals 4/5 are dx/dy, 6 is the
// squared distance, 7 is r-1 (computed once).
func circleOutlineBody() []wasmbin.Instr {
	const dx, dy, dist2, rm1 = 4, 5, 6, 7
	return wasmbin.Seq(
		wasmbin.LocalGet(2), wasmbin.I32Const(1), wasmbin.I32Sub(), wasmbin.LocalSet(rm1),
		wasmbin.LocalGet(2), wasmbin.I32Const(-1), wasmbin.I32Mul(), wasmbin.LocalSet(dy),
		loopBreak(
			wasmbin.Seq(wasmbin.LocalGet(dy), wasmbin.LocalGet(2), wasmbin.I32GtS()),
			wasmbin.Seq(
				wasmbin.LocalGet(2), wasmbin.I32Const(-1), wasmbin.I32Mul(), wasmbin.LocalSet(dx),
				loopBreak(
					wasmbin.Seq(wasmbin.LocalGet(dx), wasmbin.LocalGet(2), wasmbin.I32GtS()),
					wasmbin.Seq(
						wasmbin.LocalGet(dx), wasmbin.LocalGet(dx), wasmbin.I32Mul(),
						wasmbin.LocalGet(dy), wasmbin.LocalGet(dy), wasmbin.I32Mul(), wasmbin.I32Add(), wasmbin.LocalSet(dist2),
						wasmbin.LocalGet(dist2), wasmbin.LocalGet(2), wasmbin.LocalGet(2), wasmbin.I32Mul(), wasmbin.I32LeS(),
						wasmbin.LocalGet(dist2), wasmbin.LocalGet(rm1), wasmbin.LocalGet(rm1), wasmbin.I32Mul(), wasmbin.I32GtS(),
						wasmbin.I32And(),
						wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
							wasmbin.LocalGet(0), wasmbin.LocalGet(dx), wasmbin.I32Add(),
							wasmbin.LocalGet(1), wasmbin.LocalGet(dy), wasmbin.I32Add(),
							wasmbin.LocalGet(3),
							wasmbin.Call(fSetPixel),
						), nil),
						wasmbin.LocalGet(dx), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(dx),
					),
				),
				wasmbin.LocalGet(dy), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(dy),
			),
		),
	)
}

// lineBody is a textbook integer Bresenham walk (params x0,y0,x1,y1,color;
// locals dx,dy,sx,sy,err,e2,curx,cury at indices 5-12). It plots at least
// once and stops the moment curx/cury reach x1/y1, without a wrapping break
// check: the loop body itself only re-enters via the trailing Br, so the
// "done" case simply falls off the end.
func lineBody() []wasmbin.Instr {
	const dx, dy, sx, sy, errv, e2, curx, cury = 5, 6, 7, 8, 9, 10, 11, 12
	absInto := func(local uint32) []wasmbin.Instr {
		return wasmbin.Seq(
			wasmbin.LocalGet(local), wasmbin.I32Const(0), wasmbin.I32LtS(),
			wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
				wasmbin.I32Const(0), wasmbin.LocalGet(local), wasmbin.I32Sub(), wasmbin.LocalSet(local),
			), nil),
		)
	}
	return wasmbin.Concat(
		wasmbin.Seq(wasmbin.LocalGet(2), wasmbin.LocalGet(0), wasmbin.I32Sub(), wasmbin.LocalSet(dx)),
		absInto(dx),
		wasmbin.Seq(wasmbin.LocalGet(3), wasmbin.LocalGet(1), wasmbin.I32Sub(), wasmbin.LocalSet(dy)),
		absInto(dy),
		wasmbin.Seq(
			wasmbin.I32Const(0), wasmbin.LocalGet(dy), wasmbin.I32Sub(), wasmbin.LocalSet(dy),

			wasmbin.LocalGet(0), wasmbin.LocalGet(2), wasmbin.I32LtS(),
			wasmbin.If(wasmbin.BlockTypeI32, wasmbin.Seq(wasmbin.I32Const(1)), wasmbin.Seq(wasmbin.I32Const(-1))),
			wasmbin.LocalSet(sx),

			wasmbin.LocalGet(1), wasmbin.LocalGet(3), wasmbin.I32LtS(),
			wasmbin.If(wasmbin.BlockTypeI32, wasmbin.Seq(wasmbin.I32Const(1)), wasmbin.Seq(wasmbin.I32Const(-1))),
			wasmbin.LocalSet(sy),

			wasmbin.LocalGet(dx), wasmbin.LocalGet(dy), wasmbin.I32Add(), wasmbin.LocalSet(errv),
			wasmbin.LocalGet(0), wasmbin.LocalSet(curx),
			wasmbin.LocalGet(1), wasmbin.LocalSet(cury),

			wasmbin.Loop(wasmbin.BlockTypeEmpty, wasmbin.Seq(
				wasmbin.LocalGet(curx), wasmbin.LocalGet(cury), wasmbin.LocalGet(4), wasmbin.Call(fSetPixel),

				wasmbin.LocalGet(curx), wasmbin.LocalGet(2), wasmbin.I32Ne(),
				wasmbin.LocalGet(cury), wasmbin.LocalGet(3), wasmbin.I32Ne(),
				wasmbin.I32Or(),
				wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
					wasmbin.LocalGet(errv), wasmbin.I32Const(2), wasmbin.I32Mul(), wasmbin.LocalSet(e2),

					wasmbin.LocalGet(e2), wasmbin.LocalGet(dy), wasmbin.I32GeS(),
					wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
						wasmbin.LocalGet(errv), wasmbin.LocalGet(dy), wasmbin.I32Add(), wasmbin.LocalSet(errv),
						wasmbin.LocalGet(curx), wasmbin.LocalGet(sx), wasmbin.I32Add(), wasmbin.LocalSet(curx),
					), nil),

					wasmbin.LocalGet(e2), wasmbin.LocalGet(dx), wasmbin.I32LeS(),
					wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
						wasmbin.LocalGet(errv), wasmbin.LocalGet(dx), wasmbin.I32Add(), wasmbin.LocalSet(errv),
						wasmbin.LocalGet(cury), wasmbin.LocalGet(sy), wasmbin.I32Add(), wasmbin.LocalSet(cury),
					), nil),

					wasmbin.Br(1),
				), nil),
			)),
		),
	)
}

func timeBody() []wasmbin.Instr {
	return wasmbin.Seq(wasmbin.I32Const(0), wasmbin.I32Load(memmap.TimeOffset))
}

func isButtonPressedBody() []wasmbin.Instr {
	return wasmbin.Seq(
		wasmbin.I32Const(0), wasmbin.I32Load(memmap.GamepadOffset),
		wasmbin.LocalGet(0), wasmbin.I32ShrU(),
		wasmbin.I32Const(1), wasmbin.I32And(),
	)
}

// isButtonTriggeredBody reports "pressed now, wasn't last frame", comparing
// against gPrevGamepad (updated by endFrame). Locals 1/2 hold the current
// and previous bit.
func isButtonTriggeredBody() []wasmbin.Instr {
	const cur, prev = 1, 2
	return wasmbin.Seq(
		wasmbin.I32Const(0), wasmbin.I32Load(memmap.GamepadOffset), wasmbin.LocalGet(0), wasmbin.I32ShrU(), wasmbin.I32Const(1), wasmbin.I32And(), wasmbin.LocalSet(cur),
		wasmbin.GlobalGet(gPrevGamepad), wasmbin.LocalGet(0), wasmbin.I32ShrU(), wasmbin.I32Const(1), wasmbin.I32And(), wasmbin.LocalSet(prev),
		wasmbin.LocalGet(cur), wasmbin.LocalGet(prev), wasmbin.I32Const(1), wasmbin.I32Xor(), wasmbin.I32And(),
	)
}

// printCharBody blits one 8x12 glyph at the cursor and advances it, with a
// plain newline special case. Locals 1/2/3 are row, column, and the current
// glyph row's bit pattern.
func printCharBody() []wasmbin.Instr {
	const row, col, bits = 1, 2, 3
	const glyphW, glyphH = 8, 12
	advance := wasmbin.Seq(
		wasmbin.GlobalGet(gCursorX), wasmbin.I32Const(glyphW), wasmbin.I32Add(), wasmbin.GlobalSet(gCursorX),
		wasmbin.GlobalGet(gCursorX), wasmbin.I32Const(memmap.FramebufferWidth), wasmbin.I32GeS(),
		wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
			wasmbin.I32Const(0), wasmbin.GlobalSet(gCursorX),
			wasmbin.GlobalGet(gCursorY), wasmbin.I32Const(glyphH), wasmbin.I32Add(), wasmbin.GlobalSet(gCursorY),
		), nil),
	)
	return wasmbin.Concat(wasmbin.Seq(
		wasmbin.LocalGet(0), wasmbin.I32Const('\n'), wasmbin.I32Eq(),
		wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
			wasmbin.I32Const(0), wasmbin.GlobalSet(gCursorX),
			wasmbin.GlobalGet(gCursorY), wasmbin.I32Const(glyphH), wasmbin.I32Add(), wasmbin.GlobalSet(gCursorY),
			wasmbin.Return(),
		), nil),

		wasmbin.I32Const(0), wasmbin.LocalSet(row),
		loopBreak(
			wasmbin.Seq(wasmbin.LocalGet(row), wasmbin.I32Const(glyphH), wasmbin.I32GeS()),
			wasmbin.Concat(
				wasmbin.Seq(
					wasmbin.LocalGet(0), wasmbin.I32Const(glyphH), wasmbin.I32Mul(), wasmbin.LocalGet(row), wasmbin.I32Add(),
					wasmbin.I32Load8U(memmap.FontOffset), wasmbin.LocalSet(bits),
					wasmbin.I32Const(0), wasmbin.LocalSet(col),
				),
				wasmbin.Seq(loopBreak(
					wasmbin.Seq(wasmbin.LocalGet(col), wasmbin.I32Const(glyphW), wasmbin.I32GeS()),
					wasmbin.Seq(
						wasmbin.GlobalGet(gCursorX), wasmbin.LocalGet(col), wasmbin.I32Add(),
						wasmbin.GlobalGet(gCursorY), wasmbin.LocalGet(row), wasmbin.I32Add(),
						wasmbin.LocalGet(bits), wasmbin.I32Const(0x80), wasmbin.LocalGet(col), wasmbin.I32ShrU(), wasmbin.I32And(), wasmbin.I32Const(0), wasmbin.I32Ne(),
						wasmbin.If(wasmbin.BlockTypeI32, wasmbin.Seq(wasmbin.GlobalGet(gTextColor)), wasmbin.Seq(wasmbin.GlobalGet(gBackgroundColor))),
						wasmbin.Call(fSetPixel),
						wasmbin.LocalGet(col), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(col),
					),
				)),
				wasmbin.Seq(wasmbin.LocalGet(row), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(row)),
			),
		)),
		advance,
	)
}

// printStringBody walks a NUL-terminated byte string starting at the
// pointer in local 0, calling printChar per byte. Local 1 is the offset.
func printStringBody() []wasmbin.Instr {
	const i = 1
	return wasmbin.Seq(
		wasmbin.I32Const(0), wasmbin.LocalSet(i),
		loopBreak(
			wasmbin.Seq(wasmbin.LocalGet(0), wasmbin.LocalGet(i), wasmbin.I32Add(), wasmbin.I32Load8U(0), wasmbin.I32Const(0), wasmbin.I32Eq()),
			wasmbin.Seq(
				wasmbin.LocalGet(0), wasmbin.LocalGet(i), wasmbin.I32Add(), wasmbin.I32Load8U(0), wasmbin.Call(fPrintChar),
				wasmbin.LocalGet(i), wasmbin.I32Const(1), wasmbin.I32Add(), wasmbin.LocalSet(i),
			),
		),
	)
}

// printIntBody recurses on itself (a function calling its own known index)
// to print a signed decimal integer one digit at a time, the trick this
// package uses everywhere a dynamically sized digit buffer would otherwise
// need a local array wasm doesn't have.
func printIntBody() []wasmbin.Instr {
	return wasmbin.Seq(
		wasmbin.LocalGet(0), wasmbin.I32Const(0), wasmbin.I32LtS(),
		wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
			wasmbin.I32Const('-'), wasmbin.Call(fPrintChar),
			wasmbin.I32Const(0), wasmbin.LocalGet(0), wasmbin.I32Sub(), wasmbin.Call(fPrintInt),
			wasmbin.Return(),
		), nil),
		wasmbin.LocalGet(0), wasmbin.I32Const(10), wasmbin.I32GeS(),
		wasmbin.If(wasmbin.BlockTypeEmpty, wasmbin.Seq(
			wasmbin.LocalGet(0), wasmbin.I32Const(10), wasmbin.I32DivS(), wasmbin.Call(fPrintInt),
		), nil),
		wasmbin.I32Const('0'), wasmbin.LocalGet(0), wasmbin.I32Const(10), wasmbin.I32RemS(), wasmbin.I32Add(), wasmbin.Call(fPrintChar),
	)
}

// playNoteBody stashes the note value in the 32-byte sound register bank,
// one byte per channel (spec.md §3's sound registers), wrapping the channel
// index so an out-of-range value can't touch adjacent host memory.
func playNoteBody() []wasmbin.Instr {
	return wasmbin.Seq(
		wasmbin.LocalGet(0), wasmbin.I32Const(memmap.SoundRegSize-1), wasmbin.I32And(),
		wasmbin.LocalGet(1),
		wasmbin.I32Store8(memmap.SoundRegOffset),
	)
}

// endFrameBody snapshots the current gamepad state so next frame's
// isButtonTriggered calls can diff against it.
func endFrameBody() []wasmbin.Instr {
	return wasmbin.Seq(wasmbin.I32Const(0), wasmbin.I32Load(memmap.GamepadOffset), wasmbin.GlobalSet(gPrevGamepad))
}

// sndGesBody is the register-driven fallback synth spec.md §4.5 calls
// "sndGes": cartridges that export no snd of their own still get sound out
// of whatever they poked into the sound register bank via playNote. The
// bank is read as 4 fixed 8-byte channel slots (byte 0: half-period in
// samples, 0 = silent; byte 1: volume 0-255; bytes 2-7: reserved), the same
// channel/phase/waveform shape the teacher's APU uses, generalized onto a
// stateless square wave so a sample can be reconstructed from its index
// alone (no persistent phase accumulator needed across calls).
func sndGesBody() []wasmbin.Instr {
	channel := func(base uint32) []wasmbin.Instr {
		return wasmbin.Seq(
			wasmbin.I32Const(0), wasmbin.I32Load8U(base), wasmbin.LocalTee(1),
			wasmbin.If(wasmbin.BlockTypeF32,
				wasmbin.Seq(
					wasmbin.I32Const(0), wasmbin.I32Load8U(base+1), wasmbin.LocalSet(2),
					wasmbin.LocalGet(0), wasmbin.LocalGet(1), wasmbin.I32DivU(),
					wasmbin.I32Const(1), wasmbin.I32And(),
					wasmbin.If(wasmbin.BlockTypeF32, wasmbin.Seq(wasmbin.F32Const(1.0)), wasmbin.Seq(wasmbin.F32Const(-1.0))),
					wasmbin.LocalGet(2), wasmbin.F32ConvertI32S(), wasmbin.F32Const(1.0/255.0), wasmbin.F32Mul(),
					wasmbin.F32Mul(),
				),
				wasmbin.Seq(wasmbin.F32Const(0.0)),
			),
		)
	}
	return wasmbin.Concat(
		channel(memmap.SoundRegOffset+0),
		channel(memmap.SoundRegOffset+8), wasmbin.Seq(wasmbin.F32Add()),
		channel(memmap.SoundRegOffset+16), wasmbin.Seq(wasmbin.F32Add()),
		channel(memmap.SoundRegOffset+24), wasmbin.Seq(wasmbin.F32Add()),
		wasmbin.Seq(wasmbin.F32Const(0.25), wasmbin.F32Mul()),
	)
}
