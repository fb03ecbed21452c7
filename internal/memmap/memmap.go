// Package memmap names the fixed offsets into the shared 256 KiB linear
// memory every MicroW8 cartridge, the platform module, and the host agree
// on (spec.md §3's memory map table). These are a wire contract, not an
// implementation detail: nothing may renumber them.
package memmap

const (
	PageSize  = 65536
	NumPages  = 4
	MemorySize = PageSize * NumPages // 256 KiB

	TimeOffset    = 0x0040 // i32, ms since start
	GamepadOffset = 0x0044 // 4 bytes, one per pad, 8 buttons each
	FrameOffset   = 0x0048 // i32 frame counter

	SoundRegOffset = 0x0050
	SoundRegSize   = 32

	FramebufferOffset = 0x0078
	FramebufferWidth  = 320
	FramebufferHeight = 240
	FramebufferSize   = FramebufferWidth * FramebufferHeight

	PaletteOffset = 0x13000
	PaletteCount  = 256
	PaletteSize   = PaletteCount * 4 // RGBA

	FontOffset = 0x13400
	FontSize   = 0xc00

	UserMemOffset = 0x14000
)

// Button bits within one gamepad byte (spec.md §3).
const (
	ButtonUp    = 1 << 0
	ButtonDown  = 1 << 1
	ButtonLeft  = 1 << 2
	ButtonRight = 1 << 3
	ButtonA     = 1 << 4
	ButtonB     = 1 << 5
	ButtonX     = 1 << 6
	ButtonY     = 1 << 7
)
