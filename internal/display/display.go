// Package display implements the SDL2-backed display sink frame.Scheduler
// drives each tick: a window, a streaming texture sized to MicroW8's fixed
// 320x240 framebuffer, palette-indexed-to-RGBA conversion, and keyboard
// input mapped to up to 4 gamepads (spec.md §4.4, §6).
package display

import (
	"time"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"microw8/internal/frame"
	"microw8/internal/memmap"
)

// DisplayError is spec.md §7's DisplayError kind: the window was closed or
// SDL itself failed. It terminates the frame loop rather than being
// retried, since there is nothing left to draw into.
type DisplayError struct {
	msg string
	err error
}

func (e *DisplayError) Error() string { return "display: " + e.msg }
func (e *DisplayError) Unwrap() error { return e.err }

// Display owns the SDL window, renderer and streaming texture, and
// implements frame.DisplaySink.
type Display struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture

	scale int
	open  bool

	rgba []byte // scratch buffer reused across frames
}

// New opens a window sized to the framebuffer at the given integer pixel
// scale (spec.md §6's -s/--scale, if given; 3 is a reasonable default for
// a 320x240 canvas on a modern display).
func New(scale int) (*Display, error) {
	if scale < 1 {
		scale = 1
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return nil, &DisplayError{msg: "initializing SDL video", err: err}
	}
	sdl.SetHint(sdl.HINT_RENDER_SCALE_QUALITY, "0")

	w := int32(memmap.FramebufferWidth * scale)
	h := int32(memmap.FramebufferHeight * scale)

	window, err := sdl.CreateWindow("MicroW8", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED, w, h, sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, &DisplayError{msg: "creating window", err: err}
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, &DisplayError{msg: "creating renderer", err: err}
	}

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_RGBA32, sdl.TEXTUREACCESS_STREAMING,
		memmap.FramebufferWidth, memmap.FramebufferHeight)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, &DisplayError{msg: "creating framebuffer texture", err: err}
	}

	return &Display{
		window:   window,
		renderer: renderer,
		texture:  texture,
		scale:    scale,
		open:     true,
		rgba:     make([]byte, memmap.FramebufferSize*4),
	}, nil
}

// IsOpen reports whether the window is still open (spec.md §6's
// is_open()).
func (d *Display) IsOpen() bool { return d.open }

// BeginFrame pumps the SDL event queue, closing the window on a quit event
// or Escape, and samples the keyboard into up to 4 packed gamepad bytes
// plus the R-key one-shot reset flag (spec.md §4.4 step 1). This runtime
// only drives pad 0 from the physical keyboard; pads 1-3 stay zero absent
// a second input device, which spec.md leaves unscoped for this
// implementation.
func (d *Display) BeginFrame() frame.Input {
	var input frame.Input
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			d.open = false
		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
				d.open = false
			}
			if e.Type == sdl.KEYDOWN && e.Repeat == 0 && e.Keysym.Sym == sdl.K_r {
				input.Reset = true
			}
		}
	}

	keys := sdl.GetKeyboardState()
	var pad0 byte
	if keys[sdl.SCANCODE_UP] != 0 {
		pad0 |= memmap.ButtonUp
	}
	if keys[sdl.SCANCODE_DOWN] != 0 {
		pad0 |= memmap.ButtonDown
	}
	if keys[sdl.SCANCODE_LEFT] != 0 {
		pad0 |= memmap.ButtonLeft
	}
	if keys[sdl.SCANCODE_RIGHT] != 0 {
		pad0 |= memmap.ButtonRight
	}
	if keys[sdl.SCANCODE_Z] != 0 {
		pad0 |= memmap.ButtonA
	}
	if keys[sdl.SCANCODE_X] != 0 {
		pad0 |= memmap.ButtonB
	}
	if keys[sdl.SCANCODE_A] != 0 {
		pad0 |= memmap.ButtonX
	}
	if keys[sdl.SCANCODE_S] != 0 {
		pad0 |= memmap.ButtonY
	}
	input.Gamepads[0] = pad0
	return input
}

// EndFrame converts the palette-indexed framebuffer to RGBA, uploads it to
// the streaming texture, presents it, and sleeps until nextFrame (spec.md
// §4.4 steps 7-8's dithered pacing).
func (d *Display) EndFrame(framebuffer, palette []byte, nextFrame time.Time) {
	if !d.open {
		return
	}
	d.convert(framebuffer, palette)

	if err := d.texture.Update(nil, unsafe.Pointer(&d.rgba[0]), memmap.FramebufferWidth*4); err != nil {
		d.open = false
		return
	}

	d.renderer.Clear()
	if err := d.renderer.Copy(d.texture, nil, nil); err != nil {
		d.open = false
		return
	}
	d.renderer.Present()

	if wait := time.Until(nextFrame); wait > 0 {
		sdl.Delay(uint32(wait / time.Millisecond))
	}
}

// convert expands the 320x240 palette-indexed framebuffer into the
// reusable RGBA scratch buffer, one palette lookup per pixel.
func (d *Display) convert(framebuffer, palette []byte) {
	for i, idx := range framebuffer {
		if i >= memmap.FramebufferSize {
			break
		}
		o := int(idx) * 4
		if o+3 >= len(palette) {
			continue
		}
		d.rgba[i*4+0] = palette[o+0]
		d.rgba[i*4+1] = palette[o+1]
		d.rgba[i*4+2] = palette[o+2]
		d.rgba[i*4+3] = palette[o+3]
	}
}

// Close tears down the window and its SDL resources.
func (d *Display) Close() {
	d.open = false
	if d.texture != nil {
		d.texture.Destroy()
	}
	if d.renderer != nil {
		d.renderer.Destroy()
	}
	if d.window != nil {
		d.window.Destroy()
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
}
