// Package frame implements the one-shot-per-tick frame scheduler spec.md
// §4.4 describes: dithered 60Hz pacing, register writes before upd, the
// platform's endFrame afterward, and handing the resulting framebuffer off
// to a display sink while forwarding a sound-register snapshot to the
// audio engine.
package frame

import (
	"context"
	"time"

	"microw8/internal/memmap"
	"microw8/internal/sandbox"
)

// Input is what the display sink reports at the start of a frame: the
// packed gamepad bitmask for up to 4 pads, and a one-shot reset flag
// mapped to the R key (spec.md §4.4 step 1).
type Input struct {
	Gamepads [4]byte
	Reset    bool
}

// RegisterUpdate is the timestamped 32-byte sound-register snapshot
// forwarded from the frame thread to the audio engine (spec.md §3).
type RegisterUpdate struct {
	Time uint32
	Data [32]byte
}

// DisplaySink is the §6 "Display sink interface" this scheduler drives.
// BeginFrame reads input for the upcoming frame; EndFrame hands over the
// rendered framebuffer/palette and the deadline for the next tick.
type DisplaySink interface {
	BeginFrame() Input
	EndFrame(framebuffer, palette []byte, nextFrame time.Time)
	IsOpen() bool
}

// RegisterSink receives a register snapshot once per frame. The audio
// engine implements this with a non-blocking, drop-on-full send (spec.md
// §3's channel capacity 30, §5's backpressure policy).
type RegisterSink interface {
	Send(update RegisterUpdate)
}

// DefaultTimeoutTicks is the watchdog timeout applied to upd/endFrame
// calls, spec.md §4.4 step 5's default.
const DefaultTimeoutTicks = sandbox.DefaultTimeoutTicks

// maxSleepMs is the hard cap spec.md §4.4 step 3 requires: "clamped to
// now + 17ms max", chosen so the video clock never drifts far enough from
// the 44.1kHz audio clock to produce audible beating.
const maxSleepMs = 17

// NextFrameDeadline computes the dithered 60Hz schedule's next deadline
// from the current time (ms since start) and "now" (spec.md §4.4 step 3):
// o = ((time*6) mod 100 - 50) / 6 ; target = now + (16 - o), clamped to
// at most now+17ms.
func NextFrameDeadline(now time.Time, timeMs int64) time.Time {
	phase := (timeMs*6)%100 - 50
	o := phase / 6
	deltaMs := 16 - o
	if deltaMs > maxSleepMs {
		deltaMs = maxSleepMs
	}
	if deltaMs < 0 {
		deltaMs = 0
	}
	return now.Add(time.Duration(deltaMs) * time.Millisecond)
}

// Scheduler drives one VM instance's frame loop. It owns the VM handle and
// the stored cartridge bytes needed to reload on reset (spec.md §3: "kept
// to support the R-key reset").
type Scheduler struct {
	vm             *sandbox.VM
	cartridgeBytes []byte
	display        DisplaySink
	registers      RegisterSink
	timeoutTicks   uint64

	loadFn func(ctx context.Context, bytes []byte) (*sandbox.VM, error)
}

// New wraps an already-loaded VM with the scheduler that drives it.
// loadFn is called to re-instantiate the VM on reset or after an update
// error clears it — normally sandbox.New, parameterized here so tests can
// substitute a fake.
func New(vm *sandbox.VM, cartridgeBytes []byte, display DisplaySink, registers RegisterSink,
	loadFn func(ctx context.Context, bytes []byte) (*sandbox.VM, error)) *Scheduler {
	return &Scheduler{
		vm:             vm,
		cartridgeBytes: append([]byte(nil), cartridgeBytes...),
		display:        display,
		registers:      registers,
		timeoutTicks:   DefaultTimeoutTicks,
		loadFn:         loadFn,
	}
}

// VM returns the currently active VM instance, or nil if the last frame
// dropped it (spec.md §4.4 step 9: "if update_error, leave the instance
// dropped").
func (s *Scheduler) VM() *sandbox.VM { return s.vm }

// SetTimeoutTicks overrides the watchdog timeout applied to upd calls
// (spec.md §6's -t/--timeout flag).
func (s *Scheduler) SetTimeoutTicks(n uint64) { s.timeoutTicks = n }

// RunFrame executes exactly one frame iteration (spec.md §4.4's numbered
// steps). If an earlier frame's upd or endFrame error dropped the VM (and no
// reset reloads it), the VM is nil and this call hands the display an
// all-zero framebuffer and palette and returns nil.
func (s *Scheduler) RunFrame(ctx context.Context) error {
	input := s.display.BeginFrame()

	if input.Reset {
		if err := s.reset(ctx); err != nil {
			return err
		}
	}

	if s.vm == nil {
		// A prior frame's update error dropped the instance; nothing to
		// drive until the next reset or reload (spec.md §4.3: "the VM is
		// dropped, the display is cleared to zero").
		s.display.EndFrame(make([]byte, memmap.FramebufferSize), make([]byte, memmap.PaletteSize), time.Now().Add(maxSleepMs*time.Millisecond))
		return nil
	}

	now := time.Now()
	timeMs := now.Sub(s.vm.StartTime()).Milliseconds()

	s.vm.WriteTime(int32(timeMs))
	s.vm.WriteGamepads(packGamepads(input.Gamepads))
	frameNo := s.vm.Frame()
	s.vm.WriteFrameCounter(frameNo)

	updErr := s.vm.CallUpd(ctx, s.timeoutTicks)

	// endFrame always runs, even after a failed upd, so the platform can
	// still clean up per-frame state; but an endFrame error is itself
	// fatal to the frame (spec.md §4.4 step 6).
	endErr := s.vm.CallEndFrame(ctx, s.timeoutTicks)

	if s.registers != nil {
		var snapshot RegisterUpdate
		snapshot.Time = uint32(timeMs)
		copy(snapshot.Data[:], s.vm.ReadSoundRegisters())
		s.registers.Send(snapshot)
	}

	framebuffer := s.vm.ReadFramebuffer()
	palette := s.vm.ReadPalette()
	next := NextFrameDeadline(now, timeMs)
	s.display.EndFrame(framebuffer, palette, next)

	if endErr != nil {
		s.dropVM(ctx)
		return endErr
	}
	if updErr != nil {
		s.dropVM(ctx)
		return updErr
	}
	return nil
}

// reset discards the current instance and reloads the stored cartridge
// bytes (spec.md §4.4 step 1 and §8 scenario 6).
func (s *Scheduler) reset(ctx context.Context) error {
	s.dropVM(ctx)
	vm, err := s.loadFn(ctx, s.cartridgeBytes)
	if err != nil {
		return err
	}
	if err := vm.Start(ctx, s.timeoutTicks); err != nil {
		vm.Close(ctx)
		return err
	}
	s.vm = vm
	return nil
}

func (s *Scheduler) dropVM(ctx context.Context) {
	if s.vm == nil {
		return
	}
	s.vm.Close(ctx)
	s.vm = nil
}

// packGamepads packs up to 4 one-byte-per-pad gamepad states into the
// little-endian i32 register value spec.md §3 describes.
func packGamepads(pads [4]byte) uint32 {
	return uint32(pads[0]) | uint32(pads[1])<<8 | uint32(pads[2])<<16 | uint32(pads[3])<<24
}
