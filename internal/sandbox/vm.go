// Package sandbox implements the MicroW8 sandbox host (spec.md §4.3): it
// instantiates the generated platform module and a decoded cartridge
// module against one shared 4-page memory inside a single wazero runtime,
// republishes the platform's exports under the cartridge's "env" import
// namespace, wires native math/log host functions, and arms a per-instance
// watchdog around every guest entrypoint call.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"microw8/internal/diag"
	"microw8/internal/loader"
	"microw8/internal/memmap"
	"microw8/internal/platform"
	"microw8/internal/watchdog"
)

// DefaultTimeoutTicks is the watchdog timeout spec.md §4.4 step 5 gives as
// the default: 30 ticks of the ~17ms epoch, about half a second.
const DefaultTimeoutTicks = 30

// VM owns one running instance of the platform+cartridge pair: a wazero
// runtime (spec.md's "store"), the shared memory, resolved guest
// entrypoints, and a dedicated watchdog. Two VMs never share a runtime or
// memory — the frame scheduler's VM and the audio engine's sibling VM are
// each their own VM value (spec.md §4.5: "not sharing memory").
type VM struct {
	runtime      wazero.Runtime
	platformMod  api.Module
	cartridgeMod api.Module

	updFn      api.Function
	startFn    api.Function
	endFrameFn api.Function
	sndFn      api.Function
	sndIsGuest bool // true if sndFn is the cartridge's own snd, false if platform sndGes

	wd        *watchdog.Watchdog
	startedAt time.Time
	frame     uint32

	logger *diag.Logger
}

// New decodes cartridge bytes through the in-sandbox loader, instantiates
// the platform and cartridge modules against a shared memory, resolves the
// guest entrypoints, and starts the watchdog. The returned VM has not yet
// had start() called; see Start.
func New(ctx context.Context, cartridgeBytes []byte, logger *diag.Logger) (*VM, error) {
	if logger == nil {
		logger = diag.Default()
	}

	decoded, err := loader.Decode(ctx, cartridgeBytes)
	if err != nil {
		return nil, wrapLoadError("decoding cartridge", err)
	}

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	vm := &VM{runtime: rt, wd: watchdog.New()}
	ok := false
	defer func() {
		if !ok {
			vm.wd.Stop()
			rt.Close(ctx)
		}
	}()

	if err := vm.linkNative(ctx); err != nil {
		return nil, wrapLoadError("linking native imports", err)
	}

	platformCompiled, err := rt.CompileModule(ctx, platform.Bytes())
	if err != nil {
		return nil, wrapLoadError("compiling platform module", err)
	}
	platformMod, err := rt.InstantiateModule(ctx, platformCompiled, wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		return nil, wrapLoadError("instantiating platform module", err)
	}
	vm.platformMod = platformMod

	vm.endFrameFn = platformMod.ExportedFunction("endFrame")
	if vm.endFrameFn == nil {
		return nil, loadErrorf("platform module is missing required export endFrame")
	}

	cartridgeCompiled, err := rt.CompileModule(ctx, decoded)
	if err != nil {
		return nil, wrapLoadError("compiling cartridge module", err)
	}
	if err := checkABI(cartridgeCompiled); err != nil {
		return nil, err
	}

	cartridgeMod, err := rt.InstantiateModule(ctx, cartridgeCompiled, wazero.NewModuleConfig().WithName("cart"))
	if err != nil {
		return nil, wrapLoadError("instantiating cartridge module", err)
	}
	vm.cartridgeMod = cartridgeMod

	vm.updFn = cartridgeMod.ExportedFunction("upd")
	vm.startFn = cartridgeMod.ExportedFunction("start")
	if fn := cartridgeMod.ExportedFunction("snd"); fn != nil {
		vm.sndFn = fn
		vm.sndIsGuest = true
	} else {
		vm.sndFn = platformMod.ExportedFunction("sndGes")
		vm.sndIsGuest = false
	}

	vm.startedAt = time.Now()
	ok = true
	return vm, nil
}

// checkABI rejects the older tic(time)-style ABI SPEC_FULL.md §4 and
// spec.md §9's open question both call out: the canonical current ABI is
// upd/start, and a cartridge that only exports the legacy entrypoint is
// refused rather than silently run through a compatibility shim.
func checkABI(compiled wazero.CompiledModule) error {
	exports := compiled.ExportedFunctions()
	_, hasTic := exports["tic"]
	_, hasUpd := exports["upd"]
	_, hasStart := exports["start"]
	if hasTic && !hasUpd && !hasStart {
		return loadErrorf("cartridge exports the legacy tic(time) ABI, which this runtime does not support")
	}
	return nil
}

// linkNative wires the "native" host module: the eleven math transcendentals
// plus logChar, exactly the imports internal/platform's build.go expects at
// indices 0-11 (spec.md §4.3's "Math/log imports"). logChar's line buffer is
// a closure-local accumulator, created fresh per VM and discarded with it —
// never routed through internal/diag, which is a separate, opt-in subsystem
// logger (see SPEC_FULL.md §2).
func (vm *VM) linkNative(ctx context.Context) error {
	var logBuf bytes.Buffer
	builder := vm.runtime.NewHostModuleBuilder("native")

	unary := func(name string, f func(float64) float64) {
		builder = builder.NewFunctionBuilder().
			WithFunc(func(x float32) float32 { return float32(f(float64(x))) }).
			Export(name)
	}
	binary := func(name string, f func(float64, float64) float64) {
		builder = builder.NewFunctionBuilder().
			WithFunc(func(x, y float32) float32 { return float32(f(float64(x), float64(y))) }).
			Export(name)
	}

	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	binary("atan2", math.Atan2)
	binary("pow", math.Pow)
	unary("log", math.Log)
	binary("fmod", math.Mod)
	unary("exp", math.Exp)

	builder = builder.NewFunctionBuilder().
		WithFunc(func(c int32) {
			if c == '\n' {
				fmt.Fprintln(os.Stdout, logBuf.String())
				logBuf.Reset()
				return
			}
			logBuf.WriteByte(byte(c))
		}).
		Export("logChar")

	_, err := builder.Instantiate(ctx)
	return err
}

// armedCall runs fn under the watchdog with the given timeout, treating any
// error (guest trap or watchdog-cancelled context) as a RuntimeError. Per
// spec.md §4.3's failure semantics, the caller is expected to drop the
// whole VM on a RuntimeError rather than attempt to keep using it.
func (vm *VM) armedCall(ctx context.Context, fn api.Function, timeoutTicks uint64, args ...uint64) ([]uint64, error) {
	cctx, cancel := vm.wd.Arm(ctx, timeoutTicks)
	defer cancel()
	res, err := fn.Call(cctx, args...)
	vm.wd.Disarm()
	if err != nil {
		return nil, wrapRuntimeError("guest call trapped or was preempted", err)
	}
	return res, nil
}

// HasUpd reports whether the cartridge exports upd (spec.md: "optional —
// cartridges may be pure-graphics via start only").
func (vm *VM) HasUpd() bool { return vm.updFn != nil }

// HasStart reports whether the cartridge exports start.
func (vm *VM) HasStart() bool { return vm.startFn != nil }

// Start calls the cartridge's start export once, if present (spec.md
// §4.3's load operation: "calls start once if present").
func (vm *VM) Start(ctx context.Context, timeoutTicks uint64) error {
	if vm.startFn == nil {
		return nil
	}
	_, err := vm.armedCall(ctx, vm.startFn, timeoutTicks)
	return err
}

// CallUpd invokes the cartridge's upd export, if present, under the
// watchdog. A no-op (nil error) if the cartridge has no upd.
func (vm *VM) CallUpd(ctx context.Context, timeoutTicks uint64) error {
	if vm.updFn == nil {
		return nil
	}
	_, err := vm.armedCall(ctx, vm.updFn, timeoutTicks)
	return err
}

// CallEndFrame invokes the platform's endFrame export, always required and
// always called (spec.md §4.4 step 6).
func (vm *VM) CallEndFrame(ctx context.Context, timeoutTicks uint64) error {
	_, err := vm.armedCall(ctx, vm.endFrameFn, timeoutTicks)
	return err
}

// CallSnd invokes whichever snd implementation is active (the cartridge's
// own, or the platform's sndGes fallback) for one sample index, under the
// watchdog, and returns the f32 sample it produced.
func (vm *VM) CallSnd(ctx context.Context, sampleIndex int32, timeoutTicks uint64) (float32, error) {
	res, err := vm.armedCall(ctx, vm.sndFn, timeoutTicks, api.EncodeI32(sampleIndex))
	if err != nil {
		return 0, err
	}
	return api.DecodeF32(res[0]), nil
}

// HasGuestSnd reports whether the active snd implementation is the
// cartridge's own export (as opposed to the platform's register-driven
// sndGes fallback).
func (vm *VM) HasGuestSnd() bool { return vm.sndIsGuest }

// StartTime is the monotonic instant New finished creating the VM, the
// basis for the "time" register spec.md §4.4 step 2 computes from.
func (vm *VM) StartTime() time.Time { return vm.startedAt }

// Frame returns and then increments the wrapping frame counter spec.md
// §4.4 step 4 maintains.
func (vm *VM) Frame() uint32 {
	f := vm.frame
	vm.frame++
	return f
}

// ResetFrame sets the frame counter back to zero. The frame scheduler's
// reset does not call it: reset replaces the whole VM, whose counter starts
// at zero.
func (vm *VM) ResetFrame() { vm.frame = 0 }

func (vm *VM) memory() api.Memory { return vm.platformMod.Memory() }

// WriteTime writes the ms-since-start time register (memmap.TimeOffset).
func (vm *VM) WriteTime(ms int32) {
	vm.memory().WriteUint32Le(memmap.TimeOffset, uint32(ms))
}

// WriteGamepads writes the packed 4-byte gamepad bitmask register.
func (vm *VM) WriteGamepads(packed uint32) {
	vm.memory().WriteUint32Le(memmap.GamepadOffset, packed)
}

// WriteFrameCounter writes the frame counter register.
func (vm *VM) WriteFrameCounter(n uint32) {
	vm.memory().WriteUint32Le(memmap.FrameOffset, n)
}

// ReadFramebuffer copies out the 320x240 palette-indexed framebuffer.
func (vm *VM) ReadFramebuffer() []byte {
	return vm.readRegion(memmap.FramebufferOffset, memmap.FramebufferSize)
}

// ReadPalette copies out the 256-entry RGBA palette.
func (vm *VM) ReadPalette() []byte {
	return vm.readRegion(memmap.PaletteOffset, memmap.PaletteSize)
}

// ReadSoundRegisters copies out the 32-byte sound register bank.
func (vm *VM) ReadSoundRegisters() []byte {
	return vm.readRegion(memmap.SoundRegOffset, memmap.SoundRegSize)
}

// WriteSoundRegisters overwrites the 32-byte sound register bank, used by
// the audio engine to apply a timestamped register update (spec.md §4.5
// step 2b).
func (vm *VM) WriteSoundRegisters(data []byte) {
	if len(data) != memmap.SoundRegSize {
		panic("sandbox: WriteSoundRegisters requires exactly 32 bytes")
	}
	vm.memory().Write(memmap.SoundRegOffset, data)
}

func (vm *VM) readRegion(offset uint32, size int) []byte {
	b, ok := vm.memory().Read(offset, uint32(size))
	if !ok {
		return make([]byte, size)
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

// Close tears down the VM's runtime (closing both module instances) and
// stops its watchdog. Safe to call on a VM whose New failed partway, since
// New's own cleanup already does this before returning an error — Close is
// for the success path's eventual teardown (drop on trap, or replaced by
// the next Load/reset).
func (vm *VM) Close(ctx context.Context) {
	vm.wd.Stop()
	vm.runtime.Close(ctx)
}
