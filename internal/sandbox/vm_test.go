package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"microw8/internal/basemodule"
	"microw8/internal/memmap"
	"microw8/internal/wasmbin"
)

// buildFullCartridge assembles a complete, self-contained wasm module (not
// diffed against the base module — the sandbox compiles decoded bytes
// directly, so a tag-0 "plain module" cartridge exercises it without
// needing internal/cartridge's diff machinery) exporting start, upd and
// snd, in the same shape internal/cartridge's own tests build source
// modules in.
func buildFullCartridge(t *testing.T, withSnd bool) []byte {
	t.Helper()
	m := &wasmbin.Module{Types: append([]wasmbin.FuncType(nil), basemodule.Types...)}

	for i := 0; i < basemodule.TotalFuncImports; i++ {
		typ := basemodule.TypeVoid
		if i < len(basemodule.NamedImports) {
			typ = basemodule.NamedImports[i].Type
		}
		m.Imports = append(m.Imports, wasmbin.Import{
			Module: "env",
			Field:  basemodule.FuncImportName(i),
			Kind:   wasmbin.ExternFunc,
			Type:   uint32(typ),
		})
	}
	m.Imports = append(m.Imports, wasmbin.Import{
		Module: "env",
		Field:  "memory",
		Kind:   wasmbin.ExternMemory,
		Mem:    wasmbin.MemType{Min: 4, HasMax: true, Max: 4},
	})
	for i := 0; i < basemodule.NumReservedGlobals; i++ {
		m.Imports = append(m.Imports, wasmbin.Import{
			Module:        "env",
			Field:         "g_reserved0",
			Kind:          wasmbin.ExternGlobal,
			GlobalType:    wasmbin.ValI32,
			GlobalMutable: false,
		})
	}

	setPixelIdx := uint32(15) // "setPixel" within NamedImports

	startIdx := uint32(basemodule.TotalFuncImports)
	updIdx := startIdx + 1

	m.FuncTypes = []uint32{basemodule.TypeVoid, basemodule.TypeVoid}
	m.Code = []wasmbin.Code{
		{Body: wasmbin.Seq(wasmbin.Return())}, // start: no-op
		{Body: wasmbin.Seq( // upd: draw one pixel so we can observe it
			wasmbin.I32Const(1), wasmbin.I32Const(2), wasmbin.I32Const(0xff0000),
			wasmbin.Call(setPixelIdx),
			wasmbin.Return(),
		)},
	}
	m.Exports = []wasmbin.Export{
		{Name: "start", Kind: wasmbin.ExternFunc, Index: startIdx},
		{Name: "upd", Kind: wasmbin.ExternFunc, Index: updIdx},
	}

	if withSnd {
		sndType := len(m.Types)
		m.Types = append(m.Types, wasmbin.FuncType{
			Params:  []wasmbin.ValType{wasmbin.ValI32},
			Results: []wasmbin.ValType{wasmbin.ValF32},
		})
		sndIdx := updIdx + 1
		m.FuncTypes = append(m.FuncTypes, uint32(sndType))
		m.Code = append(m.Code, wasmbin.Code{Body: wasmbin.Seq(wasmbin.F32Const(0.5))})
		m.Exports = append(m.Exports, wasmbin.Export{Name: "snd", Kind: wasmbin.ExternFunc, Index: sndIdx})
	}

	return append([]byte{0}, m.Encode()...)
}

func TestNewStartAndUpd(t *testing.T) {
	ctx := context.Background()
	cart := buildFullCartridge(t, false)

	vm, err := New(ctx, cart, nil)
	require.NoError(t, err)
	defer vm.Close(ctx)

	require.True(t, vm.HasStart())
	require.True(t, vm.HasUpd())
	require.False(t, vm.HasGuestSnd())

	require.NoError(t, vm.Start(ctx, 0))
	require.NoError(t, vm.CallUpd(ctx, 0))
	require.NoError(t, vm.CallEndFrame(ctx, 0))

	fb := vm.ReadFramebuffer()
	require.Len(t, fb, memmap.FramebufferSize)
}

func TestGuestSndOverridesFallback(t *testing.T) {
	ctx := context.Background()
	cart := buildFullCartridge(t, true)

	vm, err := New(ctx, cart, nil)
	require.NoError(t, err)
	defer vm.Close(ctx)

	require.True(t, vm.HasGuestSnd())
	sample, err := vm.CallSnd(ctx, 0, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.5, sample, 1e-6)
}

func TestFrameCounterIncrements(t *testing.T) {
	ctx := context.Background()
	cart := buildFullCartridge(t, false)
	vm, err := New(ctx, cart, nil)
	require.NoError(t, err)
	defer vm.Close(ctx)

	require.Equal(t, uint32(0), vm.Frame())
	require.Equal(t, uint32(1), vm.Frame())
	vm.ResetFrame()
	require.Equal(t, uint32(0), vm.Frame())
}

func TestSoundRegisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	cart := buildFullCartridge(t, false)
	vm, err := New(ctx, cart, nil)
	require.NoError(t, err)
	defer vm.Close(ctx)

	var data [32]byte
	for i := range data {
		data[i] = byte(i)
	}
	vm.WriteSoundRegisters(data[:])
	require.Equal(t, data[:], vm.ReadSoundRegisters())
}

func TestNewRejectsLegacyTicOnlyABI(t *testing.T) {
	ctx := context.Background()
	m := &wasmbin.Module{
		Types:     []wasmbin.FuncType{basemodule.Types[basemodule.TypeI32ToVoid]},
		FuncTypes: []uint32{0},
		Code:      []wasmbin.Code{{Body: wasmbin.Seq(wasmbin.Return())}},
		Exports:   []wasmbin.Export{{Name: "tic", Kind: wasmbin.ExternFunc, Index: 0}},
	}
	cart := append([]byte{0}, m.Encode()...)

	_, err := New(ctx, cart, nil)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}
