package frame

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"microw8/internal/basemodule"
	"microw8/internal/memmap"
	"microw8/internal/sandbox"
	"microw8/internal/wasmbin"
)

// buildCartridge mirrors internal/sandbox's own test helper: a
// self-contained, non-diffed wasm module exporting upd, wrapped as a tag-0
// cartridge so the scheduler's VM can load it without needing the
// cartridge package's diff machinery.
func buildCartridge(t *testing.T) []byte {
	t.Helper()
	m := &wasmbin.Module{Types: append([]wasmbin.FuncType(nil), basemodule.Types...)}
	for i := 0; i < basemodule.TotalFuncImports; i++ {
		typ := basemodule.TypeVoid
		if i < len(basemodule.NamedImports) {
			typ = basemodule.NamedImports[i].Type
		}
		m.Imports = append(m.Imports, wasmbin.Import{
			Module: "env", Field: basemodule.FuncImportName(i), Kind: wasmbin.ExternFunc, Type: uint32(typ),
		})
	}
	m.Imports = append(m.Imports, wasmbin.Import{
		Module: "env", Field: "memory", Kind: wasmbin.ExternMemory,
		Mem: wasmbin.MemType{Min: 4, HasMax: true, Max: 4},
	})
	for i := 0; i < basemodule.NumReservedGlobals; i++ {
		m.Imports = append(m.Imports, wasmbin.Import{
			Module: "env", Field: "g_reserved0", Kind: wasmbin.ExternGlobal, GlobalType: wasmbin.ValI32,
		})
	}
	updIdx := uint32(basemodule.TotalFuncImports)
	m.FuncTypes = []uint32{basemodule.TypeVoid}
	m.Code = []wasmbin.Code{{Body: wasmbin.Seq(wasmbin.Return())}}
	m.Exports = []wasmbin.Export{{Name: "upd", Kind: wasmbin.ExternFunc, Index: updIdx}}
	return append([]byte{0}, m.Encode()...)
}

type fakeDisplay struct {
	input        Input
	lastFB       []byte
	lastPalette  []byte
	endFrameHits int
	open         bool
}

func (f *fakeDisplay) BeginFrame() Input { return f.input }
func (f *fakeDisplay) EndFrame(fb, palette []byte, next time.Time) {
	f.lastFB = fb
	f.lastPalette = palette
	f.endFrameHits++
}
func (f *fakeDisplay) IsOpen() bool { return f.open }

type fakeRegisterSink struct {
	updates []RegisterUpdate
}

func (f *fakeRegisterSink) Send(u RegisterUpdate) { f.updates = append(f.updates, u) }

func loadFn(ctx context.Context, b []byte) (*sandbox.VM, error) {
	return sandbox.New(ctx, b, nil)
}

func TestRunFrameDrivesVMAndSinks(t *testing.T) {
	ctx := context.Background()
	cart := buildCartridge(t)

	vm, err := sandbox.New(ctx, cart, nil)
	require.NoError(t, err)
	require.NoError(t, vm.Start(ctx, 0))

	display := &fakeDisplay{open: true}
	registers := &fakeRegisterSink{}
	s := New(vm, cart, display, registers, loadFn)

	require.NoError(t, s.RunFrame(ctx))
	require.Equal(t, 1, display.endFrameHits)
	require.Len(t, display.lastFB, memmap.FramebufferSize)
	require.Len(t, display.lastPalette, memmap.PaletteSize)
	require.Len(t, registers.updates, 1)
	require.NotNil(t, s.VM())
}

func TestRunFrameResetReloadsCartridge(t *testing.T) {
	ctx := context.Background()
	cart := buildCartridge(t)

	vm, err := sandbox.New(ctx, cart, nil)
	require.NoError(t, err)
	require.NoError(t, vm.Start(ctx, 0))

	display := &fakeDisplay{open: true}
	s := New(vm, cart, display, nil, loadFn)

	before := s.VM()
	display.input = Input{Reset: true}
	require.NoError(t, s.RunFrame(ctx))
	require.NotSame(t, before, s.VM())
}

func TestRunFrameWithNilVMClearsDisplay(t *testing.T) {
	ctx := context.Background()
	cart := buildCartridge(t)
	display := &fakeDisplay{open: true}
	s := New(nil, cart, display, nil, loadFn)

	require.NoError(t, s.RunFrame(ctx))
	require.Len(t, display.lastFB, memmap.FramebufferSize)
	for _, b := range display.lastFB {
		require.Zero(t, b)
	}
}

func TestNextFrameDeadlineClampedToSeventeenMs(t *testing.T) {
	now := time.Now()
	for ms := int64(0); ms < 200; ms += 7 {
		deadline := NextFrameDeadline(now, ms)
		delta := deadline.Sub(now)
		require.GreaterOrEqual(t, delta, time.Duration(0))
		require.LessOrEqual(t, delta, maxSleepMs*time.Millisecond)
	}
}
