package cartridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"microw8/internal/basemodule"
	"microw8/internal/wasmbin"
)

// buildCartridgeSource constructs a tiny, valid source module: it imports
// the full base ABI (so base-reuse detection succeeds) plus env.memory, and
// defines a single exported "upd" that draws one pixel by calling setPixel.
func buildCartridgeSource(t *testing.T) []byte {
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

	setPixelIdx := uint32(15) // index of "setPixel" within NamedImports, see descriptor.go
	body := wasmbin.Seq(
		wasmbin.I32Const(1),
		wasmbin.I32Const(2),
		wasmbin.I32Const(0xff0000),
		wasmbin.Call(setPixelIdx),
		wasmbin.Return(),
	)
	m.FuncTypes = []uint32{basemodule.TypeVoid}
	m.Code = []wasmbin.Code{{Body: body}}
	m.Exports = []wasmbin.Export{{Name: "upd", Kind: wasmbin.ExternFunc, Index: uint32(basemodule.TotalFuncImports)}}

	return m.Encode()
}

func TestPackUnpackUncompressedRoundTrip(t *testing.T) {
	src := buildCartridgeSource(t)
	packed, err := Pack(src, PackOptions{Compress: false})
	require.NoError(t, err)
	require.Equal(t, byte(1), packed[0])

	unpacked, err := Unpack(packed)
	require.NoError(t, err)

	got, err := wasmbin.Decode(unpacked)
	require.NoError(t, err)
	want, err := wasmbin.Decode(src)
	require.NoError(t, err)

	require.Equal(t, want.Exports, got.Exports)
	require.Equal(t, len(want.Code), len(got.Code))
}

func TestPackUnpackCompressedRoundTrip(t *testing.T) {
	src := buildCartridgeSource(t)
	for _, level := range []int{0, 3, 9} {
		packed, err := Pack(src, PackOptions{Compress: true, Level: level})
		require.NoError(t, err)
		require.Equal(t, byte(2), packed[0])

		unpacked, err := Unpack(packed)
		require.NoError(t, err)

		got, err := wasmbin.Decode(unpacked)
		require.NoError(t, err)
		require.Len(t, got.Exports, 1)
		require.Equal(t, "upd", got.Exports[0].Name)
	}
}

func TestUnpackTagZeroPassthrough(t *testing.T) {
	src := buildCartridgeSource(t)
	packed := append([]byte{0}, src...)
	unpacked, err := Unpack(packed)
	require.NoError(t, err)
	require.Equal(t, src, unpacked)
}

func TestUnpackRejectsUnknownTag(t *testing.T) {
	_, err := Unpack([]byte{7, 1, 2, 3})
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestUnpackRejectsEmptyInput(t *testing.T) {
	_, err := Unpack(nil)
	require.Error(t, err)
}

func TestPackRejectsDefinedMemory(t *testing.T) {
	m := &wasmbin.Module{Memories: []wasmbin.MemType{{Min: 4}}}
	_, err := Pack(m.Encode(), PackOptions{})
	require.Error(t, err)
	var packErr *PackError
	require.ErrorAs(t, err, &packErr)
}

func TestPackReordersExportedFunctionsFirst(t *testing.T) {
	src := buildCartridgeSource(t)
	packed, err := Pack(src, PackOptions{Compress: false})
	require.NoError(t, err)
	unpacked, err := Unpack(packed)
	require.NoError(t, err)
	got, err := wasmbin.Decode(unpacked)
	require.NoError(t, err)
	require.Equal(t, uint32(basemodule.TotalFuncImports), got.Exports[0].Index)
}
