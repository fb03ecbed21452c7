package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"microw8/internal/wasmbin"
)

// plainModule builds a minimal valid wasm module (imports the base ABI's
// memory only) so Decode's tag-0 passthrough path has something real to
// round-trip.
func plainModule(t *testing.T) []byte {
	t.Helper()
	m := &wasmbin.Module{
		Imports: []wasmbin.Import{{
			Module: "env",
			Field:  "memory",
			Kind:   wasmbin.ExternMemory,
			Mem:    wasmbin.MemType{Min: 1, HasMax: true, Max: 4},
		}},
	}
	return m.Encode()
}

func TestDecodeTag0Passthrough(t *testing.T) {
	raw := plainModule(t)
	cartridge := append([]byte{0}, raw...)

	decoded, err := Decode(context.Background(), cartridge)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestDecodeRejectsEmpty(t *testing.T) {
	_, err := Decode(context.Background(), nil)
	require.Error(t, err)
}

func TestBuildExportsLoadUw8(t *testing.T) {
	m := Build()
	found := false
	for _, exp := range m.Exports {
		if exp.Name == "load_uw8" && exp.Kind == wasmbin.ExternFunc {
			found = true
		}
	}
	require.True(t, found, "loader module must export load_uw8")
}
