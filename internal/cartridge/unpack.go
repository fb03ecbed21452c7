package cartridge

import (
	"microw8/internal/basemodule"
	"microw8/internal/rangecoder"
	"microw8/internal/wasmbin"
)

// Unpack reverses Pack: it reads a cartridge's tag byte and returns the
// full wasm module bytes the sandbox should load (spec.md §4.1, §4.2).
//
// Tag 0 is a plain, complete wasm module: passed through unchanged (used
// for hand-authored or non-diffed cartridges, and the uncompiled cartridge
// case spec.md §1 carves out as a Non-goal for curlywas compilation itself
// but not for loading one that arrives this way).
// Tag 1 is an uncompressed section-merge diff against the base module.
// Tag 2 is the same diff, range-coded.
func Unpack(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, decodeErrorf("empty cartridge")
	}
	tag := data[0]
	body := data[1:]

	switch tag {
	case 0:
		if _, err := wasmbin.Decode(body); err != nil {
			return nil, wrapDecodeError("tag 0 payload is not a valid wasm module", err)
		}
		return body, nil

	case 1:
		return unpackDiff(body)

	case 2:
		if len(body) < 5 {
			return nil, decodeErrorf("tag 2 payload too short for level/decoded-length prefix")
		}
		level := int(body[0])
		decodedLen := decodeU32LE(body[1:5])
		coded := body[5:]
		payload := rangecoder.Decode(coded, int(decodedLen), level)
		return unpackDiff(payload)

	default:
		return nil, decodeErrorf("unknown cartridge tag 0x%02x", tag)
	}
}

func unpackDiff(payload []byte) ([]byte, error) {
	diff, present, err := wasmbin.DecodeSectionsNoHeader(payload)
	if err != nil {
		return nil, wrapDecodeError("diff section stream", err)
	}
	merged := mergeSections(basemodule.Module(), diff, present)
	return merged.Encode(), nil
}
