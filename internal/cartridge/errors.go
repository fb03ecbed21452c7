// Package cartridge implements the .uw8 container codec: Pack turns a
// source wasm module into the compact cartridge format by diffing it
// against the base module (internal/basemodule) and optionally range-coding
// the result; Unpack reverses both steps. See spec.md §4.1.
package cartridge

import "fmt"

// DecodeError is returned by Unpack for malformed cartridge bytes: an
// unknown version tag, a truncated section, or a section whose declared
// length runs past the remaining input.
type DecodeError struct {
	msg string
	err error
}

func (e *DecodeError) Error() string { return "cartridge: decode: " + e.msg }
func (e *DecodeError) Unwrap() error { return e.err }

func decodeErrorf(format string, args ...interface{}) error {
	return &DecodeError{msg: fmt.Sprintf(format, args...)}
}

func wrapDecodeError(msg string, err error) error {
	return &DecodeError{msg: msg + ": " + err.Error(), err: err}
}

// PackError is returned by Pack when the source module uses a feature
// outside the instruction whitelist, has more than one memory/table, or
// its imports/types don't line up with the base module the way the codec
// requires.
type PackError struct {
	msg string
}

func (e *PackError) Error() string { return "cartridge: pack: " + e.msg }

func packErrorf(format string, args ...interface{}) error {
	return &PackError{msg: fmt.Sprintf(format, args...)}
}
