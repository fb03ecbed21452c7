package sandbox

import "fmt"

// LoadError is spec.md §7's LoadError kind: the engine rejected the
// reconstructed module, a required export (endFrame) was missing, or the
// cartridge's memory shape didn't match the base ABI. Load errors abort
// the current load and leave the runtime idle (no instance).
type LoadError struct {
	msg string
	err error
}

func (e *LoadError) Error() string { return "sandbox: load: " + e.msg }
func (e *LoadError) Unwrap() error { return e.err }

func loadErrorf(format string, args ...interface{}) error {
	return &LoadError{msg: fmt.Sprintf(format, args...)}
}

func wrapLoadError(msg string, err error) error {
	return &LoadError{msg: msg + ": " + err.Error(), err: err}
}

// RuntimeError is spec.md §7's RuntimeError kind: a guest trap or watchdog
// preemption during start/upd/snd. The VM that produced it must be
// dropped; the runtime itself stays open for the next load.
type RuntimeError struct {
	msg string
	err error
}

func (e *RuntimeError) Error() string { return "sandbox: runtime: " + e.msg }
func (e *RuntimeError) Unwrap() error { return e.err }

func wrapRuntimeError(msg string, err error) error {
	return &RuntimeError{msg: msg, err: err}
}
