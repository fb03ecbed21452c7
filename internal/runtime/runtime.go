// Package runtime wires the sandbox, frame scheduler, audio engine and
// display sink into the single capability set spec.md §6 exposes to the
// CLI: load a cartridge, run one frame, ask whether the window is still
// open, and optionally disable audio.
package runtime

import (
	"context"

	"microw8/internal/audio"
	"microw8/internal/diag"
	"microw8/internal/display"
	"microw8/internal/frame"
	"microw8/internal/sandbox"
)

// Runtime owns one loaded cartridge's frame scheduler, its sibling audio
// engine (if audio is enabled and came up), and the display sink.
type Runtime struct {
	display      *display.Display
	scheduler    *frame.Scheduler
	audioEngine  *audio.Engine
	audioEnabled bool
	timeoutTicks uint64
	logger       *diag.Logger
}

// Option configures a Runtime at New time.
type Option func(*Runtime)

// WithTimeoutTicks overrides the default watchdog timeout applied to
// upd/endFrame calls (spec.md §6's -t/--timeout).
func WithTimeoutTicks(n uint64) Option {
	return func(r *Runtime) { r.timeoutTicks = n }
}

// WithoutAudio disables the audio engine entirely (spec.md §6's
// -m/--disable-audio).
func WithoutAudio() Option {
	return func(r *Runtime) { r.audioEnabled = false }
}

// New opens a display window at the given pixel scale and returns an
// unloaded Runtime. Call Load to bring up a cartridge.
func New(scale int, logger *diag.Logger, opts ...Option) (*Runtime, error) {
	if logger == nil {
		logger = diag.Default()
	}
	d, err := display.New(scale)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		display:      d,
		audioEnabled: true,
		timeoutTicks: frame.DefaultTimeoutTicks,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// IsOpen reports whether the display window is still open (spec.md §6).
func (r *Runtime) IsOpen() bool { return r.display.IsOpen() }

// DisableAudio tears down a running audio engine and prevents Load from
// starting a new one, without touching the video side (spec.md §6's
// disable_audio()).
func (r *Runtime) DisableAudio(ctx context.Context) {
	r.audioEnabled = false
	if r.audioEngine != nil {
		r.audioEngine.Close(ctx)
		r.audioEngine = nil
	}
}

// Load instantiates a video VM and, if enabled, a sibling audio VM for the
// given .uw8 cartridge bytes (decoded inside the sandbox), replacing whatever was previously loaded
// (spec.md §4.3's load operation, §8 scenario 6's reload-on-reset reusing
// the same path via frame.Scheduler's loadFn).
func (r *Runtime) Load(ctx context.Context, cartridgeBytes []byte) error {
	r.teardownLoaded(ctx)

	vm, err := sandbox.New(ctx, cartridgeBytes, r.logger)
	if err != nil {
		return err
	}
	if err := vm.Start(ctx, r.timeoutTicks); err != nil {
		vm.Close(ctx)
		return err
	}

	var sink frame.RegisterSink
	if r.audioEnabled {
		engine, err := audio.New(ctx, cartridgeBytes, r.logger)
		if err != nil {
			// AudioInitError never escapes load (spec.md §7): log and
			// continue with video only.
			r.logger.Logf(diag.Audio, diag.LevelWarn, "audio init failed, continuing without audio: %v", err)
		} else {
			r.audioEngine = engine
			sink = engine
		}
	}

	loadFn := func(ctx context.Context, b []byte) (*sandbox.VM, error) {
		return sandbox.New(ctx, b, r.logger)
	}
	r.scheduler = frame.New(vm, cartridgeBytes, r.display, sink, loadFn)
	r.scheduler.SetTimeoutTicks(r.timeoutTicks)
	return nil
}

// RunFrame drives exactly one frame through the scheduler (spec.md §4.4).
func (r *Runtime) RunFrame(ctx context.Context) error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.RunFrame(ctx)
}

func (r *Runtime) teardownLoaded(ctx context.Context) {
	if r.audioEngine != nil {
		r.audioEngine.Close(ctx)
		r.audioEngine = nil
	}
	if r.scheduler != nil {
		if vm := r.scheduler.VM(); vm != nil {
			vm.Close(ctx)
		}
		r.scheduler = nil
	}
}

// Close tears down everything: audio, the loaded VM, and the display
// window (spec.md §5: "teardown waits for the audio stream to stop").
func (r *Runtime) Close(ctx context.Context) {
	r.teardownLoaded(ctx)
	r.display.Close()
}
