// Package audio implements the audio engine spec.md §4.5 describes: a
// second, independent VM instance driven from a host-audio thread, fed
// timestamped sound-register snapshots from the frame scheduler over a
// bounded channel, resampled and format-adapted to whatever the output
// device actually grants.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"microw8/internal/diag"
	"microw8/internal/frame"
	"microw8/internal/sandbox"
)

// channelCapacity is spec.md §3's "delivered in order up to channel
// capacity (30); excess drops silently".
const channelCapacity = 30

// sndWatchdogTicks is the per-sample-block watchdog timeout spec.md §4.5
// step 2a gives: "Arm watchdog epoch = 30".
const sndWatchdogTicks = 30

// minStepFrames/targetQueuedMs bound how much work one fill pass does:
// spec.md §4.5 step 2c's "clamped to >= 64" floor, and a soft ceiling on
// how far ahead of the device we buffer so reset/latency stays bounded.
const (
	minStepFrames  = 64
	targetQueuedMs = 60
)

// Engine owns the audio-side VM sibling, the device, and the resampler
// between the VM's fixed 44.1kHz clock and whatever rate the device
// granted.
type Engine struct {
	vm *sandbox.VM

	updates chan frame.RegisterUpdate
	pending []frame.RegisterUpdate

	currentTimeMs float64
	sampleIndex   int64

	dev      sdl.AudioDeviceID
	rate     int
	channels int
	format   sdl.AudioFormat

	resample *resampler

	stop chan struct{}
	wg   sync.WaitGroup

	logger *diag.Logger
}

// New instantiates the audio-side VM (a sibling of the frame scheduler's,
// sharing cartridge bytes but never memory), opens the output device, and
// starts the fill loop. Any failure here is an AudioInitError: non-fatal
// to the caller, who is expected to continue without audio (spec.md §4.3,
// §7).
func New(ctx context.Context, cartridgeBytes []byte, logger *diag.Logger) (*Engine, error) {
	if logger == nil {
		logger = diag.Default()
	}

	vm, err := sandbox.New(ctx, cartridgeBytes, logger)
	if err != nil {
		return nil, &AudioInitError{msg: "instantiating audio VM sibling", err: err}
	}
	if err := vm.Start(ctx, sndWatchdogTicks); err != nil {
		vm.Close(ctx)
		return nil, &AudioInitError{msg: "running cartridge start on audio VM", err: err}
	}

	dev, obtained, err := openDevice()
	if err != nil {
		vm.Close(ctx)
		return nil, &AudioInitError{msg: "opening audio device", err: err}
	}

	e := &Engine{
		vm:       vm,
		updates:  make(chan frame.RegisterUpdate, channelCapacity),
		dev:      dev,
		rate:     int(obtained.Freq),
		channels: int(obtained.Channels),
		format:   obtained.Format,
		resample: newResampler(nativeSampleRate, int(obtained.Freq)),
		stop:     make(chan struct{}),
		logger:   logger,
	}

	e.wg.Add(1)
	go e.run(ctx)
	return e, nil
}

// Send delivers a register snapshot from the frame thread, dropping it if
// the channel is full (spec.md §3/§5's backpressure: "try_send dropping on
// full is acceptable").
func (e *Engine) Send(update frame.RegisterUpdate) {
	select {
	case e.updates <- update:
	default:
	}
}

// Close stops the fill loop, waits for it to exit, and tears down the
// device and the VM sibling in reverse acquisition order (spec.md §5:
// "Teardown must wait for the audio stream to stop").
func (e *Engine) Close(ctx context.Context) {
	close(e.stop)
	e.wg.Wait()
	closeDevice(e.dev)
	e.vm.Close(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(4 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.fill(ctx)
		}
	}
}

// fill is spec.md §4.5's callback body, run from our own goroutine rather
// than a true OS audio callback (see DESIGN.md: go-sdl2's callback-based
// API needs a cgo trampoline the retrieval pack never exercises, so this
// runtime follows the teacher's own queued-audio producer-loop precedent
// instead). It drains pending register updates, then tops up the device
// queue up to a small target so latency stays low without starving it.
func (e *Engine) fill(ctx context.Context) {
	e.drainUpdates()

	bytesPerFrame := e.channels * formatBytes(e.format)
	targetBytes := uint32(e.rate * bytesPerFrame * targetQueuedMs / 1000)

	for sdl.GetQueuedAudioSize(e.dev) < targetBytes {
		native := e.produceNativeBlock(ctx, 512)
		if len(native) == 0 {
			return
		}
		out := e.resample.process(native)
		if len(out) == 0 {
			continue
		}
		bytes := encodeFrames(out, e.format, e.channels)
		sdl.QueueAudio(e.dev, bytes)
	}
}

// produceNativeBlock runs spec.md §4.5 step 2's inner loop at the VM's
// native 44.1kHz clock, for up to maxFrames stereo frames.
func (e *Engine) produceNativeBlock(ctx context.Context, maxFrames int) [][2]float32 {
	out := make([][2]float32, 0, maxFrames)
	for len(out) < maxFrames {
		e.applyDueUpdates()

		step := maxFrames - len(out)
		if nextMs, ok := e.nextUpdateTime(); ok {
			gapFrames := int((nextMs - e.currentTimeMs) * nativeSampleRate / 1000)
			if gapFrames < step {
				step = gapFrames
			}
		}
		if step < minStepFrames {
			step = minStepFrames
		}
		if step > maxFrames-len(out) {
			step = maxFrames - len(out)
		}
		if step <= 0 {
			step = 1
		}

		e.vm.WriteTime(int32(e.currentTimeMs))

		for i := 0; i < step; i++ {
			left, errL := e.vm.CallSnd(ctx, int32(e.sampleIndex), sndWatchdogTicks)
			if errL != nil {
				left = 0 // a trapped snd becomes silence, never fails the stream (spec.md §4.5)
			}
			var right float32
			if e.vm.HasGuestSnd() {
				r, errR := e.vm.CallSnd(ctx, int32(e.sampleIndex+1), sndWatchdogTicks)
				if errR != nil {
					r = 0
				}
				right = r
			} else {
				right = left // the register-driven fallback synth is mono; duplicate to both channels
			}
			e.sampleIndex += 2
			out = append(out, [2]float32{clampSample(left), clampSample(right)})
		}

		elapsedMs := float64(step) * 1000 / nativeSampleRate
		if elapsedMs < 1 {
			elapsedMs = 1
		}
		e.currentTimeMs += elapsedMs
	}
	return out
}

// drainUpdates pulls every currently-queued register update off the
// channel, slewing the audio clock toward the first one's timestamp by
// 1/8th (spec.md §4.5 step 1: a low-pass filter absorbing jitter between
// the frame clock and the audio clock).
func (e *Engine) drainUpdates() {
	first := true
	for {
		select {
		case u := <-e.updates:
			if first {
				e.currentTimeMs += (float64(u.Time) - e.currentTimeMs) / 8
				first = false
			}
			e.pending = append(e.pending, u)
		default:
			return
		}
	}
}

// applyDueUpdates writes every pending update whose timestamp has already
// passed into the sound register bank, in timestamp order (spec.md §5:
// "applied... in timestamp order, not arrival order").
func (e *Engine) applyDueUpdates() {
	for {
		idx := -1
		var earliest uint32
		for i, u := range e.pending {
			if float64(u.Time) <= e.currentTimeMs && (idx == -1 || u.Time < earliest) {
				idx, earliest = i, u.Time
			}
		}
		if idx == -1 {
			return
		}
		data := e.pending[idx].Data
		e.vm.WriteSoundRegisters(data[:])
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	}
}

// nextUpdateTime returns the timestamp of the earliest still-future
// pending update, if any.
func (e *Engine) nextUpdateTime() (float64, bool) {
	found := false
	var earliest uint32
	for _, u := range e.pending {
		if float64(u.Time) > e.currentTimeMs && (!found || u.Time < earliest) {
			earliest, found = u.Time, true
		}
	}
	return float64(earliest), found
}

func formatBytes(format sdl.AudioFormat) int {
	switch format {
	case sdl.AUDIO_F32, sdl.AUDIO_F32LSB, sdl.AUDIO_F32MSB:
		return 4
	default:
		return 2
	}
}
