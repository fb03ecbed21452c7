package audio

import (
	"math"

	"github.com/veandco/go-sdl2/sdl"
)

// nativeSampleRate is the rate the VM's snd export is always called at
// (spec.md §4.5: "calls snd once per mono sample... at 44.1kHz").
const nativeSampleRate = 44100

// targetBufferFrames is the device buffer size spec.md §4.5's device
// selection asks for ("set buffer size to 256 frames clamped into device
// limits"); go-sdl2's AudioSpec.Samples takes the request and SDL clamps
// it to what the driver actually supports.
const targetBufferFrames = 256

// openDevice opens the default SDL audio output with a desired spec of
// 44.1kHz/F32/stereo, allowing frequency, format and channel-count changes
// (but not buffer-size changes), letting SDL negotiate the actual
// device configuration (spec.md's "enumerate output configs... pick the
// first" collapses to this since go-sdl2 exposes no richer enumeration of
// per-device supported formats than SDL_OpenAudioDevice's own negotiation
// — see DESIGN.md).
func openDevice() (sdl.AudioDeviceID, sdl.AudioSpec, error) {
	if err := sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
		return 0, sdl.AudioSpec{}, err
	}
	desired := sdl.AudioSpec{
		Freq:     nativeSampleRate,
		Format:   sdl.AUDIO_F32,
		Channels: 2,
		Samples:  targetBufferFrames,
	}
	var obtained sdl.AudioSpec
	dev, err := sdl.OpenAudioDevice("", false, &desired, &obtained,
		sdl.AUDIO_ALLOW_FREQUENCY_CHANGE|sdl.AUDIO_ALLOW_FORMAT_CHANGE|sdl.AUDIO_ALLOW_CHANNELS_CHANGE)
	if err != nil {
		return 0, sdl.AudioSpec{}, err
	}
	sdl.PauseAudioDevice(dev, false)
	return dev, obtained, nil
}

// closeDevice tears down the device and the audio subsystem reference this
// engine took out.
func closeDevice(dev sdl.AudioDeviceID) {
	if dev != 0 {
		sdl.CloseAudioDevice(dev)
	}
	sdl.QuitSubSystem(sdl.INIT_AUDIO)
}

// clampSample is spec.md §4.5's "NaN/clip policy": replace NaN with 0,
// saturate to [-1, 1]. Every sample a VM produces passes through this
// before it reaches the device, protecting the output from cartridge bugs.
func clampSample(x float32) float32 {
	if math.IsNaN(float64(x)) {
		return 0
	}
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// encodeFrames adapts a block of stereo f32 frames (already resampled to
// the device rate) to the device's channel count (spec.md §4.5 step 3). Any
// float format is written as little-endian f32 and every other format as
// little-endian signed 16-bit; byte order and other integer widths of the
// granted format are not followed.
func encodeFrames(frames [][2]float32, format sdl.AudioFormat, channels int) []byte {
	switch {
	case format == sdl.AUDIO_F32 || format == sdl.AUDIO_F32LSB || format == sdl.AUDIO_F32MSB:
		return encodeF32(frames, channels)
	default:
		return encodeS16(frames, channels)
	}
}

func encodeF32(frames [][2]float32, channels int) []byte {
	out := make([]byte, 0, len(frames)*channels*4)
	put := func(v float32) {
		bits := math.Float32bits(v)
		out = append(out, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	for _, f := range frames {
		l, r := clampSample(f[0]), clampSample(f[1])
		switch {
		case channels == 1:
			put((l + r) / 2)
		case channels == 2:
			put(l)
			put(r)
		default:
			put(l)
			put(r)
			for c := 2; c < channels; c++ {
				put(0)
			}
		}
	}
	return out
}

func encodeS16(frames [][2]float32, channels int) []byte {
	out := make([]byte, 0, len(frames)*channels*2)
	put := func(v float32) {
		v = clampSample(v)
		s := int16(v * 32767)
		out = append(out, byte(s), byte(s>>8))
	}
	for _, f := range frames {
		l, r := f[0], f[1]
		switch {
		case channels == 1:
			put((l + r) / 2)
		case channels == 2:
			put(l)
			put(r)
		default:
			put(l)
			put(r)
			for c := 2; c < channels; c++ {
				put(0)
			}
		}
	}
	return out
}
