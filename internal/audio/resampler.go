package audio

// resampler linearly interpolates a stream of stereo f32 frames produced
// at inRate to outRate, carrying the fractional input position and the
// last input frame across calls so back-to-back blocks stay continuous
// (spec.md §4.5: "feed a fixed-input ... resampler ... cache its output").
// No library in the retrieval pack implements sample-rate conversion (see
// DESIGN.md), so this is hand-written — linear interpolation rather than
// the FFT-based resampler spec.md's prose mentions, which is far more
// implementation surface for an audible difference this runtime's fallback
// synth and typical chiptune-style cartridge output won't expose.
type resampler struct {
	inRate, outRate int
	pos             float64
	prev            [2]float32
	havePrev        bool
}

func newResampler(inRate, outRate int) *resampler {
	return &resampler{inRate: inRate, outRate: outRate}
}

// process resamples one block. When inRate == outRate, or the block is
// empty, it returns in unchanged, so callers may run every block through it.
func (r *resampler) process(in [][2]float32) [][2]float32 {
	if r.inRate == r.outRate || len(in) == 0 {
		return in
	}
	ratio := float64(r.inRate) / float64(r.outRate)
	out := make([][2]float32, 0, int(float64(len(in))/ratio)+1)

	idx := r.pos
	for idx < float64(len(in)) {
		i0 := int(idx)
		frac := float32(idx - float64(i0))

		var s0, s1 [2]float32
		if i0 == 0 {
			if r.havePrev {
				s0 = r.prev
			} else {
				s0 = in[0]
			}
		} else {
			s0 = in[i0-1]
		}
		if i0 < len(in) {
			s1 = in[i0]
		} else {
			s1 = in[len(in)-1]
		}

		out = append(out, [2]float32{
			s0[0] + frac*(s1[0]-s0[0]),
			s0[1] + frac*(s1[1]-s0[1]),
		})
		idx += ratio
	}

	r.pos = idx - float64(len(in))
	r.prev = in[len(in)-1]
	r.havePrev = true
	return out
}
