package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResamplerPassthroughAtEqualRates(t *testing.T) {
	r := newResampler(44100, 44100)
	in := [][2]float32{{0.1, 0.2}, {0.3, 0.4}}
	out := r.process(in)
	require.Equal(t, in, out)
}

func TestResamplerUpsampleProducesMoreFrames(t *testing.T) {
	r := newResampler(22050, 44100)
	in := make([][2]float32, 100)
	for i := range in {
		in[i] = [2]float32{float32(i) / 100, float32(i) / 100}
	}
	out := r.process(in)
	require.Greater(t, len(out), len(in))
}

func TestResamplerDownsampleProducesFewerFrames(t *testing.T) {
	r := newResampler(44100, 22050)
	in := make([][2]float32, 100)
	for i := range in {
		in[i] = [2]float32{float32(i) / 100, float32(i) / 100}
	}
	out := r.process(in)
	require.Less(t, len(out), len(in))
}

func TestResamplerCarriesStateAcrossCalls(t *testing.T) {
	r := newResampler(22050, 44100)
	first := r.process([][2]float32{{1, 1}, {1, 1}})
	require.NotEmpty(t, first)
	second := r.process([][2]float32{{1, 1}, {1, 1}})
	require.NotEmpty(t, second)
}
