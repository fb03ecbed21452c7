package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampSampleReplacesNaNWithZero(t *testing.T) {
	require.Equal(t, float32(0), clampSample(float32(math.NaN())))
}

func TestClampSampleSaturates(t *testing.T) {
	require.Equal(t, float32(1), clampSample(2.5))
	require.Equal(t, float32(-1), clampSample(-2.5))
	require.Equal(t, float32(0.3), clampSample(0.3))
}

func TestEncodeF32StereoPassthrough(t *testing.T) {
	frames := [][2]float32{{0.5, -0.5}}
	out := encodeF32(frames, 2)
	require.Len(t, out, 8)
	require.Equal(t, float32(0.5), math.Float32frombits(uint32(out[0])|uint32(out[1])<<8|uint32(out[2])<<16|uint32(out[3])<<24))
}

func TestEncodeF32MonoAverages(t *testing.T) {
	frames := [][2]float32{{1, -1}}
	out := encodeF32(frames, 1)
	require.Len(t, out, 4)
	got := math.Float32frombits(uint32(out[0]) | uint32(out[1])<<8 | uint32(out[2])<<16 | uint32(out[3])<<24)
	require.InDelta(t, 0, got, 1e-6)
}

func TestEncodeS16ScalesToFullRange(t *testing.T) {
	frames := [][2]float32{{1, -1}}
	out := encodeS16(frames, 2)
	require.Len(t, out, 4)
	left := int16(uint16(out[0]) | uint16(out[1])<<8)
	right := int16(uint16(out[2]) | uint16(out[3])<<8)
	require.Greater(t, left, int16(32000))
	require.Less(t, right, int16(-32000))
}
