package rangecoder

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTripEmpty(t *testing.T) {
	enc := Encode(nil, 5)
	dec := Decode(enc, 0, 5)
	if len(dec) != 0 {
		t.Fatalf("expected empty decode, got %d bytes", len(dec))
	}
}

func TestRoundTripSmall(t *testing.T) {
	for _, level := range []int{0, 3, 5, 9} {
		src := []byte("the quick brown fox jumps over the lazy dog, repeated repeated repeated")
		enc := Encode(src, level)
		dec := Decode(enc, len(src), level)
		if !bytes.Equal(src, dec) {
			t.Fatalf("level %d: round trip mismatch", level)
		}
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := make([]byte, 4096)
	rng.Read(src)
	enc := Encode(src, 6)
	dec := Decode(enc, len(src), 6)
	if !bytes.Equal(src, dec) {
		t.Fatalf("round trip mismatch for random data")
	}
}

func TestCompressesRepetitiveData(t *testing.T) {
	src := bytes.Repeat([]byte{0x00}, 8192)
	enc := Encode(src, 9)
	if len(enc) >= len(src) {
		t.Fatalf("expected compression of all-zero input, got %d >= %d", len(enc), len(src))
	}
}
