package math

import (
	"math/rand"
	"testing"
)

func TestAlign(t *testing.T) {
	tests := []struct {
		value, alignment, want uint64
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{255, 256, 256},
		{257, 256, 512},
		{7, 1, 7},
		{7, 0, 7},
	}
	for _, tt := range tests {
		if got := Align(tt.value, tt.alignment); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.value, tt.alignment, got, tt.want)
		}
	}
}

func TestAlignProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		alignment := uint32(1) << uint(rng.Intn(12))
		value := uint32(rng.Intn(1 << 20))
		got := Align(value, alignment)
		if got%alignment != 0 {
			t.Fatalf("Align(%d, %d) = %d is not a multiple of the alignment", value, alignment, got)
		}
		if got < value {
			t.Fatalf("Align(%d, %d) = %d is smaller than the value", value, alignment, got)
		}
		if got-value >= alignment {
			t.Fatalf("Align(%d, %d) = %d overshoots by a full alignment", value, alignment, got)
		}
		if Align(got, alignment) != got {
			t.Fatalf("Align is not idempotent for %d / %d", value, alignment)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, v := range []uint32{1, 2, 4, 64, 1 << 31} {
		if !IsPowerOfTwo(v) {
			t.Errorf("IsPowerOfTwo(%d) = false", v)
		}
	}
	for _, v := range []uint32{0, 3, 6, 100} {
		if IsPowerOfTwo(v) {
			t.Errorf("IsPowerOfTwo(%d) = true", v)
		}
	}
}
