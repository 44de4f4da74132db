package math

import "golang.org/x/exp/constraints"

// Align rounds value up to the next multiple of alignment using
// (value + mask) &^ mask with mask = alignment - 1.
// alignment must be a power of two; 0 and 1 leave value untouched.
func Align[T constraints.Unsigned](value, alignment T) T {
	if alignment <= 1 {
		return value
	}
	mask := alignment - 1
	return (value + mask) &^ mask
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}
