package math

import "golang.org/x/exp/constraints"

// Clamp returns v limited to the range [low, high].
func Clamp[T constraints.Ordered](v, low, high T) T {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// Saturate clamps v to [0, 1].
func Saturate[T constraints.Float](v T) T {
	return Clamp(v, 0, 1)
}

// Abs returns the absolute value of v.
func Abs[T constraints.Float | constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}
