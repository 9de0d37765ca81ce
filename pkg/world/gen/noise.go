package gen

import "math"

// NoiseFrequency is the angular frequency of the smooth field (period ≈ 628 blocks).
const NoiseFrequency = 0.01

// Constants of the column hash. They only need to look uncorrelated between
// neighbouring integer columns; changing them reshuffles every tree.
const (
	hashX     = 12.9898
	hashZ     = 78.233
	hashScale = 43758.5453
)

// Smooth returns the low-frequency field used for biome boundaries.
// The raw sinusoid sum spans [-0.5, 1.5]; the result is clamped to [0, 1].
// Smooth(0, 0) is exactly 1.
func Smooth(x, z int) float64 {
	v := (math.Sin(float64(x)*NoiseFrequency)+math.Cos(float64(z)*NoiseFrequency))/2 + 0.5
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ColumnHash returns a stateless pseudo-random value in [0, 1) for an integer column.
// It is not cryptographic and is only used for discrete placement decisions.
func ColumnHash(x, z int) float64 {
	return frac(math.Abs(math.Sin(float64(x)*hashX+float64(z)*hashZ) * hashScale))
}

// treeSeed rescales a column hash into a secondary value in [0, 1).
// Presence and size of a tree intentionally come from the same hash.
func treeSeed(h float64) float64 {
	return frac(h * 1000)
}

func frac(v float64) float64 {
	return math.Mod(v, 1)
}
