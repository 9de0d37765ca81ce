package gen

import "math"

// BaseTerrain is the terrain height every biome profile is offset from.
const BaseTerrain = 5

// BaseHeight returns the terrain boundary of the column (x, z) in biome b.
// Voxels below it are solid; the topmost solid voxel is at BaseHeight-1.
func BaseHeight(b Biome, x, z int) int {
	fx, fz := float64(x), float64(z)

	switch b {
	case BiomeTropical:
		return BaseTerrain + floor(math.Sin(fx*0.05)*4+math.Cos(fz*0.05)*4)
	case BiomeVolcanic:
		return BaseTerrain + floor(math.Sin(fx*0.1)*5)
	case BiomeCrystal:
		return BaseTerrain + floor(math.Sin(fx*0.06)*8)
	case BiomeFrozen:
		return BaseTerrain + 2
	default:
		return BaseTerrain + floor(math.Sin(fx*0.05)*2+math.Cos(fz*0.05)*2)
	}
}

func floor(v float64) int {
	return int(math.Floor(v))
}
