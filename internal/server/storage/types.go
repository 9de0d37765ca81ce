package storage

import "github.com/OCharnyshevich/planetgen/pkg/world/gen"

// SessionMeta is the generation setup a saved world was built with.
// Overrides only make sense on top of the same terrain.
type SessionMeta struct {
	Seed   int64       `json:"seed"`
	Biomes []gen.Biome `json:"biomes"`
}

// BlockOverride is a single stored block edit.
type BlockOverride struct {
	X     int
	Y     int
	Z     int
	Voxel gen.VoxelID
}
