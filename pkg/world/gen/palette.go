package gen

import "fmt"

// VoxelID is an opaque block identifier registered by the host engine.
type VoxelID uint16

// Air is the reserved empty voxel.
const Air VoxelID = 0

// Default ids of the shared blocks, matching the engine registration.
const (
	DefaultDirt  VoxelID = 999
	DefaultWater VoxelID = 1000
)

// BiomeBlocks are the three blocks a biome contributes.
type BiomeBlocks struct {
	Ground VoxelID `yaml:"ground" json:"ground"`
	Bark   VoxelID `yaml:"bark" json:"bark"`
	Leaves VoxelID `yaml:"leaves" json:"leaves"`
}

// Palette maps the active biomes and the shared dirt and water blocks to ids.
type Palette struct {
	Blocks map[Biome]BiomeBlocks `yaml:"blocks" json:"blocks"`
	Dirt   VoxelID               `yaml:"dirt" json:"dirt"`
	Water  VoxelID               `yaml:"water" json:"water"`
}

// DefaultPalette registers ids the way the engine does: the biome at
// position i gets 10i+1 (ground), 10i+2 (bark) and 10i+3 (leaves).
func DefaultPalette(active []Biome) Palette {
	p := Palette{
		Blocks: make(map[Biome]BiomeBlocks, len(active)),
		Dirt:   DefaultDirt,
		Water:  DefaultWater,
	}
	for i, b := range active {
		base := VoxelID(i * 10)
		p.Blocks[b] = BiomeBlocks{Ground: base + 1, Bark: base + 2, Leaves: base + 3}
	}
	return p
}

// Validate checks that every active biome has blocks and that no id is air or shared.
func (p Palette) Validate(active []Biome) error {
	owner := make(map[VoxelID]string, 3*len(active)+2)
	claim := func(id VoxelID, slot string) error {
		if id == Air {
			return fmt.Errorf("%w: %s uses reserved id 0", ErrPalette, slot)
		}
		if prev, ok := owner[id]; ok {
			return fmt.Errorf("%w: id %d shared by %s and %s", ErrPalette, id, prev, slot)
		}
		owner[id] = slot
		return nil
	}

	if err := claim(p.Dirt, "dirt"); err != nil {
		return err
	}
	if err := claim(p.Water, "water"); err != nil {
		return err
	}
	for _, b := range active {
		bb, ok := p.Blocks[b]
		if !ok {
			return fmt.Errorf("%w: no blocks for %s", ErrPalette, b)
		}
		if err := claim(bb.Ground, b.String()+" ground"); err != nil {
			return err
		}
		if err := claim(bb.Bark, b.String()+" bark"); err != nil {
			return err
		}
		if err := claim(bb.Leaves, b.String()+" leaves"); err != nil {
			return err
		}
	}
	return nil
}

// clone copies the blocks of the given biomes only.
func (p Palette) clone(active []Biome) Palette {
	out := Palette{
		Blocks: make(map[Biome]BiomeBlocks, len(active)),
		Dirt:   p.Dirt,
		Water:  p.Water,
	}
	for _, b := range active {
		out.Blocks[b] = p.Blocks[b]
	}
	return out
}
