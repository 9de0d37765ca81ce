package gen

import (
	"fmt"
	"math"
	"strings"
)

// TreeScanRadius is how far (in columns) a voxel looks for trees whose canopy could reach it.
const TreeScanRadius = 3

// CrownShape selects the canopy predicate of a tree.
type CrownShape uint8

const (
	CrownSphere CrownShape = iota
	CrownCone
	CrownCube
)

func (c CrownShape) String() string {
	switch c {
	case CrownSphere:
		return "sphere"
	case CrownCone:
		return "cone"
	case CrownCube:
		return "cube"
	default:
		return fmt.Sprintf("crown(%d)", uint8(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CrownShape) MarshalText() ([]byte, error) {
	if c > CrownCube {
		return nil, fmt.Errorf("%w: unknown crown %d", ErrProfile, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CrownShape) UnmarshalText(text []byte) error {
	v, err := ParseCrownShape(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCrownShape resolves "cone", "cube" or "sphere".
func ParseCrownShape(name string) (CrownShape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sphere":
		return CrownSphere, nil
	case "cone":
		return CrownCone, nil
	case "cube":
		return CrownCube, nil
	}
	return 0, fmt.Errorf("%w: unknown crown %q", ErrProfile, name)
}

// TreeProfile holds the per-biome tree parameters.
// A column hosts a tree when its hash exceeds Chance, so a higher Chance means fewer trees.
type TreeProfile struct {
	Chance    float64    `yaml:"chance" json:"chance"`
	MinHeight int        `yaml:"min_height" json:"min_height"`
	MaxHeight int        `yaml:"max_height" json:"max_height"`
	Crown     CrownShape `yaml:"crown" json:"crown"`
}

// Validate checks the profile is usable by TreeVoxel.
func (p TreeProfile) Validate() error {
	if !(p.Chance > 0 && p.Chance < 1) {
		return fmt.Errorf("%w: chance %v outside (0,1)", ErrProfile, p.Chance)
	}
	if p.MinHeight <= 0 || p.MaxHeight < p.MinHeight {
		return fmt.Errorf("%w: heights %d..%d", ErrProfile, p.MinHeight, p.MaxHeight)
	}
	if p.Crown > CrownCube {
		return fmt.Errorf("%w: unknown crown %d", ErrProfile, uint8(p.Crown))
	}
	return nil
}

// DefaultProfile returns the built-in tree profile of b.
// Biomes without a dedicated profile share the default one.
func DefaultProfile(b Biome) TreeProfile {
	switch b {
	case BiomeTropical:
		return TreeProfile{Chance: 0.980, MinHeight: 6, MaxHeight: 12, Crown: CrownCone}
	case BiomeFrozen:
		return TreeProfile{Chance: 0.994, MinHeight: 3, MaxHeight: 5, Crown: CrownCube}
	case BiomeCrystal:
		return TreeProfile{Chance: 0.988, MinHeight: 5, MaxHeight: 9, Crown: CrownSphere}
	default:
		return TreeProfile{Chance: 0.992, MinHeight: 4, MaxHeight: 7, Crown: CrownSphere}
	}
}

// TreeSize derives trunk height and crown size from a column hash.
func TreeSize(h float64, p TreeProfile) (height, crown int) {
	seed := treeSeed(h)
	height = floor(float64(p.MinHeight) + seed*float64(p.MaxHeight-p.MinHeight))
	crown = floor(2 + seed*2)
	return height, crown
}

// CrownContains reports whether the canopy of a tree covers the voxel at
// horizontal offset (dx, dz) from its trunk and localY layers above the crown base.
func CrownContains(shape CrownShape, dx, dz, localY, crownSize int) bool {
	dist := math.Sqrt(float64(dx*dx + dz*dz))
	size := float64(crownSize)

	switch shape {
	case CrownCube:
		return abs(dx) <= 1 && abs(dz) <= 1
	case CrownSphere:
		return dist+math.Abs(float64(localY)-size/2) <= size*0.7
	case CrownCone:
		return dist <= size*(1-float64(localY)/(size+2))
	default:
		return false
	}
}

// TreeVoxel returns the bark or leaves id covering (x, y, z), or Air.
// baseHeight is the terrain boundary of the voxel's own column. Neighbouring
// columns are scanned dx-major so overlapping trees resolve the same way every time.
func TreeVoxel(x, y, z, baseHeight int, blocks BiomeBlocks, p TreeProfile) VoxelID {
	if y <= WaterLevel {
		return Air
	}
	relY := y - baseHeight

	for dx := -TreeScanRadius; dx <= TreeScanRadius; dx++ {
		for dz := -TreeScanRadius; dz <= TreeScanRadius; dz++ {
			h := ColumnHash(x+dx, z+dz)
			if h <= p.Chance {
				continue
			}
			height, crown := TreeSize(h, p)

			if dx == 0 && dz == 0 && relY >= 0 && relY < height {
				return blocks.Bark
			}

			crownBase := height - 1
			if relY < crownBase || relY > height+crown {
				continue
			}
			if CrownContains(p.Crown, dx, dz, relY-crownBase, crown) {
				return blocks.Leaves
			}
		}
	}
	return Air
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
