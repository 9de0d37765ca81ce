package gen

import (
	"errors"
	"math"
	"testing"
)

var testBlocks = BiomeBlocks{Ground: 1, Bark: 2, Leaves: 3}

// findTreeColumn returns the first column along z=0 that hosts a tree for p.
func findTreeColumn(t *testing.T, p TreeProfile) (x int, h float64) {
	t.Helper()
	for x := 0; x < 100000; x++ {
		if h := ColumnHash(x, 0); h > p.Chance {
			return x, h
		}
	}
	t.Fatalf("no tree column found for chance %v", p.Chance)
	return 0, 0
}

func TestDefaultProfileFallback(t *testing.T) {
	tests := []struct {
		biome Biome
		want  TreeProfile
	}{
		{BiomeTropical, TreeProfile{0.980, 6, 12, CrownCone}},
		{BiomeFrozen, TreeProfile{0.994, 3, 5, CrownCube}},
		{BiomeCrystal, TreeProfile{0.988, 5, 9, CrownSphere}},
		{BiomeToxic, TreeProfile{0.992, 4, 7, CrownSphere}},
		{Biome(250), TreeProfile{0.992, 4, 7, CrownSphere}},
	}
	for _, tt := range tests {
		if got := DefaultProfile(tt.biome); got != tt.want {
			t.Errorf("DefaultProfile(%s) = %+v, want %+v", tt.biome, got, tt.want)
		}
	}
}

func TestTreeProfileValidate(t *testing.T) {
	bad := []TreeProfile{
		{Chance: 0, MinHeight: 3, MaxHeight: 5},
		{Chance: 1, MinHeight: 3, MaxHeight: 5},
		{Chance: 0.9, MinHeight: 0, MaxHeight: 5},
		{Chance: 0.9, MinHeight: 6, MaxHeight: 5},
		{Chance: 0.9, MinHeight: 3, MaxHeight: 5, Crown: CrownShape(9)},
	}
	for _, p := range bad {
		if err := p.Validate(); !errors.Is(err, ErrProfile) {
			t.Errorf("Validate(%+v) = %v, want ErrProfile", p, err)
		}
	}
	for _, b := range AllBiomes() {
		if err := DefaultProfile(b).Validate(); err != nil {
			t.Errorf("DefaultProfile(%s).Validate() = %v", b, err)
		}
	}
}

func TestParseCrownShape(t *testing.T) {
	for _, c := range []CrownShape{CrownSphere, CrownCone, CrownCube} {
		got, err := ParseCrownShape(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCrownShape(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCrownShape("pyramid"); !errors.Is(err, ErrProfile) {
		t.Errorf("ParseCrownShape(pyramid) error = %v, want ErrProfile", err)
	}
}

func TestTreeSizeBounds(t *testing.T) {
	for _, b := range []Biome{BiomeTropical, BiomeFrozen, BiomeCrystal, BiomeLush} {
		p := DefaultProfile(b)
		for i := 0; i < 5000; i++ {
			height, crown := TreeSize(ColumnHash(i, 3*i), p)
			if height < p.MinHeight || height >= p.MaxHeight {
				t.Fatalf("%s: height %d outside [%d,%d)", b, height, p.MinHeight, p.MaxHeight)
			}
			if crown != 2 && crown != 3 {
				t.Fatalf("%s: crown %d, want 2 or 3", b, crown)
			}
		}
	}

	fixed := TreeProfile{Chance: 0.5, MinHeight: 4, MaxHeight: 4}
	if height, _ := TreeSize(0.987654, fixed); height != 4 {
		t.Errorf("TreeSize with min==max = %d, want 4", height)
	}
}

func TestCrownContainsExamples(t *testing.T) {
	tests := []struct {
		shape              CrownShape
		dx, dz, localY, cs int
		want               bool
	}{
		{CrownCube, 1, 1, 0, 2, true},
		{CrownCube, -1, 1, 3, 3, true},
		{CrownCube, 2, 0, 1, 3, false},
		{CrownSphere, 0, 0, 1, 2, true},
		{CrownSphere, 1, 0, 1, 2, true},
		{CrownSphere, 1, 1, 1, 2, false}, // sqrt(2) > 1.4
		{CrownSphere, 0, 0, 3, 2, false}, // |3-1| > 1.4
		{CrownCone, 2, 0, 0, 2, true},
		{CrownCone, 2, 1, 0, 2, false},
		{CrownCone, 0, 0, 4, 2, true}, // radius shrinks to 0 at the tip
		{CrownCone, 1, 0, 4, 2, false},
	}
	for _, tt := range tests {
		got := CrownContains(tt.shape, tt.dx, tt.dz, tt.localY, tt.cs)
		if got != tt.want {
			t.Errorf("CrownContains(%s, %d, %d, %d, %d) = %v, want %v",
				tt.shape, tt.dx, tt.dz, tt.localY, tt.cs, got, tt.want)
		}
	}
}

func TestCrownContainsMatchesPredicate(t *testing.T) {
	predicate := func(shape CrownShape, dx, dz, localY, cs int) bool {
		d := math.Sqrt(float64(dx*dx + dz*dz))
		switch shape {
		case CrownCube:
			return dx >= -1 && dx <= 1 && dz >= -1 && dz <= 1
		case CrownSphere:
			return d+math.Abs(float64(localY)-float64(cs)/2) <= float64(cs)*0.7
		default:
			return d <= float64(cs)*(1-float64(localY)/float64(cs+2))
		}
	}

	for _, shape := range []CrownShape{CrownCube, CrownSphere, CrownCone} {
		for cs := 2; cs <= 3; cs++ {
			for localY := 0; localY <= cs+1; localY++ {
				for dx := -TreeScanRadius; dx <= TreeScanRadius; dx++ {
					for dz := -TreeScanRadius; dz <= TreeScanRadius; dz++ {
						got := CrownContains(shape, dx, dz, localY, cs)
						if want := predicate(shape, dx, dz, localY, cs); got != want {
							t.Fatalf("CrownContains(%s, %d, %d, %d, %d) = %v, want %v",
								shape, dx, dz, localY, cs, got, want)
						}
					}
				}
			}
		}
	}
}

func TestTreeVoxelNeverUnderwater(t *testing.T) {
	p := DefaultProfile(BiomeTropical)
	x, _ := findTreeColumn(t, p)
	for y := -20; y <= WaterLevel; y++ {
		for dx := -4; dx <= 4; dx++ {
			if got := TreeVoxel(x+dx, y, 0, -5, testBlocks, p); got != Air {
				t.Fatalf("TreeVoxel(%d,%d,0) = %d, want air", x+dx, y, got)
			}
		}
	}
}

func TestTreeVoxelTrunkAtBase(t *testing.T) {
	p := DefaultProfile(BiomeTropical)
	x, _ := findTreeColumn(t, p)
	const base = 10

	// Neighbouring canopies start at least MinHeight-1 layers up, so the
	// trunk below that is always bark.
	if got := TreeVoxel(x, base, 0, base, testBlocks, p); got != testBlocks.Bark {
		t.Fatalf("TreeVoxel at trunk base = %d, want bark", got)
	}
	for relY := 0; relY < p.MinHeight-1; relY++ {
		got := TreeVoxel(x, base+relY, 0, base, testBlocks, p)
		if got != testBlocks.Bark {
			t.Errorf("trunk voxel relY=%d = %d, want bark", relY, got)
		}
	}
}

func TestTreeVoxelOutputsOnlyTreeBlocks(t *testing.T) {
	p := DefaultProfile(BiomeCrystal)
	counts := map[VoxelID]int{}
	for x := -60; x <= 60; x++ {
		for z := -60; z <= 60; z++ {
			for y := 4; y <= 25; y++ {
				counts[TreeVoxel(x, y, z, 6, testBlocks, p)]++
			}
		}
	}
	for id := range counts {
		if id != Air && id != testBlocks.Bark && id != testBlocks.Leaves {
			t.Fatalf("TreeVoxel produced unexpected id %d", id)
		}
	}
	if counts[testBlocks.Bark] == 0 || counts[testBlocks.Leaves] == 0 {
		t.Errorf("expected some bark and leaves, got %v", counts)
	}
}

func TestTreeVoxelLeavesWithinCrownBand(t *testing.T) {
	p := DefaultProfile(BiomeFrozen)
	const base = 8
	for x := -80; x <= 80; x++ {
		for z := -80; z <= 80; z++ {
			for y := base; y <= base+12; y++ {
				if TreeVoxel(x, y, z, base, testBlocks, p) != testBlocks.Leaves {
					continue
				}
				if !leafClaimed(x, y, z, base, p) {
					t.Fatalf("leaves at (%d,%d,%d) with no tree claiming it", x, y, z)
				}
			}
		}
	}
}

func leafClaimed(x, y, z, base int, p TreeProfile) bool {
	relY := y - base
	for dx := -TreeScanRadius; dx <= TreeScanRadius; dx++ {
		for dz := -TreeScanRadius; dz <= TreeScanRadius; dz++ {
			h := ColumnHash(x+dx, z+dz)
			if h <= p.Chance {
				continue
			}
			height, crown := TreeSize(h, p)
			if relY < height-1 || relY > height+crown {
				continue
			}
			if CrownContains(p.Crown, dx, dz, relY-(height-1), crown) {
				return true
			}
		}
	}
	return false
}

func TestTreeVoxelDeterministic(t *testing.T) {
	p := DefaultProfile(BiomeTropical)
	for x := -30; x <= 30; x++ {
		for y := 4; y <= 20; y++ {
			a := TreeVoxel(x, y, 7, 6, testBlocks, p)
			b := TreeVoxel(x, y, 7, 6, testBlocks, p)
			if a != b {
				t.Fatalf("TreeVoxel(%d,%d,7) = %d then %d", x, y, a, b)
			}
		}
	}
}
