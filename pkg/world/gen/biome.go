package gen

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Biome identifies a terrain and vegetation style.
type Biome uint8

const (
	BiomeTropical Biome = iota
	BiomeVolcanic
	BiomeCrystal
	BiomeToxic
	BiomeFrozen
	BiomeDesert
	BiomeNebular
	BiomeFungal
	BiomeAquatic
	BiomeMetallic
	BiomeLush
	BiomeArctic
	BiomeSynthetic

	biomeCount
)

// ActiveBiomeCount is the number of biomes a session draws from.
const ActiveBiomeCount = 3

var biomeNames = [biomeCount]string{
	BiomeTropical:  "tropical",
	BiomeVolcanic:  "volcanic",
	BiomeCrystal:   "crystal",
	BiomeToxic:     "toxic",
	BiomeFrozen:    "frozen",
	BiomeDesert:    "desert",
	BiomeNebular:   "nebular",
	BiomeFungal:    "fungal",
	BiomeAquatic:   "aquatic",
	BiomeMetallic:  "metallic",
	BiomeLush:      "lush",
	BiomeArctic:    "arctic",
	BiomeSynthetic: "synthetic",
}

func (b Biome) String() string {
	if !b.Valid() {
		return fmt.Sprintf("biome(%d)", uint8(b))
	}
	return biomeNames[b]
}

// Valid reports whether b is one of the known biomes.
func (b Biome) Valid() bool {
	return b < biomeCount
}

// MarshalText implements encoding.TextMarshaler.
func (b Biome) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBiome, uint8(b))
	}
	return []byte(biomeNames[b]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Biome) UnmarshalText(text []byte) error {
	v, err := ParseBiome(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// ParseBiome resolves a biome name. The old "artic" spelling is accepted.
func ParseBiome(name string) (Biome, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "artic" {
		return BiomeArctic, nil
	}
	for i, n := range biomeNames {
		if n == name {
			return Biome(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBiome, name)
}

// AllBiomes returns every biome in declaration order.
func AllBiomes() []Biome {
	out := make([]Biome, biomeCount)
	for i := range out {
		out[i] = Biome(i)
	}
	return out
}

// Picker is the random source used to choose a session's biomes.
// *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

// RandomSource returns a deterministic Picker for seed.
func RandomSource(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// PickBiomes draws ActiveBiomeCount distinct biomes using a partial Fisher-Yates shuffle.
func PickBiomes(p Picker) []Biome {
	all := AllBiomes()
	for i := 0; i < ActiveBiomeCount; i++ {
		j := i + p.IntN(len(all)-i)
		all[i], all[j] = all[j], all[i]
	}
	return all[:ActiveBiomeCount:ActiveBiomeCount]
}

// biomeIndex maps a smooth field sample onto [0, n).
// A sample of exactly 1.0 lands on n and wraps to 0.
func biomeIndex(sample float64, n int) int {
	i := int(math.Floor(sample*float64(n))) % n
	if i < 0 {
		i += n
	}
	return i
}

func checkActive(active []Biome) error {
	if len(active) != ActiveBiomeCount {
		return fmt.Errorf("%w: got %d biomes, want %d", ErrActiveBiomes, len(active), ActiveBiomeCount)
	}
	seen := make(map[Biome]bool, len(active))
	for _, b := range active {
		if !b.Valid() {
			return fmt.Errorf("%w: %s", ErrActiveBiomes, b)
		}
		if seen[b] {
			return fmt.Errorf("%w: duplicate %s", ErrActiveBiomes, b)
		}
		seen[b] = true
	}
	return nil
}
