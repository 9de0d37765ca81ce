package gen

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownBiome = errors.New("unknown biome")
	ErrActiveBiomes = errors.New("invalid active biome set")
	ErrPalette      = errors.New("invalid palette")
	ErrProfile      = errors.New("invalid tree profile")
	ErrInvalidShape = errors.New("invalid chunk shape")
	ErrBufferSize   = errors.New("buffer size does not match chunk volume")
)

// Options configures a Session. Palette defaults to DefaultPalette(Active);
// biomes missing from Profiles use DefaultProfile.
type Options struct {
	Active   []Biome
	Palette  *Palette
	Profiles map[Biome]TreeProfile
}

// Session is the immutable generation configuration: the ordered active
// biomes, their blocks and their tree profiles. It is safe for concurrent use.
type Session struct {
	active   []Biome
	palette  Palette
	profiles map[Biome]TreeProfile
}

// NewSession validates opts and builds a Session from private copies of it.
func NewSession(opts Options) (*Session, error) {
	if err := checkActive(opts.Active); err != nil {
		return nil, err
	}
	active := append([]Biome(nil), opts.Active...)

	palette := DefaultPalette(active)
	if opts.Palette != nil {
		if err := opts.Palette.Validate(active); err != nil {
			return nil, err
		}
		palette = opts.Palette.clone(active)
	}

	profiles := make(map[Biome]TreeProfile, len(opts.Profiles))
	for b, p := range opts.Profiles {
		if !b.Valid() {
			return nil, fmt.Errorf("%w: profile for %s", ErrUnknownBiome, b)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", b, err)
		}
		profiles[b] = p
	}

	return &Session{active: active, palette: palette, profiles: profiles}, nil
}

// Active returns the session's biomes in selection order.
func (s *Session) Active() []Biome {
	return append([]Biome(nil), s.active...)
}

// Palette returns a copy of the session palette.
func (s *Session) Palette() Palette {
	return s.palette.clone(s.active)
}

// Blocks returns the blocks of b; ok is false when b is not active.
func (s *Session) Blocks(b Biome) (blocks BiomeBlocks, ok bool) {
	blocks, ok = s.palette.Blocks[b]
	return blocks, ok
}

// Profile returns the tree profile of b, falling back to DefaultProfile.
func (s *Session) Profile(b Biome) TreeProfile {
	if p, ok := s.profiles[b]; ok {
		return p
	}
	return DefaultProfile(b)
}

// BiomeAt returns the active biome owning column (x, z).
func (s *Session) BiomeAt(x, z int) Biome {
	return s.active[biomeIndex(Smooth(x, z), len(s.active))]
}

// HeightAt returns the terrain boundary of column (x, z).
func (s *Session) HeightAt(x, z int) int {
	return BaseHeight(s.BiomeAt(x, z), x, z)
}

// GroundAt returns the ground block of the biome owning column (x, z).
func (s *Session) GroundAt(x, z int) VoxelID {
	return s.palette.Blocks[s.BiomeAt(x, z)].Ground
}
