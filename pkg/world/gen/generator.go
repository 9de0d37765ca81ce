package gen

import (
	"fmt"
	"math"
)

// Fixed levels of the terrain layering rules.
const (
	WaterLevel = 3
	FloorLevel = -15
)

// Generator produces voxels deterministically.
type Generator interface {
	Fill(req ChunkRequest, buf []VoxelID) error
	VoxelAt(x, y, z int) VoxelID
	HeightAt(x, z int) int
}

var _ Generator = (*Session)(nil)

// ChunkRequest identifies the box of voxels Origin .. Origin+Shape-1.
type ChunkRequest struct {
	Origin [3]int `json:"origin"`
	Shape  [3]int `json:"shape"`
}

// Volume returns the number of voxels in the box.
// Non-positive extents and volumes that overflow int are rejected.
func (r ChunkRequest) Volume() (int, error) {
	n := 1
	for _, s := range r.Shape {
		if s <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidShape, r.Shape)
		}
		if n > math.MaxInt/s {
			return 0, fmt.Errorf("%w: %v overflows", ErrInvalidShape, r.Shape)
		}
		n *= s
	}
	return n, nil
}

// Index returns the buffer offset of local voxel (i, j, k).
func (r ChunkRequest) Index(i, j, k int) int {
	return (i*r.Shape[1]+j)*r.Shape[2] + k
}

// column caches everything about (x, z) that does not depend on y.
type column struct {
	blocks  BiomeBlocks
	profile TreeProfile
	base    int
}

func (s *Session) column(x, z int) column {
	b := s.BiomeAt(x, z)
	return column{
		blocks:  s.palette.Blocks[b],
		profile: s.Profile(b),
		base:    BaseHeight(b, x, z),
	}
}

func (s *Session) voxel(c column, x, y, z int) VoxelID {
	switch {
	case y < FloorLevel:
		return s.palette.Dirt
	case y < c.base:
		if y >= c.base-1 {
			return c.blocks.Ground
		}
		return s.palette.Dirt
	case y <= WaterLevel:
		return s.palette.Water
	case c.base > WaterLevel:
		return TreeVoxel(x, y, z, c.base, c.blocks, c.profile)
	default:
		return Air
	}
}

// VoxelAt returns the generated voxel at an absolute coordinate.
func (s *Session) VoxelAt(x, y, z int) VoxelID {
	return s.voxel(s.column(x, z), x, y, z)
}

// Fill writes the voxels of req into buf, laid out as ChunkRequest.Index.
// buf must hold exactly the request volume.
func (s *Session) Fill(req ChunkRequest, buf []VoxelID) error {
	n, err := req.Volume()
	if err != nil {
		return err
	}
	if len(buf) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrBufferSize, len(buf), n)
	}

	ox, oy, oz := req.Origin[0], req.Origin[1], req.Origin[2]
	for i := 0; i < req.Shape[0]; i++ {
		x := ox + i
		for k := 0; k < req.Shape[2]; k++ {
			z := oz + k
			c := s.column(x, z)
			for j := 0; j < req.Shape[1]; j++ {
				buf[req.Index(i, j, k)] = s.voxel(c, x, oy+j, z)
			}
		}
	}
	return nil
}

// Generate allocates a buffer for req and fills it.
func (s *Session) Generate(req ChunkRequest) ([]VoxelID, error) {
	n, err := req.Volume()
	if err != nil {
		return nil, err
	}
	buf := make([]VoxelID, n)
	if err := s.Fill(req, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
