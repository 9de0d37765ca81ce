package world

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

const (
	DefaultChunkSize  = 32
	DefaultCacheLimit = 1024
)

// Generator is the deterministic voxel source behind a World.
type Generator interface {
	Fill(req gen.ChunkRequest, buf []gen.VoxelID) error
	VoxelAt(x, y, z int) gen.VoxelID
	HeightAt(x, z int) int
	GroundAt(x, z int) gen.VoxelID
}

// BlockPos represents a voxel position in the world.
type BlockPos struct {
	X, Y, Z int
}

// ChunkPos identifies a cubic chunk on the world grid.
type ChunkPos struct {
	X, Y, Z int
}

// Options configures a World. Zero values select the defaults.
type Options struct {
	ChunkSize  int
	CacheLimit int
}

// World tracks block state with a generator for base terrain and overrides for player edits.
type World struct {
	mu         sync.RWMutex
	blocks     map[BlockPos]gen.VoxelID
	generator  Generator
	chunks     map[ChunkPos][]gen.VoxelID
	chunkSize  int
	cacheLimit int
}

// NewWorld creates a new World with the given generator.
func NewWorld(generator Generator, opts Options) *World {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.CacheLimit <= 0 {
		opts.CacheLimit = DefaultCacheLimit
	}
	return &World{
		blocks:     make(map[BlockPos]gen.VoxelID),
		generator:  generator,
		chunks:     make(map[ChunkPos][]gen.VoxelID),
		chunkSize:  opts.ChunkSize,
		cacheLimit: opts.CacheLimit,
	}
}

// ChunkSize returns the edge length of the world's chunks.
func (w *World) ChunkSize() int {
	return w.chunkSize
}

// ChunkOf returns the chunk containing the given voxel.
func (w *World) ChunkOf(x, y, z int) ChunkPos {
	return ChunkPos{floorDiv(x, w.chunkSize), floorDiv(y, w.chunkSize), floorDiv(z, w.chunkSize)}
}

// Request returns the generation request covering pos.
func (w *World) Request(pos ChunkPos) gen.ChunkRequest {
	s := w.chunkSize
	return gen.ChunkRequest{
		Origin: [3]int{pos.X * s, pos.Y * s, pos.Z * s},
		Shape:  [3]int{s, s, s},
	}
}

// GetOrGenerateChunk returns the generated voxels of pos without overrides,
// generating and caching them if needed. The returned slice must not be modified.
func (w *World) GetOrGenerateChunk(pos ChunkPos) ([]gen.VoxelID, error) {
	w.mu.RLock()
	if c, ok := w.chunks[pos]; ok {
		w.mu.RUnlock()
		return c, nil
	}
	w.mu.RUnlock()

	req := w.Request(pos)
	c := make([]gen.VoxelID, w.chunkSize*w.chunkSize*w.chunkSize)
	if err := w.generator.Fill(req, c); err != nil {
		return nil, fmt.Errorf("generate chunk %v: %w", pos, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Double-check after acquiring write lock.
	if existing, ok := w.chunks[pos]; ok {
		return existing, nil
	}
	if len(w.chunks) >= w.cacheLimit {
		for k := range w.chunks {
			delete(w.chunks, k)
			break
		}
	}
	w.chunks[pos] = c
	return c, nil
}

// Chunk returns a copy of the chunk at pos with overrides applied.
func (w *World) Chunk(pos ChunkPos) (gen.ChunkRequest, []gen.VoxelID, error) {
	base, err := w.GetOrGenerateChunk(pos)
	if err != nil {
		return gen.ChunkRequest{}, nil, err
	}
	req := w.Request(pos)
	out := make([]gen.VoxelID, len(base))
	copy(out, base)
	w.applyOverrides(req, out)
	return req, out, nil
}

// Region generates an arbitrary box of voxels with overrides applied.
func (w *World) Region(req gen.ChunkRequest) ([]gen.VoxelID, error) {
	n, err := req.Volume()
	if err != nil {
		return nil, err
	}
	buf := make([]gen.VoxelID, n)
	if err := w.generator.Fill(req, buf); err != nil {
		return nil, err
	}
	w.applyOverrides(req, buf)
	return buf, nil
}

// applyOverrides writes block overrides that fall inside req into buf.
func (w *World) applyOverrides(req gen.ChunkRequest, buf []gen.VoxelID) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for pos, id := range w.blocks {
		i := pos.X - req.Origin[0]
		j := pos.Y - req.Origin[1]
		k := pos.Z - req.Origin[2]
		if i < 0 || j < 0 || k < 0 || i >= req.Shape[0] || j >= req.Shape[1] || k >= req.Shape[2] {
			continue
		}
		buf[req.Index(i, j, k)] = id
	}
}

// GetBlock returns the voxel at the given position.
// Checks overrides first, then a cached chunk, then the generator.
func (w *World) GetBlock(x, y, z int) gen.VoxelID {
	w.mu.RLock()
	if id, ok := w.blocks[BlockPos{x, y, z}]; ok {
		w.mu.RUnlock()
		return id
	}
	pos := w.ChunkOf(x, y, z)
	c, ok := w.chunks[pos]
	w.mu.RUnlock()

	if !ok {
		return w.generator.VoxelAt(x, y, z)
	}
	req := w.Request(pos)
	return c[req.Index(x-req.Origin[0], y-req.Origin[1], z-req.Origin[2])]
}

// SetBlock stores a block override. Setting a block back to its generated
// value removes the override.
func (w *World) SetBlock(x, y, z int, id gen.VoxelID) {
	base := w.generator.VoxelAt(x, y, z)

	w.mu.Lock()
	defer w.mu.Unlock()

	bpos := BlockPos{x, y, z}
	if id == base {
		delete(w.blocks, bpos)
	} else {
		w.blocks[bpos] = id
	}
}

// RemoveBlock clears the voxel at the given position.
func (w *World) RemoveBlock(x, y, z int) {
	w.SetBlock(x, y, z, gen.Air)
}

// PlaceGround places the ground block of the column's biome and returns its id.
func (w *World) PlaceGround(x, y, z int) gen.VoxelID {
	id := w.generator.GroundAt(x, z)
	w.SetBlock(x, y, z, id)
	return id
}

// ForEachOverride calls fn for every block override under a read lock.
func (w *World) ForEachOverride(fn func(pos BlockPos, id gen.VoxelID)) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for pos, id := range w.blocks {
		fn(pos, id)
	}
}

// LoadOverrides bulk-loads block overrides, replacing existing ones at the same positions.
func (w *World) LoadOverrides(overrides map[BlockPos]gen.VoxelID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for pos, id := range overrides {
		w.blocks[pos] = id
	}
}

// OverrideCount returns the number of stored overrides.
func (w *World) OverrideCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.blocks)
}

// SpawnHeight returns the lowest y a player can stand at above (0, 0),
// on the terrain or on the water surface.
func (w *World) SpawnHeight() int {
	return max(w.generator.HeightAt(0, 0), gen.WaterLevel+1)
}

// PreGenerateRadius generates every chunk within radius chunks of the origin
// horizontally and between chunk layers minY and maxY, in parallel.
// It returns the number of chunks generated or already cached.
func (w *World) PreGenerateRadius(ctx context.Context, radius, minY, maxY int) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 1))

	count := 0
	for cx := -radius; cx <= radius && gctx.Err() == nil; cx++ {
		for cz := -radius; cz <= radius; cz++ {
			for cy := minY; cy <= maxY; cy++ {
				pos := ChunkPos{cx, cy, cz}
				count++
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					_, err := w.GetOrGenerateChunk(pos)
					return err
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
