package world

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	mcnet "github.com/OCharnyshevich/planetgen/internal/server/net"
	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

// chunkMagic prefixes every encoded chunk frame.
var chunkMagic = []byte("PGC1")

// MaxChunkVolume bounds the voxels a decoded frame may declare.
const MaxChunkVolume = 1 << 24

var ErrBadChunkFrame = errors.New("bad chunk frame")

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	})
	return encoder, decoder, codecErr
}

// EncodeChunk encodes the voxels of req into a compressed chunk frame.
//
// Layout before compression: zig-zag origin (3 VarLong), shape (3 VarInt),
// then (run length, voxel id) VarInt pairs in buffer order.
func EncodeChunk(req gen.ChunkRequest, voxels []gen.VoxelID) ([]byte, error) {
	n, err := req.Volume()
	if err != nil {
		return nil, err
	}
	if n > MaxChunkVolume {
		return nil, fmt.Errorf("%w: volume %d exceeds %d", gen.ErrInvalidShape, n, MaxChunkVolume)
	}
	if len(voxels) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", gen.ErrBufferSize, len(voxels), n)
	}

	var body bytes.Buffer
	for _, o := range req.Origin {
		mcnet.WriteSignedVarLong(&body, int64(o))
	}
	for _, s := range req.Shape {
		mcnet.WriteVarInt(&body, int32(s))
	}
	for i := 0; i < len(voxels); {
		id := voxels[i]
		run := 1
		for i+run < len(voxels) && voxels[i+run] == id {
			run++
		}
		mcnet.WriteVarInt(&body, int32(run))
		mcnet.WriteVarInt(&body, int32(id))
		i += run
	}

	enc, _, err := codec()
	if err != nil {
		return nil, fmt.Errorf("init zstd: %w", err)
	}
	out := make([]byte, 0, len(chunkMagic)+body.Len()/2)
	out = append(out, chunkMagic...)
	return enc.EncodeAll(body.Bytes(), out), nil
}

// DecodeChunk reverses EncodeChunk.
func DecodeChunk(data []byte) (gen.ChunkRequest, []gen.VoxelID, error) {
	var req gen.ChunkRequest
	if !bytes.HasPrefix(data, chunkMagic) {
		return req, nil, fmt.Errorf("%w: missing magic", ErrBadChunkFrame)
	}

	_, dec, err := codec()
	if err != nil {
		return req, nil, fmt.Errorf("init zstd: %w", err)
	}
	raw, err := dec.DecodeAll(data[len(chunkMagic):], nil)
	if err != nil {
		return req, nil, fmt.Errorf("%w: decompress: %w", ErrBadChunkFrame, err)
	}
	r := bytes.NewReader(raw)

	for i := range req.Origin {
		v, _, err := mcnet.ReadSignedVarLong(r)
		if err != nil {
			return req, nil, fmt.Errorf("%w: origin: %w", ErrBadChunkFrame, err)
		}
		req.Origin[i] = int(v)
	}
	for i := range req.Shape {
		v, _, err := mcnet.ReadVarInt(r)
		if err != nil {
			return req, nil, fmt.Errorf("%w: shape: %w", ErrBadChunkFrame, err)
		}
		req.Shape[i] = int(v)
	}
	n, err := req.Volume()
	if err != nil {
		return req, nil, fmt.Errorf("%w: %w", ErrBadChunkFrame, err)
	}
	if n > MaxChunkVolume {
		return req, nil, fmt.Errorf("%w: volume %d exceeds %d", ErrBadChunkFrame, n, MaxChunkVolume)
	}

	voxels := make([]gen.VoxelID, 0, n)
	for len(voxels) < n {
		run, _, err := mcnet.ReadVarInt(r)
		if err != nil {
			return req, nil, fmt.Errorf("%w: run: %w", ErrBadChunkFrame, err)
		}
		id, _, err := mcnet.ReadVarInt(r)
		if err != nil {
			return req, nil, fmt.Errorf("%w: voxel: %w", ErrBadChunkFrame, err)
		}
		if run <= 0 || int(run) > n-len(voxels) || id < 0 || id > 0xFFFF {
			return req, nil, fmt.Errorf("%w: run %d of id %d", ErrBadChunkFrame, run, id)
		}
		for range run {
			voxels = append(voxels, gen.VoxelID(id))
		}
	}
	if r.Len() != 0 {
		return req, nil, fmt.Errorf("%w: %d trailing bytes", ErrBadChunkFrame, r.Len())
	}
	return req, voxels, nil
}
