package packet

import (
	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

// Message types.
const (
	TypeHello   = "hello"
	TypeWelcome = "welcome"
	TypeChunk   = "chunk"
	TypeRemove  = "remove"
	TypePlace   = "place"
	TypeBlock   = "block"
	TypeError   = "error"
)

// Error codes carried by Error messages.
const (
	CodeBadRequest   = "bad_request"
	CodeUnknownType  = "unknown_type"
	CodeInvalidShape = "invalid_shape"
	CodeInternal     = "internal"
)

// Message is any decoded protocol message.
type Message interface {
	MessageType() string
}

// Hello opens a session (client -> server).
type Hello struct {
	Type   string `json:"type"`
	Client string `json:"client,omitempty"`
}

func (Hello) MessageType() string { return TypeHello }

// Welcome describes the generation session (server -> client).
type Welcome struct {
	Type      string      `json:"type"`
	Seed      int64       `json:"seed"`
	Biomes    []gen.Biome `json:"biomes"`
	Palette   gen.Palette `json:"palette"`
	ChunkSize int         `json:"chunk_size"`
	Spawn     [3]int      `json:"spawn"`
}

func (Welcome) MessageType() string { return TypeWelcome }

// Chunk asks for a box of voxels (client -> server). The reply is a binary chunk frame.
type Chunk struct {
	Type   string `json:"type"`
	Origin [3]int `json:"origin"`
	Shape  [3]int `json:"shape"`
}

func (Chunk) MessageType() string { return TypeChunk }

// Request returns the generation request for the message.
func (c Chunk) Request() gen.ChunkRequest {
	return gen.ChunkRequest{Origin: c.Origin, Shape: c.Shape}
}

// Remove clears a block (client -> server).
type Remove struct {
	Type string `json:"type"`
	Pos  [3]int `json:"pos"`
}

func (Remove) MessageType() string { return TypeRemove }

// Place puts the local ground block at a position (client -> server).
type Place struct {
	Type string `json:"type"`
	Pos  [3]int `json:"pos"`
}

func (Place) MessageType() string { return TypePlace }

// Block reports the new voxel at a position (server -> client).
type Block struct {
	Type  string      `json:"type"`
	Pos   [3]int      `json:"pos"`
	Voxel gen.VoxelID `json:"voxel"`
}

func (Block) MessageType() string { return TypeBlock }

// Error reports a rejected message (server -> client).
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) MessageType() string { return TypeError }

// NewError builds an Error message.
func NewError(code, msg string) Error {
	return Error{Type: TypeError, Code: code, Message: msg}
}
