package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

var ErrInvalid = errors.New("invalid config")

// Config holds the server configuration.
type Config struct {
	Listen       string   `yaml:"listen"`
	Seed         int64    `yaml:"seed"`          // 0 picks a random seed at startup
	Biomes       []string `yaml:"biomes"`        // explicit active biomes, overrides the seeded pick
	ChunkSize    int      `yaml:"chunk_size"`
	CacheLimit   int      `yaml:"cache_limit"`   // generated chunks kept in memory
	PreGenRadius int      `yaml:"pregen_radius"` // chunks around spawn generated at startup (-1 = none)
	MaxInFlight  int      `yaml:"max_in_flight"` // concurrent chunk requests per connection
	StoragePath  string   `yaml:"storage_path"`  // sqlite file for edits ("" = in memory only)
	LogLevel     string   `yaml:"log_level"`
	SpawnY       int      `yaml:"spawn_y"`

	Palette  *PaletteConfig             `yaml:"palette"`
	Profiles map[string]gen.TreeProfile `yaml:"profiles"`
}

// PaletteConfig overrides voxel ids. Zero values keep the registered defaults.
type PaletteConfig struct {
	Blocks map[string]gen.BiomeBlocks `yaml:"blocks"`
	Dirt   gen.VoxelID                `yaml:"dirt"`
	Water  gen.VoxelID                `yaml:"water"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8080",
		ChunkSize:    32,
		CacheLimit:   1024,
		PreGenRadius: 1,
		MaxInFlight:  8,
		StoragePath:  "planet.db",
		LogLevel:     "info",
		SpawnY:       20,
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Merge applies file-loaded config values into cfg, but only for fields
// that were NOT explicitly set via CLI flags. explicitFlags contains the
// flag names that were explicitly provided on the command line.
func Merge(cfg *Config, fromFile *Config, explicitFlags map[string]bool) {
	if !explicitFlags["listen"] {
		cfg.Listen = fromFile.Listen
	}
	if !explicitFlags["seed"] {
		cfg.Seed = fromFile.Seed
	}
	if !explicitFlags["chunk-size"] {
		cfg.ChunkSize = fromFile.ChunkSize
	}
	if !explicitFlags["cache-limit"] {
		cfg.CacheLimit = fromFile.CacheLimit
	}
	if !explicitFlags["pregen-radius"] {
		cfg.PreGenRadius = fromFile.PreGenRadius
	}
	if !explicitFlags["max-in-flight"] {
		cfg.MaxInFlight = fromFile.MaxInFlight
	}
	if !explicitFlags["storage"] {
		cfg.StoragePath = fromFile.StoragePath
	}
	if !explicitFlags["log-level"] {
		cfg.LogLevel = fromFile.LogLevel
	}
	if !explicitFlags["spawn-y"] {
		cfg.SpawnY = fromFile.SpawnY
	}
	// File-only settings.
	cfg.Biomes = fromFile.Biomes
	cfg.Palette = fromFile.Palette
	cfg.Profiles = fromFile.Profiles
}

// Validate checks ranges and names without building a session.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address required", ErrInvalid)
	}
	if c.ChunkSize < 1 || c.ChunkSize > 256 {
		return fmt.Errorf("%w: chunk_size %d out of range [1, 256]", ErrInvalid, c.ChunkSize)
	}
	if c.CacheLimit < 1 {
		return fmt.Errorf("%w: cache_limit must be positive", ErrInvalid)
	}
	if c.MaxInFlight < 1 {
		return fmt.Errorf("%w: max_in_flight must be positive", ErrInvalid)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.ActiveBiomes(); err != nil {
		return err
	}
	if _, err := c.profiles(); err != nil {
		return err
	}
	if c.Palette != nil {
		for name := range c.Palette.Blocks {
			if _, err := gen.ParseBiome(name); err != nil {
				return fmt.Errorf("%w: palette: %w", ErrInvalid, err)
			}
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("%w: log_level: %w", ErrInvalid, err)
	}
	return l, nil
}

// ActiveBiomes parses the configured biome list. It returns nil when no
// list is configured and the biomes are picked from the seed instead.
func (c *Config) ActiveBiomes() ([]gen.Biome, error) {
	if len(c.Biomes) == 0 {
		return nil, nil
	}
	if len(c.Biomes) != gen.ActiveBiomeCount {
		return nil, fmt.Errorf("%w: want %d biomes, got %d", ErrInvalid, gen.ActiveBiomeCount, len(c.Biomes))
	}
	out := make([]gen.Biome, len(c.Biomes))
	for i, name := range c.Biomes {
		b, err := gen.ParseBiome(name)
		if err != nil {
			return nil, fmt.Errorf("%w: biomes: %w", ErrInvalid, err)
		}
		out[i] = b
	}
	return out, nil
}

func (c *Config) profiles() (map[gen.Biome]gen.TreeProfile, error) {
	if len(c.Profiles) == 0 {
		return nil, nil
	}
	out := make(map[gen.Biome]gen.TreeProfile, len(c.Profiles))
	for name, p := range c.Profiles {
		b, err := gen.ParseBiome(name)
		if err != nil {
			return nil, fmt.Errorf("%w: profiles: %w", ErrInvalid, err)
		}
		out[b] = p
	}
	return out, nil
}

// SessionOptions builds generator options for the given active biomes,
// layering palette and profile overrides on the defaults.
func (c *Config) SessionOptions(active []gen.Biome) (gen.Options, error) {
	opts := gen.Options{Active: active}

	profiles, err := c.profiles()
	if err != nil {
		return opts, err
	}
	opts.Profiles = profiles

	if c.Palette != nil {
		pal := gen.DefaultPalette(active)
		if c.Palette.Dirt != 0 {
			pal.Dirt = c.Palette.Dirt
		}
		if c.Palette.Water != 0 {
			pal.Water = c.Palette.Water
		}
		for name, bb := range c.Palette.Blocks {
			b, err := gen.ParseBiome(name)
			if err != nil {
				return opts, fmt.Errorf("%w: palette: %w", ErrInvalid, err)
			}
			pal.Blocks[b] = bb
		}
		opts.Palette = &pal
	}
	return opts, nil
}
