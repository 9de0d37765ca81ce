package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/OCharnyshevich/planetgen/internal/server/world"
	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

const metaSessionKey = "session"

// Storage persists block overrides and session metadata in a sqlite database.
type Storage struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path. ":memory:" keeps everything
// in process.
func Open(ctx context.Context, path string, log *slog.Logger) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Storage{db: db, log: log}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS overrides (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			voxel INTEGER NOT NULL,
			PRIMARY KEY (x, y, z)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// LoadSession returns the stored session metadata. ok is false when none was saved yet.
func (s *Storage) LoadSession(ctx context.Context) (meta SessionMeta, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaSessionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, false, nil
	}
	if err != nil {
		return meta, false, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return meta, false, fmt.Errorf("parse session: %w", err)
	}
	return meta, true, nil
}

// SaveSession stores the session metadata, replacing any previous value.
func (s *Storage) SaveSession(ctx context.Context, meta SessionMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaSessionKey, string(raw))
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// LoadWorld reads all stored overrides and bulk-loads them into the world.
func (s *Storage) LoadWorld(ctx context.Context, w *world.World) error {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y, z, voxel FROM overrides`)
	if err != nil {
		return fmt.Errorf("read world overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[world.BlockPos]gen.VoxelID)
	for rows.Next() {
		var o BlockOverride
		if err := rows.Scan(&o.X, &o.Y, &o.Z, &o.Voxel); err != nil {
			return fmt.Errorf("scan override: %w", err)
		}
		overrides[world.BlockPos{X: o.X, Y: o.Y, Z: o.Z}] = o.Voxel
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read world overrides: %w", err)
	}

	w.LoadOverrides(overrides)
	s.log.Info("loaded world overrides", "count", len(overrides))
	return nil
}

// SaveWorld replaces the stored overrides with the world's current ones in one transaction.
func (s *Storage) SaveWorld(ctx context.Context, w *world.World) error {
	var overrides []BlockOverride
	w.ForEachOverride(func(pos world.BlockPos, id gen.VoxelID) {
		overrides = append(overrides, BlockOverride{X: pos.X, Y: pos.Y, Z: pos.Z, Voxel: id})
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM overrides`); err != nil {
		return fmt.Errorf("clear overrides: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO overrides(x, y, z, voxel) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, o := range overrides {
		if _, err := stmt.ExecContext(ctx, o.X, o.Y, o.Z, o.Voxel); err != nil {
			return fmt.Errorf("insert override %d,%d,%d: %w", o.X, o.Y, o.Z, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Info("saved world overrides", "count", len(overrides))
	return nil
}
