package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/OCharnyshevich/planetgen/internal/server/config"
	"github.com/OCharnyshevich/planetgen/internal/server/packet"
	"github.com/OCharnyshevich/planetgen/internal/server/storage"
	"github.com/OCharnyshevich/planetgen/internal/server/stream"
	"github.com/OCharnyshevich/planetgen/internal/server/world"
	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

const shutdownTimeout = 5 * time.Second

// Server serves generated terrain over websockets.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	session *gen.Session
	world   *world.World
	store   *storage.Storage
	stream  *stream.Handler
	seed    int64
}

// New builds the generation session and opens storage. Stored session
// metadata wins over the seed and biomes in cfg so saved edits stay on
// the terrain they were made on.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store *storage.Storage
	if cfg.StoragePath != "" {
		st, err := storage.Open(ctx, cfg.StoragePath, log.With("component", "storage"))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
	}

	s, err := build(ctx, cfg, log, store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	return s, nil
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger, store *storage.Storage) (*Server, error) {
	seed := cfg.Seed
	active, err := cfg.ActiveBiomes()
	if err != nil {
		return nil, err
	}

	if store != nil {
		meta, ok, err := store.LoadSession(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			if (seed != 0 && seed != meta.Seed) || (active != nil && !slices.Equal(active, meta.Biomes)) {
				log.Warn("configured seed or biomes differ from the saved world, using saved values",
					"savedSeed", meta.Seed, "savedBiomes", meta.Biomes)
			}
			seed, active = meta.Seed, meta.Biomes
		}
	}

	if seed == 0 {
		seed = rand.Int64()
	}
	if active == nil {
		active = gen.PickBiomes(gen.RandomSource(seed))
	}

	opts, err := cfg.SessionOptions(active)
	if err != nil {
		return nil, err
	}
	session, err := gen.NewSession(opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	w := world.NewWorld(session, world.Options{ChunkSize: cfg.ChunkSize, CacheLimit: cfg.CacheLimit})
	if store != nil {
		if err := store.SaveSession(ctx, storage.SessionMeta{Seed: seed, Biomes: session.Active()}); err != nil {
			return nil, err
		}
		if err := store.LoadWorld(ctx, w); err != nil {
			return nil, err
		}
	}

	srv := &Server{
		cfg:     cfg,
		log:     log,
		session: session,
		world:   w,
		store:   store,
		seed:    seed,
	}
	srv.stream = stream.NewHandler(w, stream.Options{
		Welcome:     srv.Welcome(),
		MaxInFlight: cfg.MaxInFlight,
	}, log.With("component", "stream"))
	return srv, nil
}

// World returns the served world.
func (s *Server) World() *world.World {
	return s.world
}

// Welcome describes the session to new clients.
func (s *Server) Welcome() packet.Welcome {
	return packet.Welcome{
		Type:      packet.TypeWelcome,
		Seed:      s.seed,
		Biomes:    s.session.Active(),
		Palette:   s.session.Palette(),
		ChunkSize: s.world.ChunkSize(),
		Spawn:     [3]int{0, max(s.cfg.SpawnY, s.world.SpawnHeight()), 0},
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.stream)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"status":    "ok",
			"seed":      s.seed,
			"biomes":    s.session.Active(),
			"clients":   s.stream.ClientCount(),
			"overrides": s.world.OverrideCount(),
		})
	})
	return mux
}

// Start begins listening for connections and blocks until the context is cancelled.
// Block edits are saved on the way out.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	defer listener.Close()

	s.log.Info("server started",
		"addr", listener.Addr().String(),
		"seed", s.seed,
		"biomes", s.session.Active(),
		"chunkSize", s.cfg.ChunkSize,
		"spawnY", s.Welcome().Spawn[1],
	)

	if s.cfg.PreGenRadius >= 0 {
		spawn := s.world.ChunkOf(0, s.world.SpawnHeight(), 0)
		start := time.Now()
		n, err := s.world.PreGenerateRadius(ctx, s.cfg.PreGenRadius, spawn.Y-1, spawn.Y+1)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("pre-generate: %w", err)
		}
		s.log.Info("pre-generated spawn area", "chunks", n, "took", time.Since(start))
	}

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.stream.CloseAll()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http shutdown", "error", err)
	}
	return s.Save(shutdownCtx)
}

// Save persists block edits. It is a no-op without storage.
func (s *Server) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveWorld(ctx, s.world); err != nil {
		return fmt.Errorf("save world: %w", err)
	}
	return nil
}

// Close releases storage. Start calls it on return.
func (s *Server) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.log.Error("close storage", "error", err)
	}
	s.store = nil
}
