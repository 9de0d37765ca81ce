package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OCharnyshevich/planetgen/internal/server/packet"
	"github.com/OCharnyshevich/planetgen/internal/server/world"
	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

type fixture struct {
	session *gen.Session
	world   *world.World
	handler *Handler
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	active := []gen.Biome{gen.BiomeTropical, gen.BiomeFrozen, gen.BiomeCrystal}
	s, err := gen.NewSession(gen.Options{Active: active})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	w := world.NewWorld(s, world.Options{ChunkSize: 16})
	h := NewHandler(w, Options{
		Welcome: packet.Welcome{
			Seed:      7,
			Biomes:    s.Active(),
			Palette:   s.Palette(),
			ChunkSize: 16,
			Spawn:     [3]int{0, 20, 0},
		},
		MaxInFlight: 2,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
	})
	return &fixture{session: s, world: w, handler: h, server: srv}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return kind, data
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	kind, data := read(t, conn)
	if kind != websocket.TextMessage {
		t.Fatalf("message kind = %d, want text", kind)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func TestHelloWelcome(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"hello","client":"test"}`)
	var w packet.Welcome
	readJSON(t, conn, &w)

	if w.Type != packet.TypeWelcome || w.Seed != 7 || w.ChunkSize != 16 {
		t.Errorf("welcome = %+v", w)
	}
	if len(w.Biomes) != 3 || w.Biomes[0] != gen.BiomeTropical {
		t.Errorf("biomes = %v, want [tropical frozen crystal]", w.Biomes)
	}
	if got := w.Palette.Blocks[gen.BiomeCrystal]; got.Leaves != 23 {
		t.Errorf("crystal leaves = %d, want 23", got.Leaves)
	}
}

func TestChunkFrame(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"chunk","origin":[-8,-4,3],"shape":[8,24,8]}`)
	kind, data := read(t, conn)
	if kind != websocket.BinaryMessage {
		t.Fatalf("message kind = %d, want binary: %s", kind, data)
	}

	req, voxels, err := world.DecodeChunk(data)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	want := gen.ChunkRequest{Origin: [3]int{-8, -4, 3}, Shape: [3]int{8, 24, 8}}
	if req != want {
		t.Fatalf("request = %+v, want %+v", req, want)
	}
	expected, err := f.session.Generate(want)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := range expected {
		if voxels[i] != expected[i] {
			t.Fatalf("voxel %d = %d, want %d", i, voxels[i], expected[i])
		}
	}
}

func TestManyChunksInFlight(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	const n = 6
	for i := 0; i < n; i++ {
		send(t, conn, `{"type":"chunk","origin":[0,0,0],"shape":[4,4,4]}`)
	}
	for i := 0; i < n; i++ {
		if kind, data := read(t, conn); kind != websocket.BinaryMessage {
			t.Fatalf("reply %d kind = %d: %s", i, kind, data)
		}
	}
}

func TestErrors(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	tests := []struct {
		in   string
		code string
	}{
		{`{"type":"chunk","origin":[0,0,0],"shape":[0,4,4]}`, packet.CodeInvalidShape},
		{`{"type":"chunk","origin":[0,0,0],"shape":[4096,4096,4096]}`, packet.CodeInvalidShape},
		{`{"type":"teleport"}`, packet.CodeUnknownType},
		{`{"type":"remove"}`, packet.CodeBadRequest},
		{`garbage`, packet.CodeBadRequest},
	}
	for _, tt := range tests {
		send(t, conn, tt.in)
		var e packet.Error
		readJSON(t, conn, &e)
		if e.Type != packet.TypeError || e.Code != tt.code {
			t.Errorf("%s: reply = %+v, want code %s", tt.in, e, tt.code)
		}
	}

	// The connection survives errors.
	send(t, conn, `{"type":"hello"}`)
	var w packet.Welcome
	readJSON(t, conn, &w)
	if w.Type != packet.TypeWelcome {
		t.Errorf("reply after errors = %+v, want welcome", w)
	}
}

func TestEditsBroadcast(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)
	b := f.dial(t)

	// Wait until both connections are registered.
	deadline := time.Now().Add(5 * time.Second)
	for f.handler.ClientCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("clients not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	send(t, a, `{"type":"remove","pos":[0,8,0]}`)
	for _, conn := range []*websocket.Conn{a, b} {
		var m packet.Block
		readJSON(t, conn, &m)
		if m.Type != packet.TypeBlock || m.Pos != [3]int{0, 8, 0} || m.Voxel != gen.Air {
			t.Errorf("remove reply = %+v", m)
		}
	}
	if got := f.world.GetBlock(0, 8, 0); got != gen.Air {
		t.Errorf("GetBlock(0,8,0) = %d, want air", got)
	}

	send(t, b, `{"type":"place","pos":[0,30,0]}`)
	want := f.session.GroundAt(0, 0)
	for _, conn := range []*websocket.Conn{a, b} {
		var m packet.Block
		readJSON(t, conn, &m)
		if m.Pos != [3]int{0, 30, 0} || m.Voxel != want {
			t.Errorf("place reply = %+v, want voxel %d", m, want)
		}
	}
	if got := f.world.GetBlock(0, 30, 0); got != want {
		t.Errorf("GetBlock(0,30,0) = %d, want %d", got, want)
	}
}

func TestChunkReflectsEdits(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"place","pos":[1,40,1]}`)
	var m packet.Block
	readJSON(t, conn, &m)

	send(t, conn, `{"type":"chunk","origin":[0,40,0],"shape":[2,1,2]}`)
	_, data := read(t, conn)
	req, voxels, err := world.DecodeChunk(data)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if got := voxels[req.Index(1, 0, 1)]; got != m.Voxel {
		t.Errorf("edited voxel = %d, want %d", got, m.Voxel)
	}
}
