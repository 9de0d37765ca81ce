package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OCharnyshevich/planetgen/internal/server/packet"
	"github.com/OCharnyshevich/planetgen/internal/server/world"
	"github.com/OCharnyshevich/planetgen/pkg/world/gen"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4 << 10
)

// DefaultMaxInFlight bounds concurrent chunk requests per connection.
const DefaultMaxInFlight = 8

// Options configures a Handler.
type Options struct {
	Welcome     packet.Welcome
	MaxInFlight int
}

// Handler serves the chunk stream over websocket connections and fans out
// block edits to every connected client.
type Handler struct {
	world    *world.World
	log      *slog.Logger
	welcome  packet.Welcome
	inFlight int
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHandler creates a websocket handler backed by w.
func NewHandler(w *world.World, opts Options, log *slog.Logger) *Handler {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	opts.Welcome.Type = packet.TypeWelcome
	return &Handler{
		world:    w,
		log:      log,
		welcome:  opts.Welcome,
		inFlight: opts.MaxInFlight,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ClientCount returns the number of open connections.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type frame struct {
	kind int
	data []byte
}

type client struct {
	out    chan frame
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

// send queues f unless the connection is closing.
func (c *client) send(f frame) bool {
	select {
	case c.out <- f:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *client) sendMessage(m packet.Message) bool {
	data, err := packet.Encode(m)
	if err != nil {
		c.log.Error("encode message", "type", m.MessageType(), "error", err)
		return false
	}
	return c.send(frame{kind: websocket.TextMessage, data: data})
}

func (c *client) sendError(code string, err error) bool {
	return c.sendMessage(packet.NewError(code, err.Error()))
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.log.Debug("upgrade", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		out:    make(chan frame, 2*h.inFlight),
		ctx:    ctx,
		cancel: cancel,
		log:    h.log.With("remote", r.RemoteAddr),
	}
	h.register(c)
	defer h.unregister(c)
	c.log.Info("client connected")

	go h.writeLoop(conn, c)

	var wg sync.WaitGroup
	sem := make(chan struct{}, h.inFlight)
	h.readLoop(conn, c, sem, &wg)

	cancel()
	wg.Wait()
	c.log.Info("client disconnected")
}

func (h *Handler) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case f := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(f.kind, f.data); err != nil {
				c.log.Debug("write", "error", err)
				c.cancel()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				_ = conn.Close()
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, c *client, sem chan struct{}, wg *sync.WaitGroup) {
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if kind != websocket.TextMessage {
			c.sendError(packet.CodeBadRequest, errors.New("binary messages are not accepted"))
			continue
		}
		msg, err := packet.Decode(data)
		if err != nil {
			code := packet.CodeBadRequest
			var de *packet.DecodeError
			if errors.As(err, &de) {
				code = de.Code
			}
			c.sendError(code, err)
			continue
		}

		switch m := msg.(type) {
		case packet.Hello:
			c.log.Info("hello", "client", m.Client)
			c.sendMessage(h.welcome)
		case packet.Chunk:
			select {
			case sem <- struct{}{}:
			case <-c.ctx.Done():
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				h.serveChunk(c, m.Request())
			}()
		case packet.Remove:
			h.world.RemoveBlock(m.Pos[0], m.Pos[1], m.Pos[2])
			h.broadcast(packet.Block{Type: packet.TypeBlock, Pos: m.Pos, Voxel: gen.Air})
		case packet.Place:
			id := h.world.PlaceGround(m.Pos[0], m.Pos[1], m.Pos[2])
			h.broadcast(packet.Block{Type: packet.TypeBlock, Pos: m.Pos, Voxel: id})
		}
	}
}

func (h *Handler) serveChunk(c *client, req gen.ChunkRequest) {
	n, err := req.Volume()
	if err == nil && n > world.MaxChunkVolume {
		err = fmt.Errorf("%w: volume %d exceeds %d", gen.ErrInvalidShape, n, world.MaxChunkVolume)
	}
	if err != nil {
		c.sendError(packet.CodeInvalidShape, err)
		return
	}

	voxels, err := h.world.Region(req)
	if err != nil {
		c.log.Error("generate region", "origin", req.Origin, "shape", req.Shape, "error", err)
		c.sendError(packet.CodeInternal, err)
		return
	}
	data, err := world.EncodeChunk(req, voxels)
	if err != nil {
		c.log.Error("encode chunk", "origin", req.Origin, "error", err)
		c.sendError(packet.CodeInternal, err)
		return
	}
	c.send(frame{kind: websocket.BinaryMessage, data: data})
}

// CloseAll disconnects every client.
func (h *Handler) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.cancel()
	}
}

func (h *Handler) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Handler) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// broadcast sends m to every client. Clients too slow to keep up are disconnected.
func (h *Handler) broadcast(m packet.Message) {
	data, err := packet.Encode(m)
	if err != nil {
		h.log.Error("encode broadcast", "type", m.MessageType(), "error", err)
		return
	}
	f := frame{kind: websocket.TextMessage, data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- f:
		default:
			c.log.Warn("client too slow, disconnecting")
			c.cancel()
		}
	}
}
