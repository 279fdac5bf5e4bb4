package net

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"screenspec/internal/state"
)

const (
	wsMaxPayloadBytes = 1 << 16
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
	viewerBuffer      = 64
)

type viewer struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// Hub fans the ops of one shared screen out to websocket viewers. It mirrors
// the published ops so a viewer that joins late first receives a replace op
// carrying the current annotation list.
type Hub struct {
	screenID string
	site     string
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	mirror  *state.Replica
	viewers map[*viewer]struct{}
	closed  bool
}

// NewHub creates a hub seeded with the document's current annotations and
// subscribes it to emitter.
func NewHub(screenID string, emitter *state.Emitter, initial []state.Annotation, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		screenID: screenID,
		logger:   logger,
		mirror:   state.NewReplica(logger),
		viewers:  make(map[*viewer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	h.mirror.Apply(state.Op{Type: state.OpReplace, Annotations: initial})
	if emitter != nil {
		h.site = emitter.Site()
		emitter.Subscribe(h.Publish)
	}
	return h
}

// Publish mirrors op and broadcasts it. Viewers that cannot keep up are
// disconnected.
func (h *Hub) Publish(op state.Op) {
	if op.ScreenID == "" {
		op.ScreenID = h.screenID
	}
	msg, err := json.Marshal(op)
	if err != nil {
		h.logger.Warn("Hub: encode op", "type", op.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.mirror.Apply(op)
	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			h.logger.Warn("Hub: viewer too slow, dropping", "addr", v.addr)
			h.dropLocked(v)
		}
	}
}

// Annotations returns the mirrored list.
func (h *Hub) Annotations() []state.Annotation {
	return h.mirror.Annotations()
}

// Len returns the number of connected viewers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *Hub) dropLocked(v *viewer) {
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	close(v.send)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Hub: upgrade failed", "error", err)
		return
	}
	v := &viewer{conn: conn, send: make(chan []byte, viewerBuffer), addr: r.RemoteAddr}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	snapshot := state.Op{
		Type:        state.OpReplace,
		ScreenID:    h.screenID,
		Annotations: h.mirror.Annotations(),
		Lamport:     h.mirror.Clock(),
		Site:        h.site,
		At:          time.Now(),
	}
	msg, err := json.Marshal(snapshot)
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("Hub: encode snapshot", "error", err)
		conn.Close()
		return
	}
	v.send <- msg
	h.viewers[v] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Viewer connected", "addr", v.addr, "screen", h.screenID)
	go h.writeLoop(v)
	h.readLoop(v)
}

// readLoop only services control frames; viewers are read-only.
func (h *Hub) readLoop(v *viewer) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(v)
		h.mu.Unlock()
		h.logger.Info("Viewer disconnected", "addr", v.addr)
	}()
	v.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = v.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(v *viewer) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every viewer. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for v := range h.viewers {
		h.dropLocked(v)
	}
}
