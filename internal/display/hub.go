package display

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-transcription-service/internal/observability/logging"
)

const (
	writeWait     = 5 * time.Second
	clientBacklog = 16

	// stoppedState marks the last update a session renders.
	stoppedState = "STOPPED"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local demo UI
	},
}

type client struct {
	conn *websocket.Conn
	send chan Update
}

// Hub pushes updates to WebSocket clients subscribed to a session and caches
// the latest update of every running session so late subscribers see current
// text. A session's cache entry is dropped once its STOPPED update is queued.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	latest  map[string]Update
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		latest:  make(map[string]Update),
		logger:  logging.WithComponent("display-hub"),
	}
}

// Render caches u and queues it for every subscriber of u.SessionID.
// Slow clients lose their oldest queued updates rather than block the caller,
// so the newest update always reaches them.
func (h *Hub) Render(u Update) {
	h.mu.Lock()
	if u.State == stoppedState {
		delete(h.latest, u.SessionID)
	} else {
		h.latest[u.SessionID] = u
	}
	subs := make([]*client, 0, len(h.clients[u.SessionID]))
	for c := range h.clients[u.SessionID] {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	for _, c := range subs {
		h.enqueue(c, u)
	}
}

func (h *Hub) enqueue(c *client, u Update) {
	for {
		select {
		case c.send <- u:
			return
		default:
		}
		select {
		case <-c.send:
			h.logger.Debug().Str("sessionId", u.SessionID).Msg("Client backlog full, oldest update dropped")
		default:
		}
	}
}

// Latest returns the cached update for a session.
func (h *Hub) Latest(sessionID string) (Update, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.latest[sessionID]
	return u, ok
}

// Subscribers returns the number of clients watching a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// ServeWS upgrades the request and streams updates of sessionID until the
// client disconnects. The client first receives the cached update, or, when
// nothing is cached, the update returned by current. current may be nil.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string, current func() (Update, bool)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Update, clientBacklog)}

	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
	cached, ok := h.latest[sessionID]
	if ok {
		c.send <- cached
	}
	total := len(h.clients[sessionID])
	h.mu.Unlock()

	// Registered before asking, so a STOPPED update rendered meanwhile is
	// queued to c as well.
	if !ok && current != nil {
		if u, found := current(); found {
			h.enqueue(c, u)
		}
	}

	h.logger.Info().Str("sessionId", sessionID).Int("clients", total).Msg("Client connected")

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// Reads only detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.remove(sessionID, c)
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	defer c.conn.Close()
	for {
		select {
		case u := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(u); err != nil {
				h.logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Hub) remove(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[sessionID], c)
	if len(h.clients[sessionID]) == 0 {
		delete(h.clients, sessionID)
	}
	h.logger.Info().Str("sessionId", sessionID).Msg("Client disconnected")
}
